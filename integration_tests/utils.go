package integrationtests

import (
	"log/slog"
	"os"
	"testing"

	"app_marketplace/client"

	"github.com/google/uuid"
)

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// adminClient logs into a running marketplace server as the initial admin.
// The server location and credentials can be overridden with MARKETPLACE_URL,
// ADMIN_MAIL, and ADMIN_PASSWORD.
func adminClient(t *testing.T) *client.MarketplaceClient {
	// slog.SetLogLoggerLevel requires Go 1.22; this is the closest Go 1.21 equivalent.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))

	c := client.New(envOr("MARKETPLACE_URL", "http://localhost:8000"))
	err := c.Login(envOr("ADMIN_MAIL", "admin@mail.com"), envOr("ADMIN_PASSWORD", "password"))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// newUser signs up and logs in a fresh user with a random name so that tests
// can run repeatedly against the same server.
func newUser(t *testing.T, base string) *client.MarketplaceClient {
	username := randomName(base)

	c := client.New(envOr("MARKETPLACE_URL", "http://localhost:8000"))
	if err := c.Signup(username, username+"@mail.com", username+"_password"); err != nil {
		t.Fatal(err)
	}
	if err := c.Login(username+"@mail.com", username+"_password"); err != nil {
		t.Fatal(err)
	}
	return c
}

func randomName(base string) string {
	return base + "-" + uuid.New().String()
}
