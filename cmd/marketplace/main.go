package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"app_marketplace/marketplace/auth"
	"app_marketplace/marketplace/schema"
	"app_marketplace/marketplace/services"
	"app_marketplace/utils/logging"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogmulti "github.com/samber/slog-multi"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type MarketplaceEnv struct {
	PublicHostname string `env:"PUBLIC_HOSTNAME,required"`
	DatabaseUri    string `env:"DATABASE_URI,required"`
	ShareDir       string `env:"SHARE_DIR,required"`
	JwtSecret      string `env:"JWT_SECRET,required"`

	AdminUsername string `env:"ADMIN_USERNAME,required"`
	AdminEmail    string `env:"ADMIN_MAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required"`

	IdentityProvider      string `env:"IDENTITY_PROVIDER" envDefault:"basic"`
	KeycloakServerUrl     string `env:"KEYCLOAK_SERVER_URL"`
	KeycloakAdminUsername string `env:"KEYCLOAK_ADMIN_USER"`
	KeycloakAdminPassword string `env:"KEYCLOAK_ADMIN_PASSWORD"`
	UseSslInLogin         bool   `env:"USE_SSL_IN_LOGIN"`
}

/**
 * ==========================================================================
 * ==== All variables used by the marketplace must be loaded here. This  ====
 * ==== is to make the data flow clear so that a user can see what       ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() (*MarketplaceEnv, error) {
	cfg := &MarketplaceEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.IdentityProvider == "keycloak" && cfg.KeycloakServerUrl == "" {
		return nil, fmt.Errorf("KEYCLOAK_SERVER_URL must be set when IDENTITY_PROVIDER is keycloak")
	}
	return cfg, nil
}

func (e *MarketplaceEnv) postgresDsn() (string, error) {
	parts, err := url.Parse(e.DatabaseUri)
	if err != nil {
		return "", fmt.Errorf("error parsing db uri: %w", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port()), nil
}

func initLogging(logFile *os.File) {
	jsonHandler := slog.NewJSONHandler(logFile, logging.GetVictoriaLogsOptions(false)).
		WithAttrs([]slog.Attr{slog.String("service_type", "marketplace")})
	textHandler := slog.NewTextHandler(os.Stderr, nil)

	logger := slog.New(slogmulti.Fanout(jsonHandler, textHandler))
	slog.SetDefault(logger)
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	if err := db.AutoMigrate(schema.AllModels()...); err != nil {
		return nil, fmt.Errorf("error migrating db schema: %w", err)
	}

	return db, nil
}

// runApp returns an error instead of calling log.Fatalf so that defer calls
// run before the process exits.
func runApp() error {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		slog.Info(fmt.Sprintf("loading env from file %v", *envFile))
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("error loading .env file '%v': %w", *envFile, err)
		}
	}

	cfg, err := loadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(cfg.ShareDir, "logs/"), 0777); err != nil {
		return fmt.Errorf("error creating log dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.ShareDir, "logs/marketplace.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(cfg.ShareDir, "logs/audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("error opening audit log file: %w", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	dsn, err := cfg.postgresDsn()
	if err != nil {
		return err
	}

	db, err := initDb(dsn)
	if err != nil {
		return err
	}

	var identityProvider auth.IdentityProvider
	if cfg.IdentityProvider == "keycloak" {
		identityProvider, err = auth.NewKeycloakIdentityProvider(
			db,
			auth.NewAuditLogger(auditLog),
			auth.KeycloakArgs{
				KeycloakServerUrl:     cfg.KeycloakServerUrl,
				KeycloakAdminUsername: cfg.KeycloakAdminUsername,
				KeycloakAdminPassword: cfg.KeycloakAdminPassword,
				AdminUsername:         cfg.AdminUsername,
				AdminEmail:            cfg.AdminEmail,
				AdminPassword:         cfg.AdminPassword,
				SslLogin:              cfg.UseSslInLogin,
			},
		)
		if err != nil {
			return fmt.Errorf("error creating keycloak identity provider: %w", err)
		}
	} else {
		identityProvider, err = auth.NewBasicIdentityProvider(
			db,
			auth.NewAuditLogger(auditLog),
			auth.BasicProviderArgs{
				Secret:        []byte(cfg.JwtSecret),
				AdminUsername: cfg.AdminUsername,
				AdminEmail:    cfg.AdminEmail,
				AdminPassword: cfg.AdminPassword,
			},
		)
		if err != nil {
			return fmt.Errorf("error creating basic identity provider: %w", err)
		}
	}

	marketplace := services.NewMarketplace(db, identityProvider)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.PublicHostname},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", marketplace.Routes())
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: r,
	}

	/* srv.Shutdown shuts down the server without interrupting valid
	connections, and listening for the interrupt here ensures the defer calls
	above run before exit. */
	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutdown signal received")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("HTTP server Shutdown", "err", err)
		}
		close(idleConnsClosed)
	}()

	slog.Info("starting server", "port", *port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve returned error: %w", err)
	}

	<-idleConnsClosed
	slog.Info("server stopped")
	return nil
}

func main() {
	if err := runApp(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}
