package auth

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func clientIp(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); len(ip) > 0 {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); len(ip) > 0 {
		return ip
	}
	if len(r.RemoteAddr) > 0 {
		return r.RemoteAddr
	}
	return "Unknown"
}

func protocol(r *http.Request) string {
	protocol := r.Header.Get("X-Forwarded-Proto")
	if len(protocol) > 0 {
		return protocol
	}
	return r.URL.Scheme
}

func pathParams(r *http.Request) []interface{} {
	params := make([]interface{}, 0)

	ctx := r.Context()
	if ctx == nil {
		return params
	}

	rctx := chi.RouteContext(ctx)
	for i := range rctx.URLParams.Keys {
		if rctx.URLParams.Keys[i] != "*" {
			params = append(params, slog.String(rctx.URLParams.Keys[i], rctx.URLParams.Values[i]))
		}
	}

	return params
}

// appIdParam returns the app a request addresses, if its route carries one.
// Most audited operations (review decisions, installs, updates) are keyed by
// app, so the id gets a top level field in addition to the path params group.
func appIdParam(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.URLParam("app_id")
	}
	return ""
}

func queryParams(r *http.Request) []interface{} {
	params := make([]interface{}, 0)
	for k, v := range r.URL.Query() {
		params = append(params, slog.String(k, strings.Join(v, ";")))
	}
	return params
}

type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(stream io.Writer) AuditLogger {
	logger := slog.New(slog.NewJSONHandler(stream, nil))
	return AuditLogger{logger: logger}
}

func (log *AuditLogger) Middleware(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		attrs := []interface{}{
			"username", user.Username,
			"user_id", user.Id,
			"role", user.Role,
			"client_ip", clientIp(r),
			"protocol", protocol(r),
			"method", r.Method,
			"url", r.URL.Path,
			slog.Group("path_params", pathParams(r)...),
			slog.Group("query_params", queryParams(r)...),
		}
		if user.CompanyId != nil {
			attrs = append(attrs, "company_id", *user.CompanyId)
		}
		if appId := appIdParam(r); appId != "" {
			attrs = append(attrs, "app_id", appId)
		}

		log.logger.Info("", attrs...)

		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(handler)
}
