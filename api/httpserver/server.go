// Package httpserver fronts the RPC dispatcher's websocket transport
// and the operator control summary's read endpoints behind a chi
// router, for deployments that want an HTTP surface alongside the
// CLI's stdin/stdout NDJSON mode.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/njfio/tau/operator"
	"github.com/njfio/tau/rpc"
)

// Config controls CORS, the operator snapshot source, and the bearer
// token this server accepts.
type Config struct {
	AllowedOrigins []string
	LoadSnapshot   func() (operator.Snapshot, error)
	LoadDrift      func() (operator.DriftReport, error)

	// JWTSecret, when non-empty, requires every request to /ws and
	// /operator/* to carry a valid HS256 Authorization: Bearer token
	// signed with this secret. Empty disables auth (local/dev mode).
	JWTSecret string
}

type principalKey struct{}

// PrincipalFromContext returns the JWT subject claim validated by
// RequireBearer, or "" if auth was disabled or the claim absent.
func PrincipalFromContext(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}

// RequireBearer validates an HS256 JWT from the Authorization header
// and stores its "sub" claim in the request context, grounded on the
// teacher's own cmd/agentflow JWTAuth middleware shape, narrowed to the
// HMAC-only case this control plane needs.
func RequireBearer(secret string, next http.Handler) http.Handler {
	if secret == "" {
		return next
	}
	key := []byte(secret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "missing or malformed Authorization header", http.StatusUnauthorized)
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errUnexpectedSigningMethod
			}
			return key, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		ctx := context.WithValue(r.Context(), principalKey{}, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errUnexpectedSigningMethod = errors.New("unexpected JWT signing method")

// New builds the router: GET /healthz, GET /operator/snapshot,
// GET /operator/drift, and GET /ws for the RPC websocket transport.
func New(dispatcher *rpc.Dispatcher, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         int((5 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	transport := &rpc.WebSocketTransport{Dispatcher: dispatcher}
	r.Get("/ws", wrap(cfg.JWTSecret, transport.ServeHTTP))

	r.Get("/operator/snapshot", wrap(cfg.JWTSecret, func(w http.ResponseWriter, req *http.Request) {
		if cfg.LoadSnapshot == nil {
			http.Error(w, "snapshot source not configured", http.StatusServiceUnavailable)
			return
		}
		snap, err := cfg.LoadSnapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, snap)
	}))

	r.Get("/operator/drift", wrap(cfg.JWTSecret, func(w http.ResponseWriter, req *http.Request) {
		if cfg.LoadDrift == nil {
			http.Error(w, "drift source not configured", http.StatusServiceUnavailable)
			return
		}
		report, err := cfg.LoadDrift()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, report)
	}))

	return r
}

func wrap(secret string, handler http.HandlerFunc) http.HandlerFunc {
	guarded := RequireBearer(secret, handler)
	return guarded.ServeHTTP
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
