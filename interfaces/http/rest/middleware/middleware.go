// Package middleware holds the HTTP middleware of the REST surface.
package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/auth"
)

// Logger logs each request with method, path, status and duration.
func Logger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

// Authenticate resolves the editor session for the request. With a JWT
// service configured the Authorization header (or token query
// parameter) is required; with allowAnon a bare X-Client-ID header or
// clientId query parameter identifies the session instead.
func Authenticate(jwtService *auth.JWTService, allowAnon bool, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("Authorization")
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			if token != "" && jwtService != nil {
				claims, err := jwtService.ValidateToken(token)
				if err != nil {
					logger.Warn("request authentication failed", zap.Error(err))
					http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
					return
				}
				ctx := auth.WithSession(r.Context(), &auth.Session{ClientID: claims.ClientID, Name: claims.Name})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if allowAnon {
				clientID := r.Header.Get("X-Client-ID")
				if clientID == "" {
					clientID = r.URL.Query().Get("clientId")
				}
				if clientID != "" {
					ctx := auth.WithSession(r.Context(), &auth.Session{ClientID: clientID})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		})
	}
}
