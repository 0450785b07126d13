package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/logger"
	"taskcal/internal/service"
)

type contextKey string

const claimsContextKey contextKey = "claims"

func claimsFrom(ctx context.Context) *service.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*service.Claims)
	return claims
}

// requireAuth admits requests carrying a bearer token issued for one of the
// given purposes. Browsers cannot set headers on WebSocket upgrades, so the
// token may also come from the access_token query parameter.
func (s *Server) requireAuth(next http.HandlerFunc, purposes ...string) http.HandlerFunc {
	if len(purposes) == 0 {
		purposes = []string{service.PurposeSession}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, apperr.New(apperr.Unauthorized, "missing authorization header"))
			return
		}
		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !allowed(claims.Purpose, purposes) {
			writeError(w, r, apperr.New(apperr.Unauthorized, "token not valid for this endpoint"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey, claims)))
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func allowed(purpose string, purposes []string) bool {
	for _, p := range purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps WebSocket upgrades working through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}
