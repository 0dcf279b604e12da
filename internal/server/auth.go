// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// apiKeyHeader carries the caller's secret on every authenticated request.
const apiKeyHeader = "X-API-Key"

type contextKey string

const requesterKey contextKey = "bastion.requester"

// RequesterFromContext returns the authenticated key ID stored by the auth
// middleware, or "" when the request bypassed authentication.
func RequesterFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requesterKey).(string)
	return id
}

// requireAPIKey authenticates every request against the keychain and stores
// the resolved key ID in the request context. The health check is the one
// deliberate bypass; OpenAPI and docs stay behind the key like everything
// else.
func requireAPIKey(keys KeyService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			secret := strings.TrimSpace(r.Header.Get(apiKeyHeader))
			keyID, err := keys.Authenticate(r.Context(), secret)
			if err != nil {
				logger.Warn("request authentication failed",
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
					"error", err)
				writeAuthError(w)
				return
			}

			ctx := context.WithValue(r.Context(), requesterKey, keyID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"title":%q,"status":%d,"detail":%q}`,
		http.StatusText(http.StatusUnauthorized),
		http.StatusUnauthorized,
		"a valid "+apiKeyHeader+" header is required")
}
