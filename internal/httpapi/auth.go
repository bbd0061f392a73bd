/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/golang-jwt/jwt/v5"

	"github.com/altairalabs/mcpagg/internal/store/postgres"
)

// ErrUnauthorized is returned when a request carries no usable credential.
var ErrUnauthorized = errors.New("httpapi: missing or invalid credential")

// Claims is the JWT payload mcpagg expects: a user id subject and the list
// of organizations the token's bearer may switch into.
type Claims struct {
	jwt.RegisteredClaims
	AuthorizedOrgs []string `json:"authorized_orgs"`
}

type ctxKey string

const (
	ctxKeyUserID ctxKey = "mcpagg-user-id"
	ctxKeyOrgID  ctxKey = "mcpagg-org-id"
)

// Authenticator validates bearer JWTs or static API keys and enforces the
// X-Organization-Id tenant-switch claim, auditing denials.
type Authenticator struct {
	jwtSecret []byte
	apiKeys   map[string]string // key -> user id
	audit     *postgres.AuditRepo
	logger    logr.Logger
}

// NewAuthenticator builds an Authenticator.
func NewAuthenticator(jwtSecret []byte, apiKeys map[string]string, audit *postgres.AuditRepo, logger logr.Logger) *Authenticator {
	return &Authenticator{jwtSecret: jwtSecret, apiKeys: apiKeys, audit: audit, logger: logger.WithName("auth")}
}

// Middleware authenticates the request via Authorization: Bearer <jwt> or
// X-API-Key, validates the requested X-Organization-Id against the token's
// authorized_orgs, and records denied attempts to the audit log.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, authorizedOrgs, err := a.authenticate(r)
		if err != nil {
			a.deny(r.Context(), "", "", "authentication_failed", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		orgID := r.Header.Get("X-Organization-Id")
		if orgID != "" && !contains(authorizedOrgs, orgID) {
			a.deny(r.Context(), userID, orgID, "org_not_authorized", fmt.Errorf("org %s not in authorized_orgs", orgID))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyOrgID, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (userID string, authorizedOrgs []string, err error) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		user, ok := a.apiKeys[apiKey]
		if !ok {
			return "", nil, ErrUnauthorized
		}
		return user, nil, nil
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", nil, ErrUnauthorized
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", nil, fmt.Errorf("%w: token expired", ErrUnauthorized)
		}
		return "", nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid {
		return "", nil, ErrUnauthorized
	}
	return claims.Subject, claims.AuthorizedOrgs, nil
}

func (a *Authenticator) deny(ctx context.Context, userID, orgID, action string, cause error) {
	a.logger.Info("denied request", "user_id", userID, "org_id", orgID, "action", action, "cause", cause)
	if a.audit == nil {
		return
	}
	var orgPtr *string
	if orgID != "" {
		orgPtr = &orgID
	}
	detail, _ := json.Marshal(map[string]string{"reason": cause.Error()})
	entry := &postgres.AuditEntry{
		OccurredAt: time.Now(),
		UserID:     userID,
		OrgID:      orgPtr,
		Action:     action,
		Outcome:    "denied",
		Detail:     detail,
	}
	if err := a.audit.Record(ctx, entry); err != nil {
		a.logger.Error(err, "failed to record audit entry for denied request")
	}
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// UserID extracts the authenticated user id from a request context.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

// OrgID extracts the selected org id from a request context.
func OrgID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyOrgID).(string)
	return v
}
