package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/identity"
)

// UserJWT authenticates the patient calling the booking API.
//
// With a secret the bearer token must be a valid HMAC-signed JWT carrying a
// subject. Without a secret the token is forwarded to the backend unverified
// and the backend decides; requests without a token pass as anonymous.
func UserJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, hasToken := bearerToken(r)
			if secret == "" {
				if hasToken {
					r = r.WithContext(identity.WithUser(r.Context(), identity.User{Token: raw}))
				}
				next.ServeHTTP(w, r)
				return
			}
			if !hasToken {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := identity.WithUser(r.Context(), identity.User{Subject: claims.Subject, Token: raw})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header. Websocket upgrades may pass the
// token as access_token since browsers cannot set headers on them.
func bearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			token := strings.TrimSpace(r.URL.Query().Get("access_token"))
			return token, token != ""
		}
		return "", false
	}
	token := strings.TrimSpace(auth[7:])
	return token, token != ""
}
