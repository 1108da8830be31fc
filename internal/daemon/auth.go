package daemon

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

const signatureHeader = "X-Webhook-Signature"

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>" header.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(r, token) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// cronAuth admits the cron secret as a bearer token or the trusted scheduler
// header. With neither configured every request is rejected.
func cronAuth(secret, header, value string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && bearerMatches(r, secret) {
			next(w, r)
			return
		}
		if header != "" && value != "" && r.Header.Get(header) == value {
			next(w, r)
			return
		}
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}
}

func bearerMatches(r *http.Request, token string) bool {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return false
	}
	given := strings.TrimPrefix(auth, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(given), []byte(token)) == 1
}

// verifySignature checks the hex HMAC-SHA256 of body, optionally prefixed
// with "sha256=". An empty secret disables verification.
func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	given, err := hex.DecodeString(signature)
	if err != nil || len(given) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}
