package chi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/supportgraph/internal/logger"
)

// Probes and scrapers do not carry credentials.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware validates "Authorization: Bearer <key>" against apiKeys.
// An empty key list disables authentication. Keys are compared as sha256
// digests in constant time, and the request logger gets a short fingerprint of
// the caller's key (never the key itself).
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	var digests [][sha256.Size]byte
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(digests) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "missing or malformed bearer token")
				return
			}

			sum := sha256.Sum256([]byte(token))
			if !matchDigest(digests, sum) {
				unauthorized(w, "invalid api key")
				return
			}

			ctx := logpkg.With(r.Context(), zap.String("api_key", hex.EncodeToString(sum[:4])))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token; the scheme is case-insensitive (RFC 7235).
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func matchDigest(digests [][sha256.Size]byte, sum [sha256.Size]byte) bool {
	matched := 0
	for i := range digests {
		matched |= subtle.ConstantTimeCompare(digests[i][:], sum[:])
	}
	return matched == 1
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="supportgraph"`)
	writeError(w, http.StatusUnauthorized, CodeUnauthorized, msg)
}
