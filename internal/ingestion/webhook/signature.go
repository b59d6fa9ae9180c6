package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/reviewguard/engine/internal/domain"
)

// verifySignature checks the platform's webhook authentication scheme
// against the repository's configured secret. An empty secret disables
// verification for that repository.
func verifySignature(platform domain.Platform, r *http.Request, body []byte, secret string) bool {
	if secret == "" {
		return true
	}

	switch platform {
	case domain.PlatformGitLab:
		// GitLab sends the shared secret verbatim.
		token := r.Header.Get("X-Gitlab-Token")
		return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
	case domain.PlatformGitea:
		if sig := r.Header.Get("X-Gitea-Signature"); sig != "" {
			return verifyHMACHex(sig, body, secret)
		}
		return verifyHubSignature(r.Header.Get("X-Hub-Signature-256"), body, secret)
	case domain.PlatformGitHub:
		return verifyHubSignature(r.Header.Get("X-Hub-Signature-256"), body, secret)
	default:
		return false
	}
}

// verifyHubSignature validates a "sha256=<hex>" HMAC-SHA256 header.
func verifyHubSignature(header string, body []byte, secret string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	return verifyHMACHex(strings.TrimPrefix(header, prefix), body, secret)
}

func verifyHMACHex(sigHex string, body []byte, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(sigHex)), []byte(expected))
}
