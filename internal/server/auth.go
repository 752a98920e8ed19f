package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Jiangye-Song/resume-agent/internal/logging"
	"github.com/Jiangye-Song/resume-agent/internal/store"
)

// errPasscodeUnset is returned when no admin passcode has been configured.
var errPasscodeUnset = errors.New("admin passcode is not configured")

// HashPasscode returns the hex SHA-256 digest stored under
// store.KeyPanelPasscode.
func HashPasscode(passcode string) string {
	sum := sha256.Sum256([]byte(passcode))
	return hex.EncodeToString(sum[:])
}

// verifyPasscode compares the digest of passcode with the stored digest in
// constant time.
func verifyPasscode(ctx context.Context, s store.RecordStore, passcode string) (bool, error) {
	stored, err := s.GetConfig(ctx, store.KeyPanelPasscode)
	if errors.Is(err, store.ErrNotFound) || (err == nil && strings.TrimSpace(stored) == "") {
		return false, errPasscodeUnset
	}
	if err != nil {
		return false, err
	}
	got := HashPasscode(passcode)
	want := strings.ToLower(strings.TrimSpace(stored))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1, nil
}

// adminAuth enforces Bearer passcode authentication on admin routes:
//
//	Authorization: Bearer <passcode>
//
// The passcode value is never logged; only its presence is recorded.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logging.FromContext(ctx)

		token := bearerToken(r)
		if token == "" {
			log.Warn("auth: missing Authorization header", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="resume-agent"`)
			writeError(ctx, w, http.StatusUnauthorized, "authorization required")
			return
		}

		ok, err := verifyPasscode(ctx, s.deps.Store, token)
		switch {
		case errors.Is(err, errPasscodeUnset):
			log.Warn("auth: admin passcode not configured")
			writeError(ctx, w, http.StatusServiceUnavailable, err.Error())
			return
		case err != nil:
			log.Error("auth: passcode lookup failed", slog.Any("error", err))
			writeError(ctx, w, http.StatusInternalServerError, "passcode lookup failed")
			return
		case !ok:
			log.Warn("auth: invalid passcode",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="resume-agent" error="invalid_token"`)
			writeError(ctx, w, http.StatusUnauthorized, "invalid passcode")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
