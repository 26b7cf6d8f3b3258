package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/krobus00/signal-order-service/internal/constant"
)

var (
	errAuthKeyMissing  = errors.New("auth key is required")
	errAuthKeyInvalid  = errors.New("invalid authentication key")
	errAuthKeyInactive = errors.New("auth key is inactive")
	errAuthKeyExpired  = errors.New("auth key is expired")
)

func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.validateAuthKey(r.Header.Get(constant.HeaderAuthKey)); err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r)
	}
}

// validateAuthKey accepts the shared auth key or any active, unexpired api key.
func (h *Handler) validateAuthKey(rawKey string) error {
	key := strings.TrimSpace(rawKey)
	if key == "" {
		return errAuthKeyMissing
	}

	if shared := strings.TrimSpace(h.cfg.AuthKey); shared != "" && subtle.ConstantTimeCompare([]byte(key), []byte(shared)) == 1 {
		return nil
	}

	now := h.now()
	for _, candidate := range h.cfg.APIKeys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAuthKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		if err != nil {
			return errAuthKeyInvalid
		}
		if hasExpiry && !now.Before(expiredAt) {
			return errAuthKeyExpired
		}

		return nil
	}

	return errAuthKeyInvalid
}

// parseExpiry accepts RFC3339 timestamps or a bare date, which expires at the end of
// that day.
func parseExpiry(value any) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, nil
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, false, err
		}

		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
