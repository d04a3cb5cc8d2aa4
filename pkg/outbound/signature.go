package outbound

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Notifykit-Signature"
	HeaderTimestamp = "X-Notifykit-Timestamp"
)

// Sign returns hex(HMAC-SHA256(secret, "<unix ts>.<payload>")) and the
// timestamp it was bound to.
func Sign(secret string, payload []byte, at time.Time) (string, int64, error) {
	if secret == "" {
		return "", 0, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	ts := at.Unix()
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), ts, nil
}

// Verify checks a signature produced by Sign.
func Verify(secret string, payload []byte, signature string, ts int64) bool {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	want := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
