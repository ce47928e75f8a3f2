package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader — заголовок с подписью уведомления шлюза.
const SignatureHeader = "X-Signature"

// DefaultTolerance — допустимое расхождение времени подписи и времени получения.
const DefaultTolerance = 5 * time.Minute

// ErrInvalidSignature возвращается, если подпись уведомления отсутствует, повреждена,
// устарела или не совпадает.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ComputeSignature вычисляет HMAC-SHA256(secret, "{timestamp}.{payload}") в hex.
func ComputeSignature(timestamp int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign формирует значение заголовка подписи: t={timestamp},v1={signature}.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeSignature(ts, payload, secret))
}

// Verify проверяет заголовок подписи. Допускается несколько значений v1, чтобы шлюз
// мог подписывать старым и новым секретом во время ротации.
func Verify(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	if header == "" || secret == "" {
		return ErrInvalidSignature
	}

	var (
		ts   int64
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = v
		case "v1":
			sigs = append(sigs, value)
		}
	}

	if ts == 0 || len(sigs) == 0 {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := []byte(ComputeSignature(ts, payload, secret))
	for _, sig := range sigs {
		if hmac.Equal(expected, []byte(sig)) {
			return nil
		}
	}

	return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
}
