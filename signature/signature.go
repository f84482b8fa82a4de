// Package signature implements the timestamped HMAC scheme used to sign
// webhook payloads and to verify them on the receiving side.
//
// Header format:
//
//	t=<unix seconds>,v1=<base64(HMAC-SHA256(secret, "<unix seconds>.<payload>"))>
//
// The timestamp is recomputed at every delivery attempt, so the signature is
// always fresh relative to the attempt, not the original event. Receivers
// recompute the HMAC from the t value and the raw body, compare in constant
// time, and reject timestamps outside their clock-skew window for replay
// protection.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Verification errors.
var (
	ErrMalformedHeader        = errors.New("malformed signature header")
	ErrTimestampOutsideWindow = errors.New("timestamp outside allowed window")
	ErrSignatureMismatch      = errors.New("signature mismatch")
)

// DefaultSkewWindow is the replay-protection window applied by Verify when
// the caller passes a non-positive window.
const DefaultSkewWindow = 5 * time.Minute

// Sign computes the signature header for payload at the given unix timestamp.
func Sign(payload []byte, secret string, timestampSeconds int64) string {
	return fmt.Sprintf("t=%d,v1=%s", timestampSeconds, compute(payload, secret, timestampSeconds))
}

// compute returns base64(HMAC-SHA256(secret, "<ts>.<payload>")).
func compute(payload []byte, secret string, timestampSeconds int64) string {
	ts := strconv.FormatInt(timestampSeconds, 10)

	msg := make([]byte, 0, len(ts)+1+len(payload))
	msg = append(msg, ts...)
	msg = append(msg, '.')
	msg = append(msg, payload...)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Parse splits a signature header into its timestamp and v1 signature parts.
func Parse(header string) (timestampSeconds int64, v1 string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, "", ErrMalformedHeader
		}
		switch k {
		case "t":
			timestampSeconds, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", ErrMalformedHeader
			}
		case "v1":
			v1 = v
		}
	}
	if timestampSeconds == 0 || v1 == "" {
		return 0, "", ErrMalformedHeader
	}
	return timestampSeconds, v1, nil
}

// Verify checks a signature header against the payload and shared secret.
//
// It recomputes the HMAC using the t value from the header, compares it to v1
// in constant time, and rejects timestamps further than skew from now.
// A non-positive skew falls back to DefaultSkewWindow.
func Verify(header string, payload []byte, secret string, now time.Time, skew time.Duration) error {
	if skew <= 0 {
		skew = DefaultSkewWindow
	}

	ts, v1, err := Parse(header)
	if err != nil {
		return err
	}

	signedAt := time.Unix(ts, 0)
	if signedAt.Before(now.Add(-skew)) || signedAt.After(now.Add(skew)) {
		return ErrTimestampOutsideWindow
	}

	expected := compute(payload, secret, ts)
	if !hmac.Equal([]byte(v1), []byte(expected)) {
		return ErrSignatureMismatch
	}
	return nil
}
