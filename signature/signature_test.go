package signature

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignFormat(t *testing.T) {
	header := Sign([]byte(`{"eventId":"evt-1"}`), "secret", 1700000000)

	assert.Contains(t, header, "t=1700000000,v1=")

	ts, v1, err := Parse(header)
	assert.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)
	assert.NotEmpty(t, v1)
}

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"eventId":"evt-1"}`)

	a := Sign(payload, "secret", 1700000000)
	b := Sign(payload, "secret", 1700000000)
	assert.Equal(t, a, b)

	// A different timestamp changes the signature even for identical payloads
	c := Sign(payload, "secret", 1700000001)
	assert.NotEqual(t, a, c)
}

func TestVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"eventId":"evt-1","data":{"candidateId":123}}`)
	now := time.Now()

	header := Sign(payload, "secret", now.Unix())

	assert.NoError(t, Verify(header, payload, "secret", now, DefaultSkewWindow))
}

func TestVerifyTamperedPayload(t *testing.T) {
	payload := []byte(`{"amount":100}`)
	now := time.Now()
	header := Sign(payload, "secret", now.Unix())

	tampered := []byte(`{"amount":999}`)
	err := Verify(header, tampered, "secret", now, DefaultSkewWindow)
	assert.True(t, errors.Is(err, ErrSignatureMismatch))
}

func TestVerifyWrongSecret(t *testing.T) {
	payload := []byte(`{"eventId":"evt-1"}`)
	now := time.Now()
	header := Sign(payload, "secret", now.Unix())

	err := Verify(header, payload, "other-secret", now, DefaultSkewWindow)
	assert.True(t, errors.Is(err, ErrSignatureMismatch))
}

func TestVerifyTamperedTimestamp(t *testing.T) {
	payload := []byte(`{"eventId":"evt-1"}`)
	now := time.Now()
	header := Sign(payload, "secret", now.Unix())

	ts, v1, err := Parse(header)
	assert.NoError(t, err)

	// Re-stamping the header without re-signing must fail
	forged := fmt.Sprintf("t=%d,v1=%s", ts+60, v1)
	err = Verify(forged, payload, "secret", now.Add(60*time.Second), DefaultSkewWindow)
	assert.True(t, errors.Is(err, ErrSignatureMismatch))
}

func TestVerifySkewWindow(t *testing.T) {
	payload := []byte(`{"eventId":"evt-1"}`)
	now := time.Now()

	tests := []struct {
		name     string
		signedAt time.Time
		wantErr  error
	}{
		{name: "Fresh signature", signedAt: now},
		{name: "Just inside past window", signedAt: now.Add(-4 * time.Minute)},
		{name: "Just inside future window", signedAt: now.Add(4 * time.Minute)},
		{name: "Too old", signedAt: now.Add(-6 * time.Minute), wantErr: ErrTimestampOutsideWindow},
		{name: "Too far in future", signedAt: now.Add(6 * time.Minute), wantErr: ErrTimestampOutsideWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := Sign(payload, "secret", tt.signedAt.Unix())
			err := Verify(header, payload, "secret", now, DefaultSkewWindow)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifyCustomSkew(t *testing.T) {
	payload := []byte("{}")
	now := time.Now()
	header := Sign(payload, "secret", now.Add(-2*time.Minute).Unix())

	assert.NoError(t, Verify(header, payload, "secret", now, 3*time.Minute))
	err := Verify(header, payload, "secret", now, 1*time.Minute)
	assert.True(t, errors.Is(err, ErrTimestampOutsideWindow))
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "Empty", header: ""},
		{name: "Missing v1", header: "t=1700000000"},
		{name: "Missing t", header: "v1=abc"},
		{name: "Non-numeric timestamp", header: "t=abc,v1=def"},
		{name: "No separators", header: "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.header)
			assert.True(t, errors.Is(err, ErrMalformedHeader))
		})
	}
}
