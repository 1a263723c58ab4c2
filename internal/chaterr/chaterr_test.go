package chaterr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{"bad_request:api", http.StatusBadRequest},
		{"unauthorized:chat", http.StatusUnauthorized},
		{"forbidden:chat", http.StatusForbidden},
		{"not_found:chat", http.StatusNotFound},
		{"rate_limit:chat", http.StatusTooManyRequests},
		{"offline:chat", http.StatusServiceUnavailable},
		{"bad_request:activate_gateway", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			e := New(tc.code)
			assert.Equal(t, tc.code, e.Code())
			assert.Equal(t, tc.status, e.Status())
			assert.NotEmpty(t, e.Message())
		})
	}
}

func TestNewUnknownCode(t *testing.T) {
	assert.Equal(t, "offline:api", New("exploded").Code())
	assert.Equal(t, "offline:api", New("weird:chat").Code())
}

func TestWriteHTTP(t *testing.T) {
	rec := httptest.NewRecorder()
	New("rate_limit:chat").WithCause("quota").WriteHTTP(rec)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit:chat", body["code"])
	assert.Equal(t, "quota", body["cause"])
	assert.Contains(t, body["message"], "maximum number of messages")

	decoded := Decode(rec.Code, rec.Body.Bytes())
	assert.Equal(t, "rate_limit:chat", decoded.Code())
	assert.Equal(t, "quota", decoded.Cause)
}

func TestDecodeNonJSON(t *testing.T) {
	e := Decode(http.StatusForbidden, []byte("nope\n"))
	assert.Equal(t, Forbidden, e.Type)
	assert.Equal(t, "nope", e.Cause)
}

func TestAsUnwrapsChain(t *testing.T) {
	inner := errors.New("db down")
	err := fmt.Errorf("load chat: %w", Wrap("offline:chat", inner))

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "offline:chat", e.Code())
	assert.ErrorIs(t, err, inner)

	_, ok = As(inner)
	assert.False(t, ok)
}
