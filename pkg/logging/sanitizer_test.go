package logging

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeConnectionString(t *testing.T) {
	sanitized := SanitizeConnectionString("host=db port=5432 password=s3cret user=app")
	assert.NotContains(t, sanitized, "s3cret")
	assert.Contains(t, sanitized, RedactedText)

	sanitized = SanitizeConnectionString("postgres://app:s3cret@db:5432/engine")
	assert.NotContains(t, sanitized, "s3cret")

	assert.Equal(t, "", SanitizeConnectionString(""))
}

func TestSanitizeError(t *testing.T) {
	err := errors.New("dial failed: postgres://app:s3cret@db:5432/engine refused")
	sanitized := SanitizeError(err)
	assert.NotContains(t, sanitized, "s3cret")

	err = errors.New("request rejected: Bearer eyJhbGc.eyJzdWIi.c2lnbmF0dXJl expired")
	sanitized = SanitizeError(err)
	assert.NotContains(t, sanitized, "eyJzdWIi")
	assert.Contains(t, sanitized, "Bearer "+RedactedText)

	assert.Equal(t, "", SanitizeError(nil))
}

func TestSanitizeHeaders(t *testing.T) {
	headers := map[string]string{
		"Authorization": "Bearer token",
		"Cookie":        "session=abc",
		"X-Api-Key":     "key-123",
		"Content-Type":  "application/json",
	}

	sanitized := SanitizeHeaders(headers)
	assert.Equal(t, RedactedText, sanitized["Authorization"])
	assert.Equal(t, RedactedText, sanitized["Cookie"])
	assert.Equal(t, RedactedText, sanitized["X-Api-Key"])
	assert.Equal(t, "application/json", sanitized["Content-Type"])

	// The input is never mutated.
	assert.Equal(t, "Bearer token", headers["Authorization"])

	assert.Nil(t, SanitizeHeaders(nil))
}

func TestSanitizeBody(t *testing.T) {
	body := `{"user":"app","password=s3cret":"x"}`
	assert.NotContains(t, SanitizeBody(body), "s3cret")

	long := strings.Repeat("x", MaxBodyLogLength+100)
	sanitized := SanitizeBody(long)
	assert.Len(t, sanitized, MaxBodyLogLength+3)
	assert.True(t, strings.HasSuffix(sanitized, "..."))

	assert.Equal(t, "", SanitizeBody(""))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abc...", TruncateString("abcdef", 3))
}
