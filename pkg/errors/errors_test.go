package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeFamilyFull, CodeOf(New(CodeFamilyFull, "full")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))

	// Codes survive wrapping with fmt.Errorf.
	wrapped := fmt.Errorf("during accept: %w", New(CodeInviteExpired, "expired"))
	assert.Equal(t, CodeInviteExpired, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeInviteExpired))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeInternal, "query failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRetryable(t *testing.T) {
	assert.True(t, LockTimeout(errors.New("lock_timeout")).Retryable())
	assert.False(t, New(CodeFamilyFull, "full").Retryable())
}
