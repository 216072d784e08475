package family

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

func TestAvailableSlots(t *testing.T) {
	tests := []struct {
		name       string
		maxMembers int
		accepted   int
		pending    int
		want       int
	}{
		{"empty family", 4, 0, 0, 3},
		{"owner only counts one seat", 2, 0, 0, 1},
		{"accepted members consume seats", 4, 2, 0, 1},
		{"pending invites reserve seats", 4, 1, 2, 0},
		{"overcommit goes negative", 2, 2, 1, -2},
		{"solo plan has no member seats", 1, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvailableSlots(tt.maxMembers, tt.accepted, tt.pending))
		})
	}
}

func TestCheckInviteCapacity(t *testing.T) {
	t.Run("free seat allows invite", func(t *testing.T) {
		assert.NoError(t, checkInviteCapacity(4, 1, 1))
	})

	t.Run("full pool rejects", func(t *testing.T) {
		err := checkInviteCapacity(4, 2, 1)
		assert.Equal(t, apperrors.CodeNoCapacity, apperrors.CodeOf(err))
	})

	t.Run("pending cap rejects before pool check", func(t *testing.T) {
		err := checkInviteCapacity(10, 0, 5)
		assert.Equal(t, apperrors.CodeTooManyPending, apperrors.CodeOf(err))
	})
}
