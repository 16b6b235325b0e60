package status

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := ErrTransferIneligible.WithMeta("reason", ReasonLocked)

	assert.True(t, errors.Is(err, ErrTransferIneligible))
	assert.False(t, errors.Is(err, ErrTicketLocked))

	wrapped := fmt.Errorf("create transfer: %w", err)
	assert.True(t, errors.Is(wrapped, ErrTransferIneligible))
	assert.Equal(t, ReasonLocked, MetaOf(wrapped, "reason"))
	assert.Equal(t, CodeTransferIneligible, CodeOf(wrapped))
}

func TestError_WithMetaDoesNotMutateSentinel(t *testing.T) {
	_ = ErrOutsideCheckInWindow.WithMeta("reason", ReasonNotOpen)

	assert.Nil(t, ErrOutsideCheckInWindow.Metadata)
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("collision")
	err := Wrap(ErrCodeGenerationExhausted, cause)

	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrCodeGenerationExhausted)
	assert.Contains(t, err.Error(), "collision")
}

func TestError_WithMessage(t *testing.T) {
	err := ErrDuplicateCheckIn.WithMessage("ticket already checked in at %s", "20:15")

	assert.Equal(t, "ticket already checked in at 20:15", err.Error())
	assert.Equal(t, CodeDuplicateCheckIn, err.Code)
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ErrValidation, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusForbidden},
		{ErrInvalidCode, http.StatusNotFound},
		{ErrTransferExpired, http.StatusGone},
		{ErrInsufficientStock, http.StatusConflict},
		{ErrInvalidSignature, http.StatusUnauthorized},
		{ErrCodeGenerationExhausted, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("boom")))
	assert.Equal(t, "", MetaOf(errors.New("boom"), "reason"))
}
