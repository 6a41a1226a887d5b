package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "SUCCESS", Success.String())
	assert.Equal(t, "PARTIAL_TRANSFER", PartialTransfer.String())
	assert.Equal(t, "INVALID_HANDLE", InvalidHandle.String())
	assert.Equal(t, "STATUS(99)", Status(99).String())
}

func TestErrorMatchesSentinel(t *testing.T) {
	err := Newf("memory read", TranslationFailed, "0x%X not mapped", 0x1000)

	assert.True(t, errors.Is(err, ErrTranslationFailed))
	assert.False(t, errors.Is(err, ErrPartialTransfer))
	assert.Equal(t, "memory read: address translation failed: 0x1000 not mapped", err.Error())
}

func TestErrorWithoutCause(t *testing.T) {
	err := New("create", NotInitialized, nil)
	assert.Equal(t, "create: library not initialized", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestOf(t *testing.T) {
	var tests = []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, Success},
		{"status error", New("op", Unsupported, nil), Unsupported},
		{"wrapped status error", fmt.Errorf("outer: %w", New("op", InvalidProcess, nil)), InvalidProcess},
		{"sentinel", fmt.Errorf("wrapped: %w", ErrEnumerationFailed), EnumerationFailed},
		{"foreign", errors.New("boom"), GeneralFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Of(tt.err))
		})
	}
}

func TestSentinel(t *testing.T) {
	assert.Nil(t, Success.Sentinel())
	assert.Equal(t, ErrInitFailed, InitFailed.Sentinel())
	assert.Equal(t, ErrGeneralFailure, Status(42).Sentinel())
}
