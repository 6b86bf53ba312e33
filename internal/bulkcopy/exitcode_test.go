package bulkcopy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeExitCode(t *testing.T) {
	tests := []struct {
		name        string
		code        int
		success     bool
		fatal       bool
		recoverable bool
		unknown     bool
		errors      int
	}{
		{name: "no change", code: 0, success: true},
		{name: "copied", code: 1, success: true},
		{name: "extras only", code: 2},
		{name: "copied with extras", code: 3},
		{name: "mismatch", code: 4},
		{name: "failed files", code: 8, recoverable: true, errors: 1},
		{name: "copied with failures", code: 9, recoverable: true, errors: 1},
		{name: "fatal", code: 16, fatal: true, errors: 1},
		{name: "fatal and failed", code: 24, fatal: true, errors: 2},
		{name: "unknown above range", code: 64, recoverable: true, unknown: true, errors: 1},
		{name: "unknown negative", code: -1, recoverable: true, unknown: true, errors: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DecodeExitCode(tt.code)
			assert.Equal(t, tt.success, s.Success())
			assert.Equal(t, tt.fatal, s.Fatal())
			assert.Equal(t, tt.recoverable, s.Recoverable())
			assert.Equal(t, tt.unknown, s.Unknown)
			assert.Len(t, s.Errors(), tt.errors)
			assert.NotEmpty(t, s.Summary())
		})
	}
}

func TestDecodeExitCode_FlagsFollowBits(t *testing.T) {
	s := DecodeExitCode(ExitFatal | ExitFailed)
	require.Len(t, s.Flags, 2)
	assert.Equal(t, ExitFatal, s.Flags[0].Bit)
	assert.Equal(t, ExitFailed, s.Flags[1].Bit)

	errs := s.Errors()
	require.Len(t, errs, 2)
	assert.True(t, errs[0].Fatal)
	assert.False(t, errs[0].Recoverable)
	assert.True(t, errs[1].Recoverable)
	for _, e := range errs {
		assert.Equal(t, 24, e.Code)
	}
}
