package backend

import (
	"errors"
	"runtime"
	"testing"

	"gomemd/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopBackend struct{}

func (nopBackend) ExecuteCommand(protocol.Command) (protocol.CommandResult, string) {
	return protocol.CommandInvalid, ""
}

func (nopBackend) Close() error { return nil }

func TestRegisterAndOpen(t *testing.T) {
	var got Options
	Register("Test-Open", func(opts Options) (protocol.Backend, error) {
		got = opts
		return nopBackend{}, nil
	})

	assert.Contains(t, Names(), "test-open")

	b, err := Open("TEST-OPEN", Options{SimFixture: "fixture.yml"})
	require.NoError(t, err)
	assert.IsType(t, nopBackend{}, b)
	assert.Equal(t, "fixture.yml", got.SimFixture)
}

func TestOpenFactoryError(t *testing.T) {
	boom := errors.New("no device")
	Register("test-failing", func(Options) (protocol.Backend, error) {
		return nil, boom
	})

	_, err := Open("test-failing", Options{})
	assert.ErrorIs(t, err, boom)
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("does-not-exist", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestRegisterPanics(t *testing.T) {
	Register("test-dup", func(Options) (protocol.Backend, error) { return nopBackend{}, nil })

	assert.Panics(t, func() {
		Register("TEST-DUP", func(Options) (protocol.Backend, error) { return nopBackend{}, nil })
	})
	assert.Panics(t, func() {
		Register("test-nil", nil)
	})
}

func TestCandidates(t *testing.T) {
	var tests = []struct {
		name     string
		explicit string
		order    []string
		want     []string
	}{
		{"order only", "", []string{"linux", "sim"}, []string{"linux", "sim"}},
		{"explicit first", "sim", []string{"linux"}, []string{"sim", "linux"}},
		{"duplicates dropped", "Linux", []string{"linux", " sim ", "SIM", ""}, []string{"linux", "sim"}},
		{"nothing", "", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Candidates(tt.explicit, tt.order))
		})
	}
}

func TestPlatformDefault(t *testing.T) {
	assert.Equal(t, runtime.GOOS, PlatformDefault())
}
