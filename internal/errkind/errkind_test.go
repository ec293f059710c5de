package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Config, KindOf(NewConfig(errors.New("boom"))))
	assert.Equal(t, RPC, KindOf(NewRPC("https://rpc.example", errors.New("timeout"))))
	assert.Equal(t, API, KindOf(NewAPI(404, "/x", errors.New("not found"))))
	assert.Equal(t, Notifier, KindOf(NewNotifier(errors.New("telegram down"))))
	assert.Equal(t, Generic, KindOf(errors.New("plain")))
}

func TestRecoverable(t *testing.T) {
	assert.False(t, Recoverable(NewConfig(errors.New("boom"))))
	assert.True(t, Recoverable(NewRPC("e", errors.New("x"))))
	assert.True(t, Recoverable(NewGeneric(errors.New("x"))))
}

func TestRPCErrorUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	err := NewRPC("https://rpc1", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "rpc1")
}
