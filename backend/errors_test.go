package backend

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	connErr := fmt.Errorf("get item:1: %w", &ConnectionError{Op: "dial", Addr: "localhost:6379", Err: io.EOF})
	assert.ErrorIs(t, connErr, ErrConnection)
	assert.ErrorIs(t, connErr, io.EOF)
	assert.NotErrorIs(t, connErr, ErrProtocol)

	protoErr := &ProtocolError{Op: "ping", Detail: `unexpected reply "NOPE"`}
	assert.ErrorIs(t, protoErr, ErrProtocol)
	assert.Equal(t, `ping: unexpected reply "NOPE"`, protoErr.Error())

	var reply *ReplyError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", &ReplyError{Op: "set", Msg: "ERR oom"}), &reply))
	assert.Equal(t, "ERR oom", reply.Msg)
}

func TestConnectionErrorClosed(t *testing.T) {
	err := &ConnectionError{Op: "get", Addr: "127.0.0.1:1"}
	assert.Equal(t, "get 127.0.0.1:1: connection closed", err.Error())
	assert.ErrorIs(t, err, ErrConnection)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "binary", KindBinary.String())
	assert.Equal(t, "standard", KindStandard.String())
	assert.Equal(t, "mock", KindMock.String())
	assert.Equal(t, "none", KindNone.String())
}
