package roda

import (
	"bytes"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelodlfrtr/go-roda/cli"
	"github.com/angelodlfrtr/go-roda/od"
)

func emptyEnum(req Request) []Response {
	return []Response{reply(req, NewObjectEnumResponse(od.AbortNone, nil, true))}
}

func TestMultiClientRegister(t *testing.T) {
	multiClient, err := NewMultiClient(nil, MultiClientConfig{})
	require.NoError(t, err)

	f1 := newFakeRODA("1", nil)
	f2 := newFakeRODA("2", nil)
	require.NoError(t, multiClient.Register(f2, 0x20))
	require.NoError(t, multiClient.Register(f1, 1))

	err = multiClient.Register(newFakeRODA("x", nil), 1)
	assert.True(t, errors.Is(err, errors.AlreadyExists))
	assert.Equal(t, []uint32{1, 0x20}, multiClient.IDs())

	assert.True(t, errors.Is(multiClient.Register(nil, 3), errors.NotValid))
	// Unknown IDs are ignored.
	assert.NoError(t, multiClient.Unregister(3))
	assert.Equal(t, []uint32{1, 0x20}, multiClient.IDs())

	// Registration alone does not connect.
	f1.AssertNotCalled(t, "RegisterNotifiable")
	_, connected := multiClient.CurrentID()
	assert.False(t, connected)

	require.NoError(t, multiClient.Unregister(1))
	require.NoError(t, multiClient.Unregister(1))
	require.NoError(t, multiClient.Unregister(0x20))
	multiClient.Close()
}

func TestMultiClientRegisterSameInterfaceTwice(t *testing.T) {
	multiClient, err := NewMultiClient(nil, MultiClientConfig{})
	require.NoError(t, err)

	f := newFakeRODA("1", nil)
	require.NoError(t, multiClient.Register(f, 1))
	assert.Panics(t, func() { _ = multiClient.Register(f, 2) })
	assert.Equal(t, []uint32{1}, multiClient.IDs())

	require.NoError(t, multiClient.Unregister(1))
	multiClient.Close()
}

func TestMultiClientSwitchOver(t *testing.T) {
	log := &eventLog{}
	f1 := newFakeRODA("1", log)
	f1.respond = emptyEnum
	f2 := newFakeRODA("2", log)
	f2.respond = emptyEnum

	out := &bytes.Buffer{}
	registry := cli.New(out, nil)
	multiClient, err := NewMultiClient(registry, MultiClientConfig{CommandName: "roda"})
	require.NoError(t, err)
	require.NoError(t, multiClient.Register(f1, 1))
	require.NoError(t, multiClient.Register(f2, 2))

	require.NoError(t, registry.Execute("roda 1 enum"))
	require.NoError(t, registry.Execute("roda 0x1 enum"))
	id, connected := multiClient.CurrentID()
	assert.True(t, connected)
	assert.Equal(t, uint32(1), id)
	require.NoError(t, registry.Execute("roda 2 enum"))
	id, _ = multiClient.CurrentID()
	assert.Equal(t, uint32(2), id)

	assert.Equal(t, []string{"register 1", "unregister 1", "register 2"}, log.get())
	f1.AssertNumberOfCalls(t, "RegisterNotifiable", 1)
	f1.AssertNumberOfCalls(t, "UnregisterNotifiable", 1)
	f2.AssertNumberOfCalls(t, "RegisterNotifiable", 1)
	f2.AssertNotCalled(t, "UnregisterNotifiable")

	out.Reset()
	require.NoError(t, registry.Execute("roda ids"))
	assert.Contains(t, out.String(), "1")
	assert.Contains(t, out.String(), "true")

	// Unregistering the current interface disconnects the client.
	require.NoError(t, multiClient.Unregister(2))
	f2.AssertNumberOfCalls(t, "UnregisterNotifiable", 1)
	assert.Equal(t, StateNotRegistered, multiClient.client.State())
	_, connected = multiClient.CurrentID()
	assert.False(t, connected)

	err = registry.Execute("roda 2 enum")
	assert.True(t, errors.Is(err, errors.NotFound))
	err = registry.Execute("roda 1 bogus")
	assert.True(t, errors.Is(err, errors.NotFound))

	require.NoError(t, multiClient.Unregister(1))
	multiClient.Close()
	assert.Empty(t, registry.Commands())
}

func TestMultiClientMalformedID(t *testing.T) {
	f := newFakeRODA("1", nil)
	f.respond = emptyEnum

	registry := cli.New(&bytes.Buffer{}, nil)
	multiClient, err := NewMultiClient(registry, MultiClientConfig{CommandName: "roda"})
	require.NoError(t, err)
	require.NoError(t, multiClient.Register(f, 1))

	for _, line := range []string{"roda one enum", "roda -1 enum", "roda 0x100000000 enum", "roda 1x enum"} {
		err := registry.Execute(line)
		assert.True(t, errors.Is(err, errors.NotValid), "%s: got %v", line, err)
	}
	// Nothing was connected.
	f.AssertNotCalled(t, "RegisterNotifiable")

	require.NoError(t, multiClient.Unregister(1))
	multiClient.Close()
}

func TestMultiClientNotReady(t *testing.T) {
	f := newFakeRODA("1", nil)
	f.readyOnRegister = false
	multiClient, err := NewMultiClient(nil, MultiClientConfig{RODAReadyTimeout: 10})
	require.NoError(t, err)
	require.NoError(t, multiClient.Register(f, 1))

	called := false
	err = multiClient.Do(1, func(*ClientBase) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, called)

	require.NoError(t, multiClient.Unregister(1))
	multiClient.Close()
}

func TestMultiClientCloseWithRegistrations(t *testing.T) {
	multiClient, err := NewMultiClient(nil, MultiClientConfig{})
	require.NoError(t, err)
	require.NoError(t, multiClient.Register(newFakeRODA("1", nil), 1))
	assert.Panics(t, multiClient.Close)
}

func TestSingleClient(t *testing.T) {
	f := newFakeRODA("1", nil)
	f.respond = func(req Request) []Response {
		switch req := req.(type) {
		case *ObjectInfoRequest:
			resp := NewObjectInfoResponse(od.AbortNone)
			resp.ObjectCode = od.ObjectCodeVar
			resp.DataType = od.Unsigned16
			resp.MaxNbOfSubindices = 1
			resp.InclusiveNames = true
			resp.Name = "Producer heartbeat time"
			resp.FirstSubIndex = req.FirstSubIndex
			resp.Subindices = []SubindexDescription{{DataType: od.Unsigned16, Attributes: od.AttrRW, MaxSize: 2, Name: "Producer heartbeat time"}}
			return []Response{reply(req, resp)}
		case *ReadRequest:
			return []Response{reply(req, NewReadRequestResponse(od.AbortNone, []byte{0xE8, 0x03}))}
		}
		return nil
	}

	out := &bytes.Buffer{}
	registry := cli.New(out, nil)
	singleClient, err := NewSingleClient(f, registry, SingleClientConfig{CommandName: "node"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, singleClient.State())

	_, err = NewSingleClient(newFakeRODA("2", nil), registry, SingleClientConfig{CommandName: "node"})
	assert.True(t, errors.Is(err, errors.AlreadyExists))

	require.NoError(t, registry.Execute("node read 0x1017:0"))
	assert.Contains(t, out.String(), "1000 (0x03E8)")

	// Syntax errors are reported before anything is sent.
	sent := len(f.sent)
	assert.Error(t, registry.Execute("node read 0x1017"))
	assert.Error(t, registry.Execute("node write 0x1017:0"))
	assert.Error(t, registry.Execute("node enum 0x2000-0x1000"))
	assert.Equal(t, sent, len(f.sent))

	singleClient.Close()
	assert.Empty(t, registry.Commands())
	assert.Equal(t, StateNotRegistered, singleClient.State())
}
