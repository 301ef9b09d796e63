package canopen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/angelodlfrtr/go-roda"
	"github.com/angelodlfrtr/go-roda/od"
	"github.com/angelodlfrtr/go-roda/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newLocalDictionary is the EDS view of the remote node. It believes 0x2002
// is writeable and knows 0x2003, which the node does not implement.
func newLocalDictionary(t *testing.T) *od.ObjectDictionary {
	dic := od.New()
	require.NoError(t, dic.AddVariable(0x1000, "Device type", od.Unsigned32, od.AttrRead, nil))
	require.NoError(t, dic.AddVariable(0x1008, "Manufacturer device name", od.VisibleString, od.AttrRead, nil))
	require.NoError(t, dic.AddVariable(0x1017, "Producer heartbeat time", od.Unsigned16, od.AttrRW, nil))
	require.NoError(t, dic.AddVariable(0x2001, "Label", od.VisibleString, od.AttrRW, nil))
	require.NoError(t, dic.AddVariable(0x2002, "Locked", od.Unsigned8, od.AttrRW, nil))
	require.NoError(t, dic.AddVariable(0x2003, "Spare", od.Unsigned8, od.AttrRW, nil))
	return dic
}

func newProviderClient(t *testing.T, maxResponseSize int) (*sdoFixture, *roda.ClientBase) {
	f := newSDOFixture(t, 3, newLocalDictionary(t))
	f.node.SDOClient.Timeout = 20 * time.Millisecond

	local := NewProvider(f.node, provider.LocalConfig{MaxResponseSize: maxResponseSize})
	client := roda.NewClientBase(roda.ClientConfig{Name: "canopen-test"})
	require.NoError(t, client.Connect(local))
	require.True(t, client.WaitForRODAItfReady(time.Second))

	t.Cleanup(func() {
		client.Disconnect()
		assert.NoError(t, local.Close())
	})
	return f, client
}

func TestProvider_EnumerateAndInfo(t *testing.T) {
	_, client := newProviderClient(t, 0)

	indices, code, err := client.Enumerate(0x0000, 0xFFFF, od.AttrRW)
	require.NoError(t, err)
	assert.True(t, code.OK())
	assert.Equal(t, []uint16{0x1000, 0x1008, 0x1017, 0x2001, 0x2002, 0x2003}, indices)

	info, code, err := client.GetObjectInfo(0x1017, false)
	require.NoError(t, err)
	require.True(t, code.OK())
	assert.Equal(t, "Producer heartbeat time", info.Name)
}

func TestProvider_ReadWrite(t *testing.T) {
	f, client := newProviderClient(t, 0)

	resp, err := client.Read(0x1008, 0, false)
	require.NoError(t, err)
	require.True(t, resp.Result.OK())
	assert.Equal(t, "remote access node", string(resp.Data))

	code, err := client.Write(0x1017, 0, false, []byte{0x64, 0x00})
	require.NoError(t, err)
	assert.True(t, code.OK())
	data, _ := f.remote.Read(0x1017, 0, od.AttrRW)
	assert.Equal(t, []byte{0x64, 0x00}, data)
}

func TestProvider_Aborts(t *testing.T) {
	_, client := newProviderClient(t, 0)

	// Refused by the EDS view, nothing is sent.
	code, err := client.Write(0x1000, 0, false, []byte{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, od.AbortReadOnly, code)

	resp, err := client.Read(0x4000, 0, false)
	require.NoError(t, err)
	assert.Equal(t, od.AbortNotExist, resp.Result)

	// Refused by the node.
	code, err = client.Write(0x2002, 0, false, []byte{0})
	require.NoError(t, err)
	assert.Equal(t, od.AbortReadOnly, code)

	resp, err = client.Read(0x2003, 0, false)
	require.NoError(t, err)
	assert.Equal(t, od.AbortNotExist, resp.Result)

	resp, err = client.Read(0x2001, 0, true)
	require.NoError(t, err)
	assert.Equal(t, od.AbortUnsupportedAccess, resp.Result)
}

func TestProvider_NodeUnreachable(t *testing.T) {
	f, client := newProviderClient(t, 0)
	require.NoError(t, f.server.Stop())

	resp, err := client.Read(0x1000, 0, false)
	require.NoError(t, err)
	assert.Equal(t, od.AbortTimeout, resp.Result)
}

func TestProvider_ResponseTooSmall(t *testing.T) {
	_, client := newProviderClient(t, 40)

	resp, err := client.Read(0x2001, 0, false)
	require.NoError(t, err)
	assert.Equal(t, od.AbortOutOfMem, resp.Result)
}
