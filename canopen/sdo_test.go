package canopen

import (
	"sync"
	"testing"
	"time"

	"github.com/angelodlfrtr/go-can"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/angelodlfrtr/go-roda/od"
)

var (
	expectFuncSDOWithoutFilter = func(frm *can.Frame) bool {
		return true
	}
	expectFuncSDOMissingFirst = func(frm *can.Frame) bool {
		return (frm.Data[0] & 0xE0) == byte(0x60)
	}
)

type send_response struct {
	wait  time.Duration
	frame can.Frame
}

type networkMock struct {
	mu                 sync.Mutex
	networkFramesChans []*NetworkFramesChan
}

func (n *networkMock) AcquireFramesChan(filterFunc networkFramesChanFilterFunc) *NetworkFramesChan {
	frameChan := &NetworkFramesChan{
		ID:     uuid.Must(uuid.NewRandom()).String(),
		Filter: filterFunc,
		C:      make(chan *can.Frame, 4),
	}

	n.mu.Lock()
	n.networkFramesChans = append(n.networkFramesChans, frameChan)
	n.mu.Unlock()

	return frameChan
}

func (n *networkMock) ReleaseFramesChan(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for idx, fc := range n.networkFramesChans {
		if fc.ID == id {
			fc.close()
			n.networkFramesChans = append(n.networkFramesChans[:idx], n.networkFramesChans[idx+1:]...)
			return
		}
	}
}

func (n *networkMock) ReceiveFrame(frame *can.Frame) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.networkFramesChans {
		ch.Publish(frame)
	}
}

type nodeMock struct {
	mock.Mock

	id      int
	network networkMock
	wg      sync.WaitGroup
}

func (n *nodeMock) GetId() int {
	return n.id
}

func (n *nodeMock) Send(arbID uint32, data []byte) error {
	args := n.Called(arbID, data)
	sendResponseList := args.Get(1).([]send_response)
	n.wg.Add(1)
	go func(sendResponseListInternal []send_response) {
		defer n.wg.Done()
		for _, response := range sendResponseListInternal {
			time.Sleep(response.wait)
			frame := response.frame
			n.network.ReceiveFrame(&frame)
		}
	}(sendResponseList)
	return args.Error(0)
}

func (n *nodeMock) AcquireFramesChanFromNetwork(filterFunc networkFramesChanFilterFunc) *NetworkFramesChan {
	return n.network.AcquireFramesChan(filterFunc)
}

func (n *nodeMock) ReleaseFramesChanFromNetwork(id string) {
	n.network.ReleaseFramesChan(id)
}

var downloadLine = []byte{0x23, 0xE8, 0x03, 0x02, 0x4C, 0x69, 0x6E, 0x65}

func newNodeMock(responses ...send_response) *nodeMock {
	node := &nodeMock{}
	node.On("Send", uint32(0x600), downloadLine).Return(nil, responses)
	return node
}

func TestSDOClient_Send(t *testing.T) {
	response := can.Frame{ArbitrationID: 0x580, Data: [8]byte{0x60, 0xE8, 0x03, 0x02, 0x00, 0x00, 0x00, 0x00}}
	wrongArbitration := can.Frame{ArbitrationID: 0x581, Data: response.Data}
	wrongCommand := can.Frame{ArbitrationID: 0x580, Data: [8]byte{}}
	aborted := can.Frame{ArbitrationID: 0x580, Data: [8]byte{0x80, 0xE8, 0x03, 0x02, 0x02, 0x00, 0x01, 0x06}}

	tests := []struct {
		name       string
		responses  []send_response
		expectFunc networkFramesChanFilterFunc
		want       *can.Frame
		wantErr    bool
	}{
		{
			name:       "SDO get Frame without Response",
			expectFunc: nil,
			want:       nil,
		},
		{
			name:       "SDO get Frame immediately",
			responses:  []send_response{{wait: time.Millisecond, frame: response}},
			expectFunc: &expectFuncSDOWithoutFilter,
			want:       &response,
		},
		{
			name:       "SDO get wrong arbitration",
			responses:  []send_response{{wait: 20 * time.Millisecond, frame: wrongArbitration}},
			expectFunc: &expectFuncSDOWithoutFilter,
			wantErr:    true,
		},
		{
			name: "SDO get right arbitration on second Frame",
			responses: []send_response{
				{wait: 20 * time.Millisecond, frame: wrongArbitration},
				{wait: 20 * time.Millisecond, frame: response},
			},
			expectFunc: &expectFuncSDOWithoutFilter,
			want:       &response,
		},
		{
			name: "SDO get right Frame missing first",
			responses: []send_response{
				{wait: 20 * time.Millisecond, frame: wrongCommand},
				{wait: 20 * time.Millisecond, frame: response},
			},
			expectFunc: &expectFuncSDOMissingFirst,
			want:       &response,
		},
		{
			name:       "SDO abort passes the filter",
			responses:  []send_response{{wait: time.Millisecond, frame: aborted}},
			expectFunc: &expectFuncSDOMissingFirst,
			want:       &aborted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newNodeMock(tt.responses...)
			defer node.wg.Wait()

			sdoClient := NewSDOClient(node)
			sdoClient.Timeout = 100 * time.Millisecond
			sdoClient.RetryCount = 1
			got, err := sdoClient.Send(downloadLine, tt.expectFunc, nil, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSDOTimeout)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// sdoFixture connects an SDO client and server through a MemoryBus.
type sdoFixture struct {
	remote        *od.ObjectDictionary
	serverNetwork *Network
	server        *SDOServer
	clientNetwork *Network
	node          *Node
}

func newRemoteDictionary(t *testing.T) *od.ObjectDictionary {
	dic := od.New()
	require.NoError(t, dic.AddVariable(0x1000, "Device type", od.Unsigned32, od.AttrRead, []byte{0x91, 0x01, 0x0F, 0x00}))
	require.NoError(t, dic.AddVariable(0x1008, "Manufacturer device name", od.VisibleString, od.AttrRead, []byte("remote access node")))
	require.NoError(t, dic.AddVariable(0x1017, "Producer heartbeat time", od.Unsigned16, od.AttrRW, []byte{0xE8, 0x03}))
	require.NoError(t, dic.AddVariable(0x2001, "Label", od.VisibleString, od.AttrRW, make([]byte, 32)))
	require.NoError(t, dic.AddVariable(0x2002, "Locked", od.Unsigned8, od.AttrRead, []byte{1}))
	return dic
}

func newSDOFixture(t *testing.T, nodeID int, local *od.ObjectDictionary) *sdoFixture {
	bus := NewMemoryBus()
	f := &sdoFixture{remote: newRemoteDictionary(t)}

	f.serverNetwork = NewNetwork(bus.Endpoint())
	f.serverNetwork.Run()
	f.server = NewSDOServer(f.serverNetwork, nodeID, f.remote)

	f.clientNetwork = NewNetwork(bus.Endpoint())
	f.clientNetwork.Run()
	f.node = NewNode(nodeID, f.clientNetwork, local)
	f.node.Init()
	f.node.SDOClient.Timeout = 200 * time.Millisecond
	f.node.SDOClient.RetryCount = 2

	t.Cleanup(func() {
		assert.NoError(t, f.server.Stop())
		assert.NoError(t, f.serverNetwork.Stop())
		assert.NoError(t, f.clientNetwork.Stop())
	})
	return f
}

func TestSDOClient_ReadExpedited(t *testing.T) {
	f := newSDOFixture(t, 5, nil)

	data, err := f.node.SDOClient.Read(0x1000, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x91, 0x01, 0x0F, 0x00}, data)

	data, err = f.node.SDOClient.Read(0x1017, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE8, 0x03}, data)
}

func TestSDOClient_ReadSegmented(t *testing.T) {
	f := newSDOFixture(t, 5, nil)

	data, err := f.node.SDOClient.Read(0x1008, 0)
	require.NoError(t, err)
	assert.Equal(t, "remote access node", string(data))
}

func TestSDOClient_Write(t *testing.T) {
	f := newSDOFixture(t, 7, nil)

	require.NoError(t, f.node.SDOClient.Write(0x1017, 0, false, []byte{0x10, 0x27}))
	data, code := f.remote.Read(0x1017, 0, od.AttrRW)
	require.True(t, code.OK())
	assert.Equal(t, []byte{0x10, 0x27}, data)

	label := []byte("a label spanning several segments")[:32]
	require.NoError(t, f.node.SDOClient.Write(0x2001, 0, false, label))
	data, code = f.remote.Read(0x2001, 0, od.AttrRW)
	require.True(t, code.OK())
	assert.Equal(t, label, data)

	require.NoError(t, f.node.SDOClient.Write(0x1017, 0, true, []byte{0x20, 0x4E}))
	data, _ = f.remote.Read(0x1017, 0, od.AttrRW)
	assert.Equal(t, []byte{0x20, 0x4E}, data)
}

func TestSDOClient_Abort(t *testing.T) {
	f := newSDOFixture(t, 7, nil)

	_, err := f.node.SDOClient.Read(0x3000, 0)
	assert.Equal(t, od.AbortNotExist, errors.Cause(err))

	err = f.node.SDOClient.Write(0x2002, 0, false, []byte{0})
	assert.Equal(t, od.AbortReadOnly, errors.Cause(err))

	err = f.node.SDOClient.Write(0x1017, 0, false, []byte{1, 2, 3})
	assert.Equal(t, od.AbortDataLong, errors.Cause(err))

	err = f.node.SDOClient.Write(0x2001, 0, false, make([]byte, 40))
	assert.Equal(t, od.AbortDataLong, errors.Cause(err))
}

func TestSDOClient_NoServer(t *testing.T) {
	f := newSDOFixture(t, 7, nil)

	other := NewNode(9, f.clientNetwork, nil)
	other.Init()
	other.SDOClient.Timeout = 10 * time.Millisecond
	other.SDOClient.RetryCount = 2

	_, err := other.SDOClient.Read(0x1000, 0)
	assert.ErrorIs(t, err, ErrSDOTimeout)
}
