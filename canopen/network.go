package canopen

import (
	"sync"

	"github.com/angelodlfrtr/go-can"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"
)

// networkFramesChanFilterFunc selects the frames delivered to a
// NetworkFramesChan. nil accepts every frame.
type networkFramesChanFilterFunc *func(frm *can.Frame) bool

// NetworkFramesChan receives the frames of a Network matching Filter.
type NetworkFramesChan struct {
	ID     string
	Filter networkFramesChanFilterFunc
	C      chan *can.Frame

	mu     sync.Mutex
	closed bool
}

func newNetworkFramesChan(filterFunc networkFramesChanFilterFunc) *NetworkFramesChan {
	return &NetworkFramesChan{
		ID:     uuid.Must(uuid.NewRandom()).String(),
		Filter: filterFunc,
		C:      make(chan *can.Frame, 16),
	}
}

// Publish delivers frm if it passes the filter. Frames are dropped if the
// reader is not keeping up.
func (framesChan *NetworkFramesChan) Publish(frm *can.Frame) {
	if framesChan.Filter != nil && !(*framesChan.Filter)(frm) {
		return
	}
	framesChan.mu.Lock()
	defer framesChan.mu.Unlock()
	if framesChan.closed {
		return
	}
	select {
	case framesChan.C <- frm:
	default:
	}
}

func (framesChan *NetworkFramesChan) close() {
	framesChan.mu.Lock()
	defer framesChan.mu.Unlock()
	if !framesChan.closed {
		framesChan.closed = true
		close(framesChan.C)
	}
}

// Bus transports CAN frames.
type Bus interface {
	Write(frm *can.Frame) error
	ReadChan() chan *can.Frame
}

// Network dispatches the frames read from a Bus to the acquired
// NetworkFramesChans.
type Network struct {
	sync.Mutex

	Bus         Bus
	FramesChans []*NetworkFramesChan

	logger *logrus.Entry
	tomb   tomb.Tomb
}

// NewNetwork creates a Network on bus. Run starts the dispatching.
func NewNetwork(bus Bus) *Network {
	return &Network{
		Bus:    bus,
		logger: logrus.WithField("component", "canopen-network"),
	}
}

// Run starts reading frames from the bus.
func (network *Network) Run() {
	network.tomb.Go(network.loop)
}

// Stop stops reading frames and releases all frames channels.
func (network *Network) Stop() error {
	network.tomb.Kill(nil)
	err := network.tomb.Wait()

	network.Lock()
	defer network.Unlock()
	for _, framesChan := range network.FramesChans {
		framesChan.close()
	}
	network.FramesChans = nil
	return err
}

func (network *Network) loop() error {
	readChan := network.Bus.ReadChan()
	for {
		select {
		case <-network.tomb.Dying():
			return tomb.ErrDying
		case frm, ok := <-readChan:
			if !ok {
				return errors.New("bus read channel closed")
			}
			network.dispatch(frm)
		}
	}
}

func (network *Network) dispatch(frm *can.Frame) {
	network.Lock()
	defer network.Unlock()
	for _, framesChan := range network.FramesChans {
		framesChan.Publish(frm)
	}
}

// Send writes a frame with up to 8 data bytes.
func (network *Network) Send(arbID uint32, data []byte) error {
	if len(data) > 8 {
		return errors.NotValidf("frame with %d data bytes", len(data))
	}
	frm := &can.Frame{ArbitrationID: arbID}
	copy(frm.Data[:], data)
	if err := network.Bus.Write(frm); err != nil {
		return errors.Annotatef(err, "write frame 0x%03X", arbID)
	}
	return nil
}

// AcquireFramesChan registers a channel receiving the frames matching
// filterFunc.
func (network *Network) AcquireFramesChan(filterFunc networkFramesChanFilterFunc) *NetworkFramesChan {
	framesChan := newNetworkFramesChan(filterFunc)
	network.Lock()
	network.FramesChans = append(network.FramesChans, framesChan)
	network.Unlock()
	return framesChan
}

// ReleaseFramesChan unregisters and closes the channel with the given id.
func (network *Network) ReleaseFramesChan(id string) {
	network.Lock()
	defer network.Unlock()
	for i, framesChan := range network.FramesChans {
		if framesChan.ID == id {
			framesChan.close()
			network.FramesChans = append(network.FramesChans[:i], network.FramesChans[i+1:]...)
			return
		}
	}
}
