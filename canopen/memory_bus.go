package canopen

import (
	"sync"

	"github.com/angelodlfrtr/go-can"
	"github.com/juju/errors"
)

// MemoryBus is an in-memory CAN bus. Frames written by one endpoint are
// received by every other endpoint.
type MemoryBus struct {
	mu        sync.Mutex
	endpoints []*MemoryBusEndpoint
}

// NewMemoryBus creates a bus without endpoints.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Endpoint attaches a new endpoint to the bus.
func (bus *MemoryBus) Endpoint() *MemoryBusEndpoint {
	endpoint := &MemoryBusEndpoint{bus: bus, readChan: make(chan *can.Frame, 64)}
	bus.mu.Lock()
	bus.endpoints = append(bus.endpoints, endpoint)
	bus.mu.Unlock()
	return endpoint
}

// MemoryBusEndpoint implements Bus on a MemoryBus.
type MemoryBusEndpoint struct {
	bus      *MemoryBus
	readChan chan *can.Frame
	detached bool
}

// Write implements Bus. The frame is copied for every receiver. A receiver
// whose queue is full loses the frame, as on a real bus without flow
// control.
func (endpoint *MemoryBusEndpoint) Write(frm *can.Frame) error {
	bus := endpoint.bus
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if endpoint.detached {
		return errors.New("endpoint detached from memory bus")
	}
	for _, other := range bus.endpoints {
		if other == endpoint {
			continue
		}
		cp := *frm
		select {
		case other.readChan <- &cp:
		default:
		}
	}
	return nil
}

// ReadChan implements Bus.
func (endpoint *MemoryBusEndpoint) ReadChan() chan *can.Frame {
	return endpoint.readChan
}

// Detach removes the endpoint from the bus. It simulates an unplugged node.
func (endpoint *MemoryBusEndpoint) Detach() {
	bus := endpoint.bus
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, other := range bus.endpoints {
		if other == endpoint {
			bus.endpoints = append(bus.endpoints[:i], bus.endpoints[i+1:]...)
			break
		}
	}
	endpoint.detached = true
}
