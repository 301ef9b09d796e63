package canopen

import (
	"time"

	"github.com/angelodlfrtr/go-can"
)

// ISDOClient transfers data to and from the object dictionary of a remote
// node.
type ISDOClient interface {
	Read(index uint16, subIndex uint8) ([]byte, error)
	Send(req []byte, expectFunc networkFramesChanFilterFunc, timeout *time.Duration, retryCount *int) (*can.Frame, error)
	SendRequest(req []byte) error
	Write(index uint16, subIndex uint8, forceSegment bool, data []byte) error
}

// INode is the part of a Node used by its SDO client.
type INode interface {
	GetId() int
	Send(arbID uint32, data []byte) error
	AcquireFramesChanFromNetwork(filterFunc networkFramesChanFilterFunc) *NetworkFramesChan
	ReleaseFramesChanFromNetwork(id string)
}
