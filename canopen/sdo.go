package canopen

import (
	"encoding/binary"
	"time"

	"github.com/angelodlfrtr/go-can"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/angelodlfrtr/go-roda/od"
)

const (
	SDORequestUpload    uint8 = 2 << 5
	SDOResponseUpload   uint8 = 2 << 5
	SDORequestDownload  uint8 = 1 << 5
	SDOResponseDownload uint8 = 3 << 5

	SDORequestSegmentUpload    uint8 = 3 << 5
	SDOResponseSegmentUpload   uint8 = 0 << 5
	SDORequestSegmentDownload  uint8 = 0 << 5
	SDOResponseSegmentDownload uint8 = 1 << 5

	SDORequestAborted uint8 = 4 << 5

	SDOExpedited     uint8 = 0x2
	SDOSizeSpecified uint8 = 0x1
	SDOToggleBit     uint8 = 0x10
	SDONoMoreData    uint8 = 0x1

	sdoCommandMask uint8 = 0xE0
)

// ErrSDOTimeout is returned when the remote node does not answer.
const ErrSDOTimeout = errors.ConstError("sdo timeout exceeded")

var _ ISDOClient = (*SDOClient)(nil)

// SDOClient represent an SDO client
type SDOClient struct {
	Node    INode
	RXCobID uint32
	TXCobID uint32

	// Timeout of the first try, doubled on every retry.
	Timeout    time.Duration
	RetryCount int
	Clock      clock.Clock

	logger *logrus.Entry
}

func NewSDOClient(node INode) *SDOClient {
	return &SDOClient{
		Node:       node,
		RXCobID:    uint32(0x600 + node.GetId()),
		TXCobID:    uint32(0x580 + node.GetId()),
		Timeout:    500 * time.Millisecond,
		RetryCount: 4,
		Clock:      clock.WallClock,
		logger:     logrus.WithFields(logrus.Fields{"component": "canopen-sdo-client", "node": node.GetId()}),
	}
}

// SendRequest to network bus
func (sdoClient *SDOClient) SendRequest(req []byte) error {
	return sdoClient.Node.Send(sdoClient.RXCobID, req)
}

// Send message and optionaly wait for response
func (sdoClient *SDOClient) Send(
	req []byte,
	expectFunc networkFramesChanFilterFunc,
	timeout *time.Duration,
	retryCount *int,
) (*can.Frame, error) {
	// If no response wanted, just send and return
	if expectFunc == nil {
		if err := sdoClient.SendRequest(req); err != nil {
			return nil, err
		}

		return nil, nil
	}

	tm := sdoClient.Timeout
	if timeout != nil {
		tm = *timeout
	}
	remainingCount := sdoClient.RetryCount
	if retryCount != nil {
		remainingCount = *retryCount
	}

	// Only frames of our server, aborts always pass
	expectSdoFilterFunc := func(frm *can.Frame) bool {
		if frm.ArbitrationID != sdoClient.TXCobID {
			return false
		}
		return frm.Data[0]&sdoCommandMask == SDORequestAborted || (*expectFunc)(frm)
	}
	framesChan := sdoClient.Node.AcquireFramesChanFromNetwork(&expectSdoFilterFunc)
	defer sdoClient.Node.ReleaseFramesChanFromNetwork(framesChan.ID)

	for ; remainingCount > 0; remainingCount-- {
		if err := sdoClient.SendRequest(req); err != nil {
			return nil, err
		}

		timer := sdoClient.Clock.NewTimer(tm)
		select {
		case fr, ok := <-framesChan.C:
			timer.Stop()
			if !ok {
				return nil, errors.New("network stopped")
			}
			return fr, nil
		case <-timer.Chan():
			// Double timeout for each retry
			tm *= 2
			sdoClient.logger.Debugf("no response to 0x%02X, %d tries left", req[0], remainingCount-1)
		}
	}

	return nil, ErrSDOTimeout
}

func sdoHeader(cmd uint8, index uint16, subIndex uint8) []byte {
	req := make([]byte, 8)
	req[0] = cmd
	binary.LittleEndian.PutUint16(req[1:], index)
	req[3] = subIndex
	return req
}

func expectCommand(cmd uint8) networkFramesChanFilterFunc {
	f := func(frm *can.Frame) bool {
		return frm.Data[0]&sdoCommandMask == cmd
	}
	return &f
}

// abortCode extracts the abort code of an aborted transfer.
func abortCode(frm *can.Frame) (od.AbortCode, bool) {
	if frm.Data[0]&sdoCommandMask != SDORequestAborted {
		return od.AbortNone, false
	}
	return od.AbortCode(binary.LittleEndian.Uint32(frm.Data[4:])), true
}

// abort tells the server to stop the transfer and returns code.
func (sdoClient *SDOClient) abort(index uint16, subIndex uint8, code od.AbortCode) error {
	req := sdoHeader(SDORequestAborted, index, subIndex)
	binary.LittleEndian.PutUint32(req[4:], uint32(code))
	if err := sdoClient.SendRequest(req); err != nil {
		sdoClient.logger.Warnf("send abort: %v", err)
	}
	return code
}

// transfer sends req and waits for a frame with command resp. Aborts from the
// server are returned as od.AbortCode errors.
func (sdoClient *SDOClient) transfer(req []byte, resp uint8) (*can.Frame, error) {
	frm, err := sdoClient.Send(req, expectCommand(resp), nil, nil)
	if err != nil {
		return nil, err
	}
	if code, ok := abortCode(frm); ok {
		return nil, code
	}
	return frm, nil
}

// Read uploads index:subIndex from the node. A refusal of the node is
// returned as an od.AbortCode error.
func (sdoClient *SDOClient) Read(index uint16, subIndex uint8) ([]byte, error) {
	frm, err := sdoClient.transfer(sdoHeader(SDORequestUpload, index, subIndex), SDOResponseUpload)
	if err != nil {
		return nil, err
	}

	cmd := frm.Data[0]
	if cmd&SDOExpedited != 0 {
		size := 4
		if cmd&SDOSizeSpecified != 0 {
			size = 4 - int((cmd>>2)&0x3)
		}
		return append([]byte(nil), frm.Data[4:4+size]...), nil
	}

	expected := -1
	if cmd&SDOSizeSpecified != 0 {
		expected = int(binary.LittleEndian.Uint32(frm.Data[4:]))
	}
	var data []byte
	toggle := uint8(0)
	for {
		req := make([]byte, 8)
		req[0] = SDORequestSegmentUpload | toggle
		frm, err := sdoClient.transfer(req, SDOResponseSegmentUpload)
		if err != nil {
			return nil, err
		}
		cmd := frm.Data[0]
		if cmd&SDOToggleBit != toggle {
			return nil, sdoClient.abort(index, subIndex, od.AbortToggleBit)
		}
		n := 7 - int((cmd>>1)&0x7)
		data = append(data, frm.Data[1:1+n]...)
		if cmd&SDONoMoreData != 0 {
			break
		}
		toggle ^= SDOToggleBit
	}
	if expected >= 0 && len(data) != expected {
		return nil, errors.Errorf("sdo upload of 0x%04X:%d: got %d bytes, announced %d", index, subIndex, len(data), expected)
	}
	return data, nil
}

// Write downloads data to index:subIndex of the node. Up to 4 bytes are sent
// expedited unless forceSegment is set.
func (sdoClient *SDOClient) Write(index uint16, subIndex uint8, forceSegment bool, data []byte) error {
	if len(data) <= 4 && !forceSegment {
		cmd := SDORequestDownload | SDOExpedited
		if len(data) > 0 {
			cmd |= SDOSizeSpecified | uint8(4-len(data))<<2
		}
		req := sdoHeader(cmd, index, subIndex)
		copy(req[4:], data)
		_, err := sdoClient.transfer(req, SDOResponseDownload)
		return err
	}

	req := sdoHeader(SDORequestDownload|SDOSizeSpecified, index, subIndex)
	binary.LittleEndian.PutUint32(req[4:], uint32(len(data)))
	if _, err := sdoClient.transfer(req, SDOResponseDownload); err != nil {
		return err
	}

	toggle := uint8(0)
	for offset := 0; ; offset += 7 {
		n := len(data) - offset
		last := n <= 7
		if !last {
			n = 7
		}
		req := make([]byte, 8)
		req[0] = SDORequestSegmentDownload | toggle | uint8(7-n)<<1
		if last {
			req[0] |= SDONoMoreData
		}
		copy(req[1:], data[offset:offset+n])
		frm, err := sdoClient.transfer(req, SDOResponseSegmentDownload)
		if err != nil {
			return err
		}
		if frm.Data[0]&SDOToggleBit != toggle {
			return sdoClient.abort(index, subIndex, od.AbortToggleBit)
		}
		if last {
			return nil
		}
		toggle ^= SDOToggleBit
	}
}
