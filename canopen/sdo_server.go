package canopen

import (
	"encoding/binary"

	"github.com/angelodlfrtr/go-can"
	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"github.com/angelodlfrtr/go-roda/od"
)

// SDOServer answers SDO transfers to a local object dictionary. It plays the
// remote node in tests and in the rodacli simulation mode.
type SDOServer struct {
	NodeID    int
	ObjectDic *od.ObjectDictionary
	RXCobID   uint32
	TXCobID   uint32

	network    *Network
	framesChan *NetworkFramesChan
	logger     *logrus.Entry
	tomb       tomb.Tomb

	// Transfer in progress, owned by the loop.
	index    uint16
	subIndex uint8
	toggle   uint8
	upload   []byte
	download []byte
	size     int
}

// NewSDOServer starts serving objectDic as node id on network.
func NewSDOServer(network *Network, id int, objectDic *od.ObjectDictionary) *SDOServer {
	server := &SDOServer{
		NodeID:    id,
		ObjectDic: objectDic,
		RXCobID:   uint32(0x600 + id),
		TXCobID:   uint32(0x580 + id),
		network:   network,
		logger:    logrus.WithFields(logrus.Fields{"component": "canopen-sdo-server", "node": id}),
	}
	filter := func(frm *can.Frame) bool {
		return frm.ArbitrationID == server.RXCobID
	}
	server.framesChan = network.AcquireFramesChan(&filter)
	server.tomb.Go(server.loop)
	return server
}

// Stop stops serving.
func (server *SDOServer) Stop() error {
	server.tomb.Kill(nil)
	err := server.tomb.Wait()
	server.network.ReleaseFramesChan(server.framesChan.ID)
	return err
}

func (server *SDOServer) loop() error {
	for {
		select {
		case <-server.tomb.Dying():
			return tomb.ErrDying
		case frm, ok := <-server.framesChan.C:
			if !ok {
				return nil
			}
			if resp := server.handle(frm); resp != nil {
				if err := server.network.Send(server.TXCobID, resp); err != nil {
					server.logger.Warnf("send response: %v", err)
				}
			}
		}
	}
}

func (server *SDOServer) handle(frm *can.Frame) []byte {
	cmd := frm.Data[0]
	switch cmd & sdoCommandMask {
	case SDORequestUpload:
		return server.initiateUpload(frm)
	case SDORequestSegmentUpload:
		return server.segmentUpload(cmd)
	case SDORequestDownload:
		return server.initiateDownload(frm)
	case SDORequestSegmentDownload:
		return server.segmentDownload(frm)
	case SDORequestAborted:
		server.reset()
		return nil
	}
	return server.abortResponse(od.AbortCmd)
}

func (server *SDOServer) reset() {
	server.upload = nil
	server.download = nil
	server.toggle = 0
	server.size = 0
}

func (server *SDOServer) abortResponse(code od.AbortCode) []byte {
	server.logger.Debugf("abort 0x%04X:%d: %s", server.index, server.subIndex, code)
	server.reset()
	resp := sdoHeader(SDORequestAborted, server.index, server.subIndex)
	binary.LittleEndian.PutUint32(resp[4:], uint32(code))
	return resp
}

func (server *SDOServer) initiateUpload(frm *can.Frame) []byte {
	server.reset()
	server.index = binary.LittleEndian.Uint16(frm.Data[1:])
	server.subIndex = frm.Data[3]
	data, code := server.ObjectDic.Read(server.index, server.subIndex, od.AttrRW)
	if !code.OK() {
		return server.abortResponse(code)
	}
	if len(data) <= 4 {
		resp := sdoHeader(SDOResponseUpload|SDOExpedited|SDOSizeSpecified|uint8(4-len(data))<<2, server.index, server.subIndex)
		copy(resp[4:], data)
		return resp
	}
	server.upload = data
	resp := sdoHeader(SDOResponseUpload|SDOSizeSpecified, server.index, server.subIndex)
	binary.LittleEndian.PutUint32(resp[4:], uint32(len(data)))
	return resp
}

func (server *SDOServer) segmentUpload(cmd uint8) []byte {
	if server.upload == nil {
		return server.abortResponse(od.AbortCmd)
	}
	if cmd&SDOToggleBit != server.toggle {
		return server.abortResponse(od.AbortToggleBit)
	}
	n := len(server.upload)
	if n > 7 {
		n = 7
	}
	resp := make([]byte, 8)
	resp[0] = SDOResponseSegmentUpload | server.toggle | uint8(7-n)<<1
	copy(resp[1:], server.upload[:n])
	server.upload = server.upload[n:]
	server.toggle ^= SDOToggleBit
	if len(server.upload) == 0 {
		resp[0] |= SDONoMoreData
		server.reset()
	}
	return resp
}

func (server *SDOServer) initiateDownload(frm *can.Frame) []byte {
	server.reset()
	cmd := frm.Data[0]
	server.index = binary.LittleEndian.Uint16(frm.Data[1:])
	server.subIndex = frm.Data[3]
	if cmd&SDOExpedited != 0 {
		size := 4
		if cmd&SDOSizeSpecified != 0 {
			size = 4 - int((cmd>>2)&0x3)
		}
		if code := server.ObjectDic.Write(server.index, server.subIndex, od.AttrRW, frm.Data[4:4+size]); !code.OK() {
			return server.abortResponse(code)
		}
		return sdoHeader(SDOResponseDownload, server.index, server.subIndex)
	}
	server.size = -1
	if cmd&SDOSizeSpecified != 0 {
		server.size = int(binary.LittleEndian.Uint32(frm.Data[4:]))
	}
	server.download = []byte{}
	return sdoHeader(SDOResponseDownload, server.index, server.subIndex)
}

func (server *SDOServer) segmentDownload(frm *can.Frame) []byte {
	if server.download == nil {
		return server.abortResponse(od.AbortCmd)
	}
	cmd := frm.Data[0]
	if cmd&SDOToggleBit != server.toggle {
		return server.abortResponse(od.AbortToggleBit)
	}
	n := 7 - int((cmd>>1)&0x7)
	server.download = append(server.download, frm.Data[1:1+n]...)
	resp := make([]byte, 8)
	resp[0] = SDOResponseSegmentDownload | server.toggle
	server.toggle ^= SDOToggleBit
	if cmd&SDONoMoreData == 0 {
		return resp
	}

	data := server.download
	if server.size >= 0 && len(data) != server.size {
		return server.abortResponse(od.AbortDataShort)
	}
	if code := server.ObjectDic.Write(server.index, server.subIndex, od.AttrRW, data); !code.OK() {
		return server.abortResponse(code)
	}
	server.reset()
	return resp
}
