package canopen

import (
	"github.com/juju/errors"

	"github.com/angelodlfrtr/go-roda"
	"github.com/angelodlfrtr/go-roda/od"
	"github.com/angelodlfrtr/go-roda/provider"
)

// NewProvider makes node's object dictionary accessible through RODA.
// Enumeration and object info are answered from node.ObjectDic, reads and
// writes are forwarded to the node by SDO. node must be initialized.
func NewProvider(node *Node, cfg provider.LocalConfig) *provider.Local {
	if cfg.Name == "" {
		cfg.Name = "canopen"
	}
	return provider.NewWithHandler(&nodeHandler{node: node}, cfg)
}

type nodeHandler struct {
	node *Node
}

// Handle implements provider.Handler.
func (h *nodeHandler) Handle(req roda.Request) roda.Response {
	dic := h.node.ObjectDic
	switch req := req.(type) {
	case *roda.ObjectEnumRequest:
		return provider.ProcessObjectEnum(dic, req)
	case *roda.ObjectInfoRequest:
		return provider.ProcessObjectInfo(dic, req)
	case *roda.ReadRequest:
		return h.read(req)
	case *roda.WriteRequest:
		return h.write(req)
	}
	panic("canopen: unknown request type " + req.Type().String())
}

// checkAccess applies the attributes known from the EDS before anything is
// sent on the bus.
func (h *nodeHandler) checkAccess(access roda.AccessType, index uint16, subIndex uint8, write bool, perm od.Permissions) od.AbortCode {
	if access.CompleteAccess() {
		return od.AbortUnsupportedAccess
	}
	obj := h.node.Object(index)
	if obj == nil {
		return od.AbortNotExist
	}
	entry := obj.Entry(subIndex)
	if entry == nil {
		return od.AbortSubUnknown
	}
	if write && !entry.Attributes.Writeable(perm) {
		return od.AbortReadOnly
	}
	if !write && !entry.Attributes.Readable(perm) {
		return od.AbortWriteOnly
	}
	return od.AbortNone
}

func (h *nodeHandler) read(req *roda.ReadRequest) *roda.ReadRequestResponse {
	if code := h.checkAccess(req.Access, req.Index, req.SubIndex, false, req.Permissions); !code.OK() {
		return roda.NewReadRequestResponse(code, nil)
	}
	data, err := h.node.SDOClient.Read(req.Index, req.SubIndex)
	if err != nil {
		return roda.NewReadRequestResponse(sdoResult(err), nil)
	}
	resp := roda.NewReadRequestResponse(od.AbortNone, data)
	if size, err := roda.BinarySizeWithoutReturnStack(resp); err != nil || size > req.MaxResponseSize() {
		return roda.NewReadRequestResponse(od.AbortOutOfMem, nil)
	}
	return resp
}

func (h *nodeHandler) write(req *roda.WriteRequest) *roda.WriteRequestResponse {
	if code := h.checkAccess(req.Access, req.Index, req.SubIndex, true, req.Permissions); !code.OK() {
		return roda.NewWriteRequestResponse(code)
	}
	if err := h.node.SDOClient.Write(req.Index, req.SubIndex, false, req.Data); err != nil {
		return roda.NewWriteRequestResponse(sdoResult(err))
	}
	return roda.NewWriteRequestResponse(od.AbortNone)
}

// sdoResult maps an SDO error to the result of a response. Refusals of the
// node are passed on, every other failure reads as a timeout.
func sdoResult(err error) od.AbortCode {
	if code, ok := errors.Cause(err).(od.AbortCode); ok {
		return code
	}
	return od.AbortTimeout
}
