package provider

import (
	"github.com/angelodlfrtr/go-roda"
	"github.com/angelodlfrtr/go-roda/od"
)

// Process executes req against dic. The response does not carry a return
// stack and fits req.MaxResponseSize.
func Process(dic *od.ObjectDictionary, req roda.Request) roda.Response {
	switch req := req.(type) {
	case *roda.ObjectEnumRequest:
		return ProcessObjectEnum(dic, req)
	case *roda.ObjectInfoRequest:
		return ProcessObjectInfo(dic, req)
	case *roda.ReadRequest:
		return ProcessRead(dic, req)
	case *roda.WriteRequest:
		return ProcessWrite(dic, req)
	}
	panic("provider: unknown request type " + req.Type().String())
}

// fits reports whether resp can be sent in answer to req. A response that
// cannot be encoded never fits.
func fits(resp roda.Response, req roda.Request) bool {
	size, err := roda.BinarySizeWithoutReturnStack(resp)
	return err == nil && size <= req.MaxResponseSize()
}

// ProcessObjectEnum enumerates dic. If the result does not fit the response
// size limit it is truncated and marked incomplete.
func ProcessObjectEnum(dic *od.ObjectDictionary, req *roda.ObjectEnumRequest) *roda.ObjectEnumResponse {
	indices := dic.Enumerate(req.StartIndex, req.LastIndex, req.AttrFilter)
	resp := roda.NewObjectEnumResponse(od.AbortNone, nil, true)
	size, err := roda.BinarySizeWithoutReturnStack(resp)
	if err != nil || size > req.MaxResponseSize() {
		return roda.NewObjectEnumResponse(od.AbortOutOfMem, nil, false)
	}
	// Indices are encoded on 2 bytes each.
	room := (req.MaxResponseSize() - size) / 2
	if room < len(indices) {
		if room == 0 {
			return roda.NewObjectEnumResponse(od.AbortOutOfMem, nil, false)
		}
		resp.Indices = indices[:room]
		resp.Complete = false
		return resp
	}
	resp.Indices = indices
	return resp
}

// ProcessObjectInfo describes an object of dic. Subindices that do not fit
// the response size limit are left out; the requester asks for them again.
func ProcessObjectInfo(dic *od.ObjectDictionary, req *roda.ObjectInfoRequest) *roda.ObjectInfoResponse {
	obj := dic.Object(req.Index)
	if obj == nil {
		return roda.NewObjectInfoResponse(od.AbortNotExist)
	}
	maxNb := obj.MaxNbOfSubindices()
	if maxNb > 0 && int(req.FirstSubIndex) >= maxNb {
		return roda.NewObjectInfoResponse(od.AbortSubUnknown)
	}

	resp := roda.NewObjectInfoResponse(od.AbortNone)
	resp.ObjectCode = obj.Code
	resp.DataType = obj.DataType
	resp.MaxNbOfSubindices = uint16(maxNb)
	resp.InclusiveNames = req.InclusiveNames
	resp.InclusiveAppSpecificMetaData = req.InclusiveAppSpecificMetaData
	resp.FirstSubIndex = req.FirstSubIndex
	if req.InclusiveNames {
		resp.Name = obj.Name
	}
	if !fits(resp, req) {
		return roda.NewObjectInfoResponse(od.AbortOutOfMem)
	}
	if maxNb == 0 {
		return resp
	}

	last := int(req.LastSubIndex)
	if last >= maxNb {
		last = maxNb - 1
	}
	for si := int(req.FirstSubIndex); si <= last; si++ {
		desc := roda.SubindexDescription{Empty: true}
		if e := obj.Entry(uint8(si)); e != nil {
			desc = roda.SubindexDescription{
				DataType:   e.DataType,
				Attributes: e.Attributes,
				MaxSize:    uint32(e.MaxSize),
			}
			if req.InclusiveNames {
				desc.Name = e.Name
			}
			if req.InclusiveAppSpecificMetaData {
				desc.AppSpecificMetaData = e.AppSpecificMetaData
			}
		}
		resp.Subindices = append(resp.Subindices, desc)
		if !fits(resp, req) {
			resp.Subindices = resp.Subindices[:len(resp.Subindices)-1]
			break
		}
	}
	if len(resp.Subindices) == 0 {
		return roda.NewObjectInfoResponse(od.AbortOutOfMem)
	}
	return resp
}

// ProcessRead reads from dic.
func ProcessRead(dic *od.ObjectDictionary, req *roda.ReadRequest) *roda.ReadRequestResponse {
	var data []byte
	var abort od.AbortCode
	if req.Access.CompleteAccess() {
		si016 := req.Access == roda.AccessCompleteSI016Bit
		data, abort = dic.ReadComplete(req.Index, req.Permissions, si016)
		if abort.OK() && req.SubIndex == 1 {
			// Complete access starting at subindex 1 excludes SI0.
			n := 1
			if si016 {
				n = 2
			}
			if len(data) < n {
				return roda.NewReadRequestResponse(od.AbortGeneral, nil)
			}
			data = data[n:]
		}
	} else {
		data, abort = dic.Read(req.Index, req.SubIndex, req.Permissions)
	}
	if !abort.OK() {
		return roda.NewReadRequestResponse(abort, nil)
	}
	resp := roda.NewReadRequestResponse(od.AbortNone, data)
	if !fits(resp, req) {
		return roda.NewReadRequestResponse(od.AbortOutOfMem, nil)
	}
	return resp
}

// ProcessWrite writes to dic. Complete access must start at subindex 0.
func ProcessWrite(dic *od.ObjectDictionary, req *roda.WriteRequest) *roda.WriteRequestResponse {
	if !req.Access.CompleteAccess() {
		return roda.NewWriteRequestResponse(dic.Write(req.Index, req.SubIndex, req.Permissions, req.Data))
	}
	if req.SubIndex != 0 {
		return roda.NewWriteRequestResponse(od.AbortUnsupportedAccess)
	}
	si016 := req.Access == roda.AccessCompleteSI016Bit
	return roda.NewWriteRequestResponse(dic.WriteComplete(req.Index, req.Permissions, si016, req.Data))
}
