package roda

import (
	"github.com/juju/errors"

	"github.com/angelodlfrtr/go-roda/od"
)

// ObjectInfo aggregates the ObjectInfoResponses describing one object.
type ObjectInfo struct {
	Index             uint16
	ObjectCode        od.ObjectCode
	DataType          od.DataType
	Name              string
	MaxNbOfSubindices uint16
	// FirstSubIndex is the subindex described by Subindices[0].
	FirstSubIndex uint8
	Subindices    []SubindexDescription
}

// Subindex returns the description of si if it was retrieved.
func (info *ObjectInfo) Subindex(si uint8) (*SubindexDescription, bool) {
	if si < info.FirstSubIndex {
		return nil, false
	}
	i := int(si - info.FirstSubIndex)
	if i >= len(info.Subindices) {
		return nil, false
	}
	return &info.Subindices[i], true
}

func wrongResponse(resp Response, want MessageType) error {
	return errors.Annotatef(ErrWrongResponseType, "got %s, want %s", resp.Type(), want)
}

// Enumerate returns the indices of the objects in [startIndex, lastIndex]
// matching attrFilter. Partial responses are continued until the range is
// covered. A non-zero abort code reports an error of the remote side.
func (c *ClientBase) Enumerate(startIndex, lastIndex uint16, attrFilter od.Attributes) ([]uint16, od.AbortCode, error) {
	var indices []uint16
	next := startIndex
	for {
		maxResp, err := c.MaxResponseSize()
		if err != nil {
			return nil, od.AbortNone, err
		}
		req, err := NewObjectEnumRequest(next, lastIndex, attrFilter, maxResp)
		if err != nil {
			return nil, od.AbortNone, err
		}
		resp, err := c.TxAndRx(req)
		if err != nil {
			return nil, od.AbortNone, err
		}
		enumResp, ok := resp.(*ObjectEnumResponse)
		if !ok {
			return nil, od.AbortNone, wrongResponse(resp, ObjectEnumResponseType)
		}
		if !enumResp.Result.OK() {
			return nil, enumResp.Result, nil
		}
		indices = append(indices, enumResp.Indices...)
		if enumResp.Complete {
			return indices, od.AbortNone, nil
		}
		if len(enumResp.Indices) == 0 {
			return nil, od.AbortNone, errors.Annotatef(ErrResponseTooLarge, "enumeration from 0x%04X", next)
		}
		last := enumResp.Indices[len(enumResp.Indices)-1]
		if last >= lastIndex {
			return indices, od.AbortNone, nil
		}
		next = last + 1
	}
}

// GetObjectInfo retrieves the description of an object and all of its
// subindices. Object names are always included.
func (c *ClientBase) GetObjectInfo(index uint16, inclusiveASM bool) (*ObjectInfo, od.AbortCode, error) {
	var info *ObjectInfo
	first, last := uint8(0), uint8(255)
	for {
		resp, abort, err := c.objectInfo(index, first, last, inclusiveASM)
		if err != nil || !abort.OK() {
			return nil, abort, err
		}
		if info == nil {
			info = newObjectInfo(index, resp)
			if resp.MaxNbOfSubindices == 0 {
				return info, od.AbortNone, nil
			}
			if resp.MaxNbOfSubindices <= 256 {
				last = uint8(resp.MaxNbOfSubindices - 1)
			}
		}
		if resp.FirstSubIndex != first {
			return nil, od.AbortNone, errors.NotValidf("response starting at subindex %d, requested %d", resp.FirstSubIndex, first)
		}
		if len(resp.Subindices) == 0 {
			return nil, od.AbortNone, errors.Annotatef(ErrResponseTooLarge, "object info 0x%04X from subindex %d", index, first)
		}
		info.Subindices = append(info.Subindices, resp.Subindices...)
		next := int(first) + len(resp.Subindices)
		if next > int(last) {
			return info, od.AbortNone, nil
		}
		first = uint8(next)
	}
}

// GetObjectInfoSingleSI retrieves the description of an object and of
// subindex si only.
func (c *ClientBase) GetObjectInfoSingleSI(index uint16, si uint8, inclusiveASM bool) (*ObjectInfo, od.AbortCode, error) {
	resp, abort, err := c.objectInfo(index, si, si, inclusiveASM)
	if err != nil || !abort.OK() {
		return nil, abort, err
	}
	if resp.FirstSubIndex != si || len(resp.Subindices) != 1 {
		if int(si) >= int(resp.MaxNbOfSubindices) {
			return nil, od.AbortSubUnknown, nil
		}
		return nil, od.AbortNone, errors.NotValidf("response for subindex %d with %d descriptions starting at %d", si, len(resp.Subindices), resp.FirstSubIndex)
	}
	info := newObjectInfo(index, resp)
	info.Subindices = resp.Subindices
	return info, od.AbortNone, nil
}

func newObjectInfo(index uint16, resp *ObjectInfoResponse) *ObjectInfo {
	return &ObjectInfo{
		Index:             index,
		ObjectCode:        resp.ObjectCode,
		DataType:          resp.DataType,
		Name:              resp.Name,
		MaxNbOfSubindices: resp.MaxNbOfSubindices,
		FirstSubIndex:     resp.FirstSubIndex,
	}
}

func (c *ClientBase) objectInfo(index uint16, first, last uint8, inclusiveASM bool) (*ObjectInfoResponse, od.AbortCode, error) {
	maxResp, err := c.MaxResponseSize()
	if err != nil {
		return nil, od.AbortNone, err
	}
	req, err := NewObjectInfoRequest(index, first, last, true, inclusiveASM, maxResp)
	if err != nil {
		return nil, od.AbortNone, err
	}
	resp, err := c.TxAndRx(req)
	if err != nil {
		return nil, od.AbortNone, err
	}
	infoResp, ok := resp.(*ObjectInfoResponse)
	if !ok {
		return nil, od.AbortNone, wrongResponse(resp, ObjectInfoResponseType)
	}
	return infoResp, infoResp.Result, nil
}

func accessType(ca bool) AccessType {
	if ca {
		return AccessCompleteSI08Bit
	}
	return AccessSingleSubindex
}

// Read reads a subindex, or the whole object starting at subIndex if ca is
// set. The abort code is carried by the response.
func (c *ClientBase) Read(index uint16, subIndex uint8, ca bool) (*ReadRequestResponse, error) {
	maxResp, err := c.MaxResponseSize()
	if err != nil {
		return nil, err
	}
	req, err := NewReadRequest(accessType(ca), index, subIndex, c.permissions, maxResp)
	if err != nil {
		return nil, err
	}
	resp, err := c.TxAndRx(req)
	if err != nil {
		return nil, err
	}
	readResp, ok := resp.(*ReadRequestResponse)
	if !ok {
		return nil, wrongResponse(resp, ReadResponseType)
	}
	return readResp, nil
}

// Write writes data to a subindex, or to the whole object starting at
// subIndex if ca is set.
func (c *ClientBase) Write(index uint16, subIndex uint8, ca bool, data []byte) (od.AbortCode, error) {
	maxResp, err := c.MaxResponseSize()
	if err != nil {
		return od.AbortNone, err
	}
	req, err := NewWriteRequest(accessType(ca), index, subIndex, c.permissions, data, maxResp)
	if err != nil {
		return od.AbortNone, err
	}
	resp, err := c.TxAndRx(req)
	if err != nil {
		return od.AbortNone, err
	}
	writeResp, ok := resp.(*WriteRequestResponse)
	if !ok {
		return od.AbortNone, wrongResponse(resp, WriteResponseType)
	}
	return writeResp.Result, nil
}
