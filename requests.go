package roda

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/angelodlfrtr/go-roda/od"
	"github.com/angelodlfrtr/go-roda/stream"
)

// AccessType selects single subindex or complete access for read and write
// requests.
type AccessType uint8

const (
	// AccessSingleSubindex addresses exactly one subindex.
	AccessSingleSubindex AccessType = iota
	// AccessCompleteSI016Bit addresses the whole object, SI0 encoded on 16 bit.
	AccessCompleteSI016Bit
	// AccessCompleteSI08Bit addresses the whole object, SI0 encoded on 8 bit.
	AccessCompleteSI08Bit
)

func (a AccessType) String() string {
	switch a {
	case AccessSingleSubindex:
		return "single subindex"
	case AccessCompleteSI016Bit:
		return "complete access (SI0 16 bit)"
	case AccessCompleteSI08Bit:
		return "complete access (SI0 8 bit)"
	}
	return fmt.Sprintf("AccessType(%d)", uint8(a))
}

// CompleteAccess reports whether a addresses the whole object.
func (a AccessType) CompleteAccess() bool {
	return a == AccessCompleteSI016Bit || a == AccessCompleteSI08Bit
}

func (a AccessType) valid() bool {
	return a <= AccessCompleteSI08Bit
}

// ObjectEnumRequest asks for the indices of the objects in
// [StartIndex, LastIndex] having at least one subindex with an attribute in
// AttrFilter.
type ObjectEnumRequest struct {
	requestBase
	StartIndex uint16
	LastIndex  uint16
	AttrFilter od.Attributes
}

// NewObjectEnumRequest creates an ObjectEnumRequest.
func NewObjectEnumRequest(startIndex, lastIndex uint16, attrFilter od.Attributes, maxResponseSize int) (*ObjectEnumRequest, error) {
	if startIndex > lastIndex {
		return nil, errors.NotValidf("index range 0x%04X-0x%04X", startIndex, lastIndex)
	}
	req := &ObjectEnumRequest{StartIndex: startIndex, LastIndex: lastIndex, AttrFilter: attrFilter}
	req.SetMaxResponseSize(maxResponseSize)
	return req, nil
}

func (req *ObjectEnumRequest) Type() MessageType { return ObjectEnumRequestType }

func (req *ObjectEnumRequest) encodeBody(w *stream.Writer) error {
	w.WriteUint16(req.StartIndex)
	w.WriteUint16(req.LastIndex)
	return w.WriteUint16(uint16(req.AttrFilter))
}

func (req *ObjectEnumRequest) decodeBody(r *stream.Reader) (err error) {
	req.StartIndex, _ = r.ReadUint16()
	req.LastIndex, _ = r.ReadUint16()
	filter, err := r.ReadUint16()
	req.AttrFilter = od.Attributes(filter)
	if err == nil && req.StartIndex > req.LastIndex {
		err = errors.NotValidf("index range 0x%04X-0x%04X", req.StartIndex, req.LastIndex)
	}
	return err
}

// ObjectInfoRequest asks for the description of an object and of its
// subindices in [FirstSubIndex, LastSubIndex].
type ObjectInfoRequest struct {
	requestBase
	Index                        uint16
	FirstSubIndex                uint8
	LastSubIndex                 uint8
	InclusiveNames               bool
	InclusiveAppSpecificMetaData bool
}

// NewObjectInfoRequest creates an ObjectInfoRequest.
func NewObjectInfoRequest(index uint16, firstSubIndex, lastSubIndex uint8, inclusiveNames, inclusiveASM bool, maxResponseSize int) (*ObjectInfoRequest, error) {
	if firstSubIndex > lastSubIndex {
		return nil, errors.NotValidf("subindex range %d-%d", firstSubIndex, lastSubIndex)
	}
	req := &ObjectInfoRequest{
		Index:                        index,
		FirstSubIndex:                firstSubIndex,
		LastSubIndex:                 lastSubIndex,
		InclusiveNames:               inclusiveNames,
		InclusiveAppSpecificMetaData: inclusiveASM,
	}
	req.SetMaxResponseSize(maxResponseSize)
	return req, nil
}

func (req *ObjectInfoRequest) Type() MessageType { return ObjectInfoRequestType }

func (req *ObjectInfoRequest) encodeBody(w *stream.Writer) error {
	w.WriteUint16(req.Index)
	w.WriteUint8(req.FirstSubIndex)
	w.WriteUint8(req.LastSubIndex)
	w.WriteBool(req.InclusiveNames)
	w.WriteBool(req.InclusiveAppSpecificMetaData)
	return w.AlignToByteBoundary()
}

func (req *ObjectInfoRequest) decodeBody(r *stream.Reader) error {
	req.Index, _ = r.ReadUint16()
	req.FirstSubIndex, _ = r.ReadUint8()
	req.LastSubIndex, _ = r.ReadUint8()
	req.InclusiveNames, _ = r.ReadBool()
	req.InclusiveAppSpecificMetaData, _ = r.ReadBool()
	r.SkipBitsToNextByteBoundary()
	if err := r.Err(); err != nil {
		return err
	}
	if req.FirstSubIndex > req.LastSubIndex {
		return errors.NotValidf("subindex range %d-%d", req.FirstSubIndex, req.LastSubIndex)
	}
	return nil
}

// ReadRequest reads a subindex or, with complete access, a whole object.
type ReadRequest struct {
	requestBase
	Access      AccessType
	Index       uint16
	SubIndex    uint8
	Permissions od.Permissions
}

// NewReadRequest creates a ReadRequest. Complete access requires subIndex 0
// or 1.
func NewReadRequest(access AccessType, index uint16, subIndex uint8, permissions od.Permissions, maxResponseSize int) (*ReadRequest, error) {
	if err := checkAccess(access, subIndex); err != nil {
		return nil, err
	}
	req := &ReadRequest{Access: access, Index: index, SubIndex: subIndex, Permissions: permissions}
	req.SetMaxResponseSize(maxResponseSize)
	return req, nil
}

func checkAccess(access AccessType, subIndex uint8) error {
	if !access.valid() {
		return errors.NotValidf("access type %d", access)
	}
	if access.CompleteAccess() && subIndex > 1 {
		return errors.NotValidf("complete access starting at subindex %d", subIndex)
	}
	return nil
}

func (req *ReadRequest) Type() MessageType { return ReadRequestType }

func (req *ReadRequest) encodeBody(w *stream.Writer) error {
	w.WriteUint8(uint8(req.Access))
	w.WriteUint16(req.Index)
	w.WriteUint8(req.SubIndex)
	return w.WriteUint16(uint16(req.Permissions))
}

func (req *ReadRequest) decodeBody(r *stream.Reader) error {
	access, _ := r.ReadUint8()
	req.Access = AccessType(access)
	req.Index, _ = r.ReadUint16()
	req.SubIndex, _ = r.ReadUint8()
	perm, err := r.ReadUint16()
	if err != nil {
		return err
	}
	req.Permissions = od.Permissions(perm)
	return checkAccess(req.Access, req.SubIndex)
}

// WriteRequest writes a subindex or, with complete access, a whole object.
type WriteRequest struct {
	requestBase
	Access      AccessType
	Index       uint16
	SubIndex    uint8
	Permissions od.Permissions
	Data        []byte
}

// NewWriteRequest creates a WriteRequest. data is copied.
func NewWriteRequest(access AccessType, index uint16, subIndex uint8, permissions od.Permissions, data []byte, maxResponseSize int) (*WriteRequest, error) {
	if err := checkAccess(access, subIndex); err != nil {
		return nil, err
	}
	req := &WriteRequest{
		Access:      access,
		Index:       index,
		SubIndex:    subIndex,
		Permissions: permissions,
		Data:        append([]byte(nil), data...),
	}
	req.SetMaxResponseSize(maxResponseSize)
	return req, nil
}

func (req *WriteRequest) Type() MessageType { return WriteRequestType }

func (req *WriteRequest) encodeBody(w *stream.Writer) error {
	w.WriteUint8(uint8(req.Access))
	w.WriteUint16(req.Index)
	w.WriteUint8(req.SubIndex)
	w.WriteUint16(uint16(req.Permissions))
	w.WriteUint32(uint32(len(req.Data)))
	return w.WriteBytes(req.Data)
}

func (req *WriteRequest) decodeBody(r *stream.Reader) error {
	access, _ := r.ReadUint8()
	req.Access = AccessType(access)
	req.Index, _ = r.ReadUint16()
	req.SubIndex, _ = r.ReadUint8()
	perm, _ := r.ReadUint16()
	req.Permissions = od.Permissions(perm)
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	if int64(n) > int64(r.RemainingBytes()) {
		return errors.NotValidf("data length %d", n)
	}
	if req.Data, err = r.ReadBytes(int(n)); err != nil {
		return err
	}
	return checkAccess(req.Access, req.SubIndex)
}
