package roda

import (
	"github.com/juju/errors"

	"github.com/angelodlfrtr/go-roda/od"
	"github.com/angelodlfrtr/go-roda/stream"
)

// ObjectEnumResponse answers an ObjectEnumRequest. If Complete is false the
// provider ran out of response space and the requester shall continue after
// the last returned index.
type ObjectEnumResponse struct {
	responseBase
	Indices  []uint16
	Complete bool
}

// NewObjectEnumResponse creates an ObjectEnumResponse.
func NewObjectEnumResponse(result od.AbortCode, indices []uint16, complete bool) *ObjectEnumResponse {
	resp := &ObjectEnumResponse{Indices: indices, Complete: complete}
	resp.Result = result
	return resp
}

func (resp *ObjectEnumResponse) Type() MessageType { return ObjectEnumResponseType }

func (resp *ObjectEnumResponse) encodeBody(w *stream.Writer) error {
	w.WriteUint32(uint32(resp.Result))
	if !resp.Result.OK() {
		return w.Err()
	}
	w.WriteBool(resp.Complete)
	w.AlignToByteBoundary()
	w.WriteUint16(uint16(len(resp.Indices)))
	for _, idx := range resp.Indices {
		w.WriteUint16(idx)
	}
	return w.Err()
}

func (resp *ObjectEnumResponse) decodeBody(r *stream.Reader) error {
	result, err := r.ReadUint32()
	if err != nil {
		return err
	}
	resp.Result = od.AbortCode(result)
	if !resp.Result.OK() {
		return nil
	}
	resp.Complete, _ = r.ReadBool()
	r.SkipBitsToNextByteBoundary()
	n, err := r.ReadUint16()
	if err != nil {
		return err
	}
	if int(n)*2 > r.RemainingBytes() {
		return errors.NotValidf("index count %d", n)
	}
	resp.Indices = make([]uint16, n)
	for i := range resp.Indices {
		resp.Indices[i], _ = r.ReadUint16()
	}
	return r.Err()
}

// SubindexDescription describes one subindex in an ObjectInfoResponse.
type SubindexDescription struct {
	// Empty marks a gap in a RECORD; the other fields are then meaningless.
	Empty               bool
	DataType            od.DataType
	Attributes          od.Attributes
	MaxSize             uint32
	Name                string
	AppSpecificMetaData []byte
}

// ObjectInfoResponse answers an ObjectInfoRequest. Subindices describes the
// subindices starting at FirstSubIndex. It may cover fewer subindices than
// requested if the response would exceed the requester's size limit.
type ObjectInfoResponse struct {
	responseBase
	ObjectCode                   od.ObjectCode
	DataType                     od.DataType
	Name                         string
	MaxNbOfSubindices            uint16
	InclusiveNames               bool
	InclusiveAppSpecificMetaData bool
	FirstSubIndex                uint8
	Subindices                   []SubindexDescription
}

// NewObjectInfoResponse creates an ObjectInfoResponse carrying only a result.
// Providers fill the description fields of successful responses.
func NewObjectInfoResponse(result od.AbortCode) *ObjectInfoResponse {
	resp := &ObjectInfoResponse{}
	resp.Result = result
	return resp
}

func (resp *ObjectInfoResponse) Type() MessageType { return ObjectInfoResponseType }

func (resp *ObjectInfoResponse) encodeBody(w *stream.Writer) error {
	w.WriteUint32(uint32(resp.Result))
	if !resp.Result.OK() {
		return w.Err()
	}
	if len(resp.Subindices) > 256 {
		return errors.NotValidf("%d subindex descriptions", len(resp.Subindices))
	}
	w.WriteUint8(uint8(resp.ObjectCode))
	w.WriteUint16(uint16(resp.DataType))
	w.WriteUint16(resp.MaxNbOfSubindices)
	w.WriteBool(resp.InclusiveNames)
	w.WriteBool(resp.InclusiveAppSpecificMetaData)
	w.AlignToByteBoundary()
	if resp.InclusiveNames {
		w.WriteString(resp.Name)
	}
	w.WriteUint8(resp.FirstSubIndex)
	w.WriteUint16(uint16(len(resp.Subindices)))
	for _, si := range resp.Subindices {
		w.WriteBool(si.Empty)
		w.AlignToByteBoundary()
		if si.Empty {
			continue
		}
		w.WriteUint16(uint16(si.DataType))
		w.WriteUint16(uint16(si.Attributes))
		w.WriteUint32(si.MaxSize)
		if resp.InclusiveNames {
			w.WriteString(si.Name)
		}
		if resp.InclusiveAppSpecificMetaData {
			if len(si.AppSpecificMetaData) > 0xFFFF {
				return errors.NotValidf("application specific meta data of %d bytes", len(si.AppSpecificMetaData))
			}
			w.WriteUint16(uint16(len(si.AppSpecificMetaData)))
			w.WriteBytes(si.AppSpecificMetaData)
		}
	}
	return w.Err()
}

func (resp *ObjectInfoResponse) decodeBody(r *stream.Reader) error {
	result, err := r.ReadUint32()
	if err != nil {
		return err
	}
	resp.Result = od.AbortCode(result)
	if !resp.Result.OK() {
		return nil
	}
	code, _ := r.ReadUint8()
	resp.ObjectCode = od.ObjectCode(code)
	dt, _ := r.ReadUint16()
	resp.DataType = od.DataType(dt)
	resp.MaxNbOfSubindices, _ = r.ReadUint16()
	resp.InclusiveNames, _ = r.ReadBool()
	resp.InclusiveAppSpecificMetaData, _ = r.ReadBool()
	r.SkipBitsToNextByteBoundary()
	if resp.InclusiveNames {
		resp.Name, _ = r.ReadString()
	}
	resp.FirstSubIndex, _ = r.ReadUint8()
	n, err := r.ReadUint16()
	if err != nil {
		return err
	}
	if n > 256 || int(n) > r.RemainingBytes() {
		return errors.NotValidf("subindex count %d", n)
	}
	resp.Subindices = make([]SubindexDescription, n)
	for i := range resp.Subindices {
		si := &resp.Subindices[i]
		si.Empty, _ = r.ReadBool()
		r.SkipBitsToNextByteBoundary()
		if si.Empty {
			continue
		}
		dt, _ := r.ReadUint16()
		si.DataType = od.DataType(dt)
		attr, _ := r.ReadUint16()
		si.Attributes = od.Attributes(attr)
		si.MaxSize, _ = r.ReadUint32()
		if resp.InclusiveNames {
			si.Name, _ = r.ReadString()
		}
		if resp.InclusiveAppSpecificMetaData {
			l, err := r.ReadUint16()
			if err != nil {
				return err
			}
			if si.AppSpecificMetaData, err = r.ReadBytes(int(l)); err != nil {
				return err
			}
		}
		if err := r.Err(); err != nil {
			return err
		}
	}
	return r.Err()
}

// ReadRequestResponse answers a ReadRequest.
type ReadRequestResponse struct {
	responseBase
	Data []byte
}

// NewReadRequestResponse creates a ReadRequestResponse.
func NewReadRequestResponse(result od.AbortCode, data []byte) *ReadRequestResponse {
	resp := &ReadRequestResponse{Data: data}
	resp.Result = result
	return resp
}

func (resp *ReadRequestResponse) Type() MessageType { return ReadResponseType }

func (resp *ReadRequestResponse) encodeBody(w *stream.Writer) error {
	w.WriteUint32(uint32(resp.Result))
	if !resp.Result.OK() {
		return w.Err()
	}
	w.WriteUint32(uint32(len(resp.Data)))
	return w.WriteBytes(resp.Data)
}

func (resp *ReadRequestResponse) decodeBody(r *stream.Reader) error {
	result, err := r.ReadUint32()
	if err != nil {
		return err
	}
	resp.Result = od.AbortCode(result)
	if !resp.Result.OK() {
		return nil
	}
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	if int64(n) > int64(r.RemainingBytes()) {
		return errors.NotValidf("data length %d", n)
	}
	resp.Data, err = r.ReadBytes(int(n))
	return err
}

// WriteRequestResponse answers a WriteRequest.
type WriteRequestResponse struct {
	responseBase
}

// NewWriteRequestResponse creates a WriteRequestResponse.
func NewWriteRequestResponse(result od.AbortCode) *WriteRequestResponse {
	resp := &WriteRequestResponse{}
	resp.Result = result
	return resp
}

func (resp *WriteRequestResponse) Type() MessageType { return WriteResponseType }

func (resp *WriteRequestResponse) encodeBody(w *stream.Writer) error {
	return w.WriteUint32(uint32(resp.Result))
}

func (resp *WriteRequestResponse) decodeBody(r *stream.Reader) error {
	result, err := r.ReadUint32()
	resp.Result = od.AbortCode(result)
	return err
}
