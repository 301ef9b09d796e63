package roda

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/angelodlfrtr/go-roda/od"
	"github.com/angelodlfrtr/go-roda/stream"
)

// MessageType identifies a request or response on the wire.
type MessageType uint8

const (
	ObjectEnumRequestType  MessageType = 0x01
	ObjectInfoRequestType  MessageType = 0x02
	ReadRequestType        MessageType = 0x03
	WriteRequestType       MessageType = 0x04
	ObjectEnumResponseType MessageType = 0x81
	ObjectInfoResponseType MessageType = 0x82
	ReadResponseType       MessageType = 0x83
	WriteResponseType      MessageType = 0x84
)

func (t MessageType) String() string {
	switch t {
	case ObjectEnumRequestType:
		return "ObjectEnumRequest"
	case ObjectInfoRequestType:
		return "ObjectInfoRequest"
	case ReadRequestType:
		return "ReadRequest"
	case WriteRequestType:
		return "WriteRequest"
	case ObjectEnumResponseType:
		return "ObjectEnumResponse"
	case ObjectInfoResponseType:
		return "ObjectInfoResponse"
	case ReadResponseType:
		return "ReadRequestResponse"
	case WriteResponseType:
		return "WriteRequestResponse"
	}
	return fmt.Sprintf("MessageType(0x%02X)", uint8(t))
}

// wireEndian is the byte order of all RODA messages.
const wireEndian = stream.LittleEndian

// Message is the common part of requests and responses.
type Message interface {
	Type() MessageType
	ReturnStack() *ReturnStack
	encodeBody(w *stream.Writer) error
	decodeBody(r *stream.Reader) error
}

// Request is a message sent through IRemoteObjectDictionaryAccess.Send.
type Request interface {
	Message
	// MaxResponseSize is the largest response, excluding its return stack
	// items, the requester is able to receive.
	MaxResponseSize() int
	SetMaxResponseSize(size int)
}

// Response is delivered through OnRequestProcessed.
type Response interface {
	Message
	// ResultCode is the application level outcome. A response carrying an
	// abort code is still a well formed response.
	ResultCode() od.AbortCode
}

type requestBase struct {
	returnStack     ReturnStack
	maxResponseSize uint32
}

func (req *requestBase) ReturnStack() *ReturnStack { return &req.returnStack }
func (req *requestBase) MaxResponseSize() int { return int(req.maxResponseSize) }

func (req *requestBase) SetMaxResponseSize(size int) {
	if size < 0 {
		size = 0
	}
	req.maxResponseSize = uint32(size)
}

type responseBase struct {
	returnStack ReturnStack
	Result      od.AbortCode
}

func (resp *responseBase) ReturnStack() *ReturnStack { return &resp.returnStack }
func (resp *responseBase) ResultCode() od.AbortCode { return resp.Result }

func encodeMessage(m Message, w *stream.Writer) error {
	if err := w.WriteUint8(uint8(m.Type())); err != nil {
		return err
	}
	if err := m.ReturnStack().encode(w); err != nil {
		return err
	}
	if req, ok := m.(Request); ok {
		if err := w.WriteUint32(uint32(req.MaxResponseSize())); err != nil {
			return err
		}
	}
	if err := m.encodeBody(w); err != nil {
		return err
	}
	return w.Close()
}

func decodeMessage(m Message, r *stream.Reader) error {
	if err := m.ReturnStack().decode(r); err != nil {
		return err
	}
	if req, ok := m.(Request); ok {
		size, err := r.ReadUint32()
		if err != nil {
			return err
		}
		req.SetMaxResponseSize(int(size))
	}
	if err := m.decodeBody(r); err != nil {
		return err
	}
	return r.EnsureAllDataConsumed()
}

// BinarySize returns the serialized size of m, return stack included. It
// fails if m cannot be encoded.
func BinarySize(m Message) (int, error) {
	w := stream.NewWriter(wireEndian, 0)
	if err := encodeMessage(m, w); err != nil {
		return 0, errors.Annotatef(err, "encode %s", m.Type())
	}
	return w.Len(), nil
}

// BinarySizeWithoutReturnStack returns the serialized size of m as if its
// return stack was empty. Size limits are expressed in this unit.
func BinarySizeWithoutReturnStack(m Message) (int, error) {
	size, err := BinarySize(m)
	if err != nil {
		return 0, err
	}
	return size - m.ReturnStack().BinarySize(), nil
}

// EncodeRequest serializes req.
func EncodeRequest(req Request) ([]byte, error) {
	w := stream.NewWriter(wireEndian, 0)
	if err := encodeMessage(req, w); err != nil {
		return nil, errors.Annotatef(err, "encode %s", req.Type())
	}
	return w.Bytes(), nil
}

// EncodeResponse serializes resp.
func EncodeResponse(resp Response) ([]byte, error) {
	w := stream.NewWriter(wireEndian, 0)
	if err := encodeMessage(resp, w); err != nil {
		return nil, errors.Annotatef(err, "encode %s", resp.Type())
	}
	return w.Bytes(), nil
}

// DecodeRequest deserializes a request. Trailing bytes are an error.
func DecodeRequest(data []byte) (Request, error) {
	r := stream.NewReader(data, wireEndian)
	t, err := r.ReadUint8()
	if err != nil {
		return nil, errors.Annotate(err, "decode request type")
	}
	var req Request
	switch MessageType(t) {
	case ObjectEnumRequestType:
		req = &ObjectEnumRequest{}
	case ObjectInfoRequestType:
		req = &ObjectInfoRequest{}
	case ReadRequestType:
		req = &ReadRequest{}
	case WriteRequestType:
		req = &WriteRequest{}
	default:
		return nil, errors.NotValidf("request type 0x%02X", t)
	}
	if err := decodeMessage(req, r); err != nil {
		return nil, errors.Annotatef(err, "decode %s", req.Type())
	}
	return req, nil
}

// DecodeResponse deserializes a response. Trailing bytes are an error.
func DecodeResponse(data []byte) (Response, error) {
	r := stream.NewReader(data, wireEndian)
	t, err := r.ReadUint8()
	if err != nil {
		return nil, errors.Annotate(err, "decode response type")
	}
	var resp Response
	switch MessageType(t) {
	case ObjectEnumResponseType:
		resp = &ObjectEnumResponse{}
	case ObjectInfoResponseType:
		resp = &ObjectInfoResponse{}
	case ReadResponseType:
		resp = &ReadRequestResponse{}
	case WriteResponseType:
		resp = &WriteRequestResponse{}
	default:
		return nil, errors.NotValidf("response type 0x%02X", t)
	}
	if err := decodeMessage(resp, r); err != nil {
		return nil, errors.Annotatef(err, "decode %s", resp.Type())
	}
	return resp, nil
}
