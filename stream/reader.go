package stream

import (
	"github.com/juju/errors"
)

// Reader deserializes from a byte slice.
type Reader struct {
	data   []byte
	pos    int   // index of the current byte
	bitPos uint8 // bits already consumed from data[pos]
	endian Endian
	state  State
	err    error
}

// NewReader creates a Reader over data. data is not copied.
func NewReader(data []byte, endian Endian) *Reader {
	r := &Reader{data: data, endian: endian}
	if len(data) == 0 {
		r.state = StateEmpty
	}
	return r
}

// State returns the current state.
func (r *Reader) State() State {
	return r.state
}

// Err returns the sticky error, if any.
func (r *Reader) Err() error {
	return r.err
}

// RemainingBytes returns the number of bytes not yet touched. A partially
// consumed byte is not counted.
func (r *Reader) RemainingBytes() int {
	n := len(r.data) - r.pos
	if r.bitPos != 0 {
		n--
	}
	return n
}

// Close closes the reader and returns the sticky error.
func (r *Reader) Close() error {
	if r.state != StateError {
		r.state = StateClosed
	}
	return r.err
}

func (r *Reader) fail(err error) error {
	if r.err == nil {
		r.err = err
		r.state = StateError
	}
	return r.err
}

func (r *Reader) check() error {
	switch r.state {
	case StateError:
		return r.err
	case StateClosed:
		return ErrClosed
	case StateEmpty:
		return r.fail(ErrEmpty)
	}
	return nil
}

func (r *Reader) advance(bits uint8) {
	r.bitPos += bits
	if r.bitPos == 8 {
		r.bitPos = 0
		r.pos++
	}
	if r.pos >= len(r.data) {
		r.state = StateEmpty
	}
}

// ReadBits reads n (1..8) bits.
func (r *Reader) ReadBits(n uint8) (uint8, error) {
	if n == 0 || n > 8 {
		return 0, r.fail(errors.NotValidf("bit count %d", n))
	}
	var v uint8
	var got uint8
	for got < n {
		if err := r.check(); err != nil {
			return 0, err
		}
		avail := 8 - r.bitPos
		take := n - got
		if take > avail {
			take = avail
		}
		bits := (r.data[r.pos] >> r.bitPos) & uint8((uint16(1)<<take)-1)
		v |= bits << got
		got += take
		r.advance(take)
	}
	return v, nil
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v != 0, err
}

// SkipBitsToNextByteBoundary discards the rest of a partially read byte.
func (r *Reader) SkipBitsToNextByteBoundary() {
	if r.bitPos != 0 {
		r.advance(8 - r.bitPos)
	}
}

func (r *Reader) readByte() (byte, error) {
	if r.bitPos != 0 {
		return r.ReadBits(8)
	}
	if err := r.check(); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.advance(8)
	return b, nil
}

func (r *Reader) readUint(size int) (uint64, error) {
	var v uint64
	for i := 0; i < size; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		shift := uint(i * 8)
		if r.endian == BigEndian {
			shift = uint((size - 1 - i) * 8)
		}
		v |= uint64(b) << shift
	}
	return v, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	v, err := r.readUint(1)
	return uint8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.readUint(2)
	return uint16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.readUint(4)
	return uint32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	return r.readUint(8)
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.readUint(1)
	return int8(v), err
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.readUint(2)
	return int16(v), err
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.readUint(4)
	return int32(v), err
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.readUint(8)
	return int64(v), err
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, r.fail(errors.NotValidf("length %d", n))
	}
	if n == 0 {
		return []byte{}, nil
	}
	if r.bitPos == 0 && r.state == StateOpen && r.pos+n <= len(r.data) {
		out := append([]byte(nil), r.data[r.pos:r.pos+n]...)
		r.pos += n
		if r.pos >= len(r.data) {
			r.state = StateEmpty
		}
		return out, nil
	}
	out := make([]byte, n)
	for i := range out {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// ReadString reads a NUL-terminated string.
func (r *Reader) ReadString() (string, error) {
	var out []byte
	for {
		b, err := r.readByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
}

// EnsureAllDataConsumed fails if whole bytes are left unread. Padding bits
// in a partially read last byte are ignored.
func (r *Reader) EnsureAllDataConsumed() error {
	switch r.state {
	case StateError:
		return r.err
	case StateClosed:
		return ErrClosed
	}
	if n := r.RemainingBytes(); n > 0 {
		return r.fail(errors.Annotatef(ErrRemainingData, "%d bytes", n))
	}
	return nil
}
