package stream

import (
	"github.com/juju/errors"
)

// Writer serializes into a growing byte slice.
type Writer struct {
	buf    []byte
	bitPos uint8 // bits already used in the last byte, 0 if aligned
	endian Endian
	limit  int
	state  State
	err    error
}

// NewWriter creates a Writer. limit bounds the number of bytes written, 0
// means unbounded.
func NewWriter(endian Endian, limit int) *Writer {
	return &Writer{endian: endian, limit: limit}
}

// State returns the current state.
func (w *Writer) State() State {
	return w.state
}

// Err returns the sticky error, if any.
func (w *Writer) Err() error {
	return w.err
}

// Len returns the number of bytes written so far, including a partially
// filled last byte.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written data.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Close closes the writer and returns the sticky error.
func (w *Writer) Close() error {
	if w.state != StateError {
		w.state = StateClosed
	}
	return w.err
}

func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = err
		w.state = StateError
	}
	return w.err
}

func (w *Writer) check() error {
	switch w.state {
	case StateError:
		return w.err
	case StateClosed:
		return ErrClosed
	}
	return nil
}

func (w *Writer) grow() error {
	if w.limit > 0 && len(w.buf) >= w.limit {
		return w.fail(errors.Annotatef(ErrFull, "limit %d bytes", w.limit))
	}
	w.buf = append(w.buf, 0)
	return nil
}

// WriteBits writes the n (1..8) least significant bits of v.
func (w *Writer) WriteBits(v uint8, n uint8) error {
	if err := w.check(); err != nil {
		return err
	}
	if n == 0 || n > 8 {
		return w.fail(errors.NotValidf("bit count %d", n))
	}
	v &= uint8((uint16(1) << n) - 1)
	for n > 0 {
		if w.bitPos == 0 {
			if err := w.grow(); err != nil {
				return err
			}
		}
		free := 8 - w.bitPos
		take := n
		if take > free {
			take = free
		}
		w.buf[len(w.buf)-1] |= (v & uint8((uint16(1)<<take)-1)) << w.bitPos
		v >>= take
		n -= take
		w.bitPos = (w.bitPos + take) % 8
	}
	return nil
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(b bool) error {
	var v uint8
	if b {
		v = 1
	}
	return w.WriteBits(v, 1)
}

// AlignToByteBoundary pads the current byte with zero bits.
func (w *Writer) AlignToByteBoundary() error {
	if err := w.check(); err != nil {
		return err
	}
	w.bitPos = 0
	return nil
}

func (w *Writer) writeByte(b byte) error {
	if w.bitPos != 0 {
		return w.WriteBits(b, 8)
	}
	if err := w.check(); err != nil {
		return err
	}
	if err := w.grow(); err != nil {
		return err
	}
	w.buf[len(w.buf)-1] = b
	return nil
}

func (w *Writer) writeUint(v uint64, size int) error {
	for i := 0; i < size; i++ {
		shift := uint(i * 8)
		if w.endian == BigEndian {
			shift = uint((size - 1 - i) * 8)
		}
		if err := w.writeByte(byte(v >> shift)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) WriteUint8(v uint8) error { return w.writeUint(uint64(v), 1) }
func (w *Writer) WriteUint16(v uint16) error { return w.writeUint(uint64(v), 2) }
func (w *Writer) WriteUint32(v uint32) error { return w.writeUint(uint64(v), 4) }
func (w *Writer) WriteUint64(v uint64) error { return w.writeUint(v, 8) }
func (w *Writer) WriteInt8(v int8) error { return w.writeUint(uint64(v), 1) }
func (w *Writer) WriteInt16(v int16) error { return w.writeUint(uint64(v), 2) }
func (w *Writer) WriteInt32(v int32) error { return w.writeUint(uint64(v), 4) }
func (w *Writer) WriteInt64(v int64) error { return w.writeUint(uint64(v), 8) }

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) error {
	for _, c := range b {
		if err := w.writeByte(c); err != nil {
			return err
		}
	}
	return w.check()
}

// WriteString writes s followed by a NUL terminator. s must not contain NUL.
func (w *Writer) WriteString(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return w.fail(errors.NotValidf("string with embedded NUL"))
		}
	}
	if err := w.WriteBytes([]byte(s)); err != nil {
		return err
	}
	return w.writeByte(0)
}
