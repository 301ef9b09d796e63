// Package stream implements bit-level byte stream readers and writers used
// to serialize RODA messages.
//
// Bits are packed LSB first. Multi-byte integers honour the configured
// endianness and may start at any bit offset. Errors are sticky: after the
// first failure the stream enters StateError and every further operation
// returns the same error.
package stream

import (
	"github.com/juju/errors"
)

// State is the state of a Reader or Writer.
type State int

const (
	// StateOpen means data can be read or written.
	StateOpen State = iota
	// StateEmpty means a reader has consumed all data.
	StateEmpty
	// StateError means a previous operation failed.
	StateError
	// StateClosed means the stream has been closed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateEmpty:
		return "empty"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Endian selects the byte order of multi-byte integers.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

const (
	// ErrEmpty is returned when reading past the end of the data.
	ErrEmpty = errors.ConstError("stream is empty")
	// ErrClosed is returned when operating on a closed stream.
	ErrClosed = errors.ConstError("stream is closed")
	// ErrFull is returned when a bounded writer would exceed its capacity.
	ErrFull = errors.ConstError("stream is full")
	// ErrRemainingData is returned by EnsureAllDataConsumed.
	ErrRemainingData = errors.ConstError("stream has unread data")
)
