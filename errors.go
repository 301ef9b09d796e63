package roda

import "github.com/juju/errors"

const (
	// ErrNotConnected is returned when the client is not connected to any
	// RODA interface.
	ErrNotConnected = errors.ConstError("not connected to a RODA interface")

	// ErrNotReady is returned when the RODA interface is connected but not
	// ready.
	ErrNotReady = errors.ConstError("RODA interface not ready")

	// ErrDisconnected is returned when the connection was lost or closed
	// while a request was in flight.
	ErrDisconnected = errors.ConstError("RODA interface disconnected")

	// ErrWrongResponseType is returned when the response does not match the
	// request. It indicates a broken provider.
	ErrWrongResponseType = errors.ConstError("unexpected response type")

	// ErrRequestTooLarge is returned when a request exceeds the negotiated
	// maximum request size.
	ErrRequestTooLarge = errors.ConstError("request exceeds maximum request size")

	// ErrResponseTooLarge is returned when the negotiated maximum response
	// size is too small for the smallest useful response.
	ErrResponseTooLarge = errors.ConstError("response does not fit maximum response size")
)
