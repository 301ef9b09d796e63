package roda

// IRemoteObjectDictionaryAccess is a channel to a remote object dictionary.
//
// The provider behind it processes requests asynchronously and reports
// results through the registered IRemoteObjectDictionaryAccessNotifiable.
type IRemoteObjectDictionaryAccess interface {
	// RegisterNotifiable binds n. At most one notifiable may be registered;
	// a second registration fails. OnReady is delivered asynchronously once
	// the channel is usable.
	RegisterNotifiable(n IRemoteObjectDictionaryAccessNotifiable) error

	// UnregisterNotifiable unbinds the notifiable. No callback is running or
	// will be invoked after it returns.
	UnregisterNotifiable()

	// Send passes req to the provider. Ownership of req is transferred. The
	// provider rejects a request while another one is outstanding, if the
	// channel is not ready, or if req exceeds the negotiated request size.
	Send(req Request) error

	// RequestExecutionContext asks the provider to invoke
	// LoanExecutionContext once.
	RequestExecutionContext() error
}

// IRemoteObjectDictionaryAccessNotifiable receives the callbacks of an
// IRemoteObjectDictionaryAccess.
//
// All methods are invoked from a provider goroutine, never concurrently with
// each other, and must not block for an unbounded time.
type IRemoteObjectDictionaryAccessNotifiable interface {
	// OnReady reports that requests can be sent. Sizes are raw transport
	// limits; they include one ReturnStackItem of the receiver.
	OnReady(maxRequestSize, maxResponseSize int)

	// OnDisconnected reports that the channel is unusable. Outstanding
	// requests are dropped without response.
	OnDisconnected()

	// OnRequestProcessed delivers the response to a request sent before.
	OnRequestProcessed(resp Response)

	// LoanExecutionContext lends the provider's goroutine after a call to
	// RequestExecutionContext.
	LoanExecutionContext()
}
