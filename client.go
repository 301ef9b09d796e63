package roda

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/angelodlfrtr/go-roda/od"
)

const (
	// DefaultRxTimeout bounds the wait for a response in TxAndRx.
	DefaultRxTimeout = 1000 * time.Millisecond
	// DefaultRODAReadyTimeout bounds the wait for OnReady after connecting.
	DefaultRODAReadyTimeout = 1000 * time.Millisecond
)

// State is the state of a ClientBase.
type State int

const (
	// StateNotRegistered means no RODA interface is connected.
	StateNotRegistered State = iota
	// StateNotReady means a RODA interface is connected but not usable.
	StateNotReady
	// StateReady means requests can be sent.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateNotRegistered:
		return "not registered"
	case StateNotReady:
		return "not ready"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ClientConfig configures a ClientBase. Zero values select defaults.
type ClientConfig struct {
	// Name identifies the client in log output.
	Name string
	// RxTimeout bounds TxAndRx. Defaults to DefaultRxTimeout.
	RxTimeout time.Duration
	// Permissions are sent with read and write requests. Defaults to
	// od.AttrRW.
	Permissions od.Permissions
	// Clock is used for timeouts. Defaults to clock.WallClock.
	Clock clock.Clock
	// Logger defaults to the standard logrus logger.
	Logger *logrus.Entry
	// OnLoanedExecutionContext is invoked from LoanExecutionContext with no
	// lock held.
	OnLoanedExecutionContext func()
}

// ClientBase is the client side protocol state machine of a RODA
// connection. It connects to at most one IRemoteObjectDictionaryAccess at a
// time and allows one outstanding request.
//
// Locking order: connectMutex before internalMutex. connectMutex serializes
// Connect and Disconnect, internalMutex guards per-request state and is
// never held while calling into the RODA interface.
type ClientBase struct {
	connectMutex  sync.Mutex
	internalMutex sync.Mutex

	name        string
	clock       clock.Clock
	logger      *logrus.Entry
	rxTimeout   time.Duration
	permissions od.Permissions
	loanHook    func()
	ownerID     uint32

	// Guarded by internalMutex. roda is written only with both mutexes held.
	state            State
	sessionCnt       uint32
	roda             IRemoteObjectDictionaryAccess
	maxRequestSize   int
	maxResponseSize  int
	receivedResponse Response
	receiveOverflow  bool
	overflowCount    uint64
	responseArrived  chan struct{}
	stateChanged     chan struct{}
}

// NewClientBase creates a ClientBase in StateNotRegistered.
func NewClientBase(cfg ClientConfig) *ClientBase {
	if cfg.RxTimeout <= 0 {
		cfg.RxTimeout = DefaultRxTimeout
	}
	if cfg.Permissions == 0 {
		cfg.Permissions = od.AttrRW
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	ownerID := uuid.New().ID()
	return &ClientBase{
		name:            cfg.Name,
		clock:           cfg.Clock,
		logger:          cfg.Logger.WithFields(logrus.Fields{"component": "roda-client", "client": cfg.Name, "owner": fmt.Sprintf("%08X", ownerID)}),
		rxTimeout:       cfg.RxTimeout,
		permissions:     cfg.Permissions,
		loanHook:        cfg.OnLoanedExecutionContext,
		ownerID:         ownerID,
		responseArrived: make(chan struct{}),
		stateChanged:    make(chan struct{}),
	}
}

// Name returns the configured name.
func (c *ClientBase) Name() string {
	return c.name
}

// OwnerID returns the tag identifying this client in return stacks.
func (c *ClientBase) OwnerID() uint32 {
	return c.ownerID
}

// State returns the current state.
func (c *ClientBase) State() State {
	c.internalMutex.Lock()
	defer c.internalMutex.Unlock()
	return c.state
}

// SessionCounter returns the tag value expected in the next response.
func (c *ClientBase) SessionCounter() uint32 {
	c.internalMutex.Lock()
	defer c.internalMutex.Unlock()
	return c.sessionCnt
}

// ReceiveOverflowCount returns how many responses arrived while another one
// was still buffered.
func (c *ClientBase) ReceiveOverflowCount() uint64 {
	c.internalMutex.Lock()
	defer c.internalMutex.Unlock()
	return c.overflowCount
}

// MaxRequestSize returns the negotiated request size, return stack item of
// this client already subtracted. Only valid in StateReady.
func (c *ClientBase) MaxRequestSize() (int, error) {
	c.internalMutex.Lock()
	defer c.internalMutex.Unlock()
	if err := c.readyErr(); err != nil {
		return 0, err
	}
	return c.maxRequestSize, nil
}

// MaxResponseSize is the response counterpart of MaxRequestSize.
func (c *ClientBase) MaxResponseSize() (int, error) {
	c.internalMutex.Lock()
	defer c.internalMutex.Unlock()
	if err := c.readyErr(); err != nil {
		return 0, err
	}
	return c.maxResponseSize, nil
}

// IsConnectedTo reports whether itf is the connected RODA interface.
func (c *ClientBase) IsConnectedTo(itf IRemoteObjectDictionaryAccess) bool {
	c.internalMutex.Lock()
	defer c.internalMutex.Unlock()
	return c.roda != nil && c.roda == itf
}

// readyErr requires internalMutex.
func (c *ClientBase) readyErr() error {
	switch c.state {
	case StateNotRegistered:
		return ErrNotConnected
	case StateNotReady:
		return ErrNotReady
	}
	return nil
}

// setState requires internalMutex.
func (c *ClientBase) setState(state State) {
	if c.state == state {
		return
	}
	c.logger.Debugf("state %s -> %s", c.state, state)
	c.state = state
	close(c.stateChanged)
	c.stateChanged = make(chan struct{})
}

// signalResponse requires internalMutex.
func (c *ClientBase) signalResponse() {
	close(c.responseArrived)
	c.responseArrived = make(chan struct{})
}

// Connect registers the client at itf. The client must be in
// StateNotRegistered. On failure the client stays in StateNotRegistered.
func (c *ClientBase) Connect(itf IRemoteObjectDictionaryAccess) error {
	if itf == nil {
		return errors.NotValidf("nil RODA interface")
	}
	c.connectMutex.Lock()
	defer c.connectMutex.Unlock()

	c.internalMutex.Lock()
	if c.state != StateNotRegistered {
		c.internalMutex.Unlock()
		return errors.AlreadyExistsf("connection of client %q", c.name)
	}
	c.roda = itf
	c.sessionCnt++
	c.receivedResponse = nil
	c.receiveOverflow = false
	c.setState(StateNotReady)
	c.internalMutex.Unlock()

	// The provider may call back synchronously, so internalMutex is released.
	if err := itf.RegisterNotifiable((*notifiable)(c)); err != nil {
		c.internalMutex.Lock()
		c.roda = nil
		c.setState(StateNotRegistered)
		c.internalMutex.Unlock()
		return errors.Annotate(err, "register at RODA interface")
	}
	c.logger.Debug("connected")
	return nil
}

// Disconnect unregisters the client from the connected RODA interface. A
// pending TxAndRx returns ErrDisconnected. No-op if not connected.
func (c *ClientBase) Disconnect() {
	c.connectMutex.Lock()
	defer c.connectMutex.Unlock()

	// roda may be read under either mutex.
	itf := c.roda
	if itf == nil {
		return
	}
	itf.UnregisterNotifiable()

	c.internalMutex.Lock()
	c.roda = nil
	// A request in flight belongs to the lost session.
	c.sessionCnt++
	c.maxRequestSize = 0
	c.maxResponseSize = 0
	c.receivedResponse = nil
	c.receiveOverflow = false
	c.setState(StateNotRegistered)
	c.internalMutex.Unlock()
	c.logger.Debug("disconnected")
}

// WaitForRODAItfReady blocks until the client is ready, the client gets
// disconnected, or timeout elapses. It returns true if the client is ready.
func (c *ClientBase) WaitForRODAItfReady(timeout time.Duration) bool {
	var deadline <-chan time.Time
	for {
		c.internalMutex.Lock()
		state := c.state
		changed := c.stateChanged
		c.internalMutex.Unlock()

		switch state {
		case StateReady:
			return true
		case StateNotRegistered:
			return false
		}
		if deadline == nil {
			deadline = c.clock.After(timeout)
		}
		select {
		case <-changed:
		case <-deadline:
			return c.State() == StateReady
		}
	}
}

// RequestExecutionContext asks the connected RODA interface to lend its
// goroutine through LoanExecutionContext.
func (c *ClientBase) RequestExecutionContext() error {
	c.internalMutex.Lock()
	itf := c.roda
	c.internalMutex.Unlock()
	if itf == nil {
		return ErrNotConnected
	}
	return itf.RequestExecutionContext()
}

// TxAndRx sends req and blocks until its response arrives, the connection
// is lost, or the receive timeout elapses. Only one call may be in flight per
// client; callers must not invoke TxAndRx concurrently.
func (c *ClientBase) TxAndRx(req Request) (Response, error) {
	reqType := req.Type()

	c.internalMutex.Lock()
	if err := c.readyErr(); err != nil {
		c.internalMutex.Unlock()
		return nil, err
	}
	if req.ReturnStack().Len() != 0 {
		c.internalMutex.Unlock()
		return nil, errors.NotValidf("%s with non-empty return stack", reqType)
	}
	size, err := BinarySizeWithoutReturnStack(req)
	if err != nil {
		c.internalMutex.Unlock()
		return nil, errors.Trace(err)
	}
	if size > c.maxRequestSize {
		c.internalMutex.Unlock()
		return nil, errors.Annotatef(ErrRequestTooLarge, "%s of %d bytes, limit %d", reqType, size, c.maxRequestSize)
	}
	if req.MaxResponseSize() == 0 || req.MaxResponseSize() > c.maxResponseSize {
		req.SetMaxResponseSize(c.maxResponseSize)
	}

	c.sessionCnt++
	tag := ReturnStackItem{ID: c.ownerID, Info: c.sessionCnt}
	if err := req.ReturnStack().Push(tag); err != nil {
		c.internalMutex.Unlock()
		return nil, errors.Trace(err)
	}
	c.receivedResponse = nil
	c.receiveOverflow = false
	itf := c.roda
	c.internalMutex.Unlock()

	c.logger.Debugf("tx %s session %d", reqType, tag.Info)
	if err := itf.Send(req); err != nil {
		// Leave req as the caller passed it so it can be sent again.
		if _, popErr := req.ReturnStack().Pop(); popErr != nil {
			c.logger.Warnf("tx %s: pop own tag: %v", reqType, popErr)
		}
		return nil, errors.Annotatef(err, "send %s", reqType)
	}

	timeout := c.clock.After(c.rxTimeout)
	for {
		c.internalMutex.Lock()
		if resp := c.receivedResponse; resp != nil {
			c.receivedResponse = nil
			if c.receiveOverflow {
				c.logger.Warnf("rx %s: additional responses were received and dropped", resp.Type())
			}
			c.receiveOverflow = false
			c.internalMutex.Unlock()
			c.logger.Debugf("rx %s session %d", resp.Type(), tag.Info)
			return resp, nil
		}
		if c.state != StateReady || c.sessionCnt != tag.Info {
			c.internalMutex.Unlock()
			return nil, errors.Annotatef(ErrDisconnected, "waiting for response to %s", reqType)
		}
		arrived := c.responseArrived
		changed := c.stateChanged
		c.internalMutex.Unlock()

		select {
		case <-arrived:
		case <-changed:
		case <-timeout:
			return nil, errors.Timeoutf("response to %s within %v", reqType, c.rxTimeout)
		}
	}
}

// notifiable is the IRemoteObjectDictionaryAccessNotifiable face of a
// ClientBase. Keeping it a distinct type hides the callbacks from the
// client's public API.
type notifiable ClientBase

func (n *notifiable) OnReady(maxRequestSize, maxResponseSize int) {
	c := (*ClientBase)(n)
	c.internalMutex.Lock()
	defer c.internalMutex.Unlock()

	if c.state != StateNotReady {
		panic(fmt.Sprintf("roda: OnReady in state %s", c.state))
	}
	if maxRequestSize <= ReturnStackItemBinarySize || maxResponseSize <= ReturnStackItemBinarySize {
		c.logger.Errorf("OnReady with unusable sizes req=%d resp=%d", maxRequestSize, maxResponseSize)
		return
	}
	c.maxRequestSize = maxRequestSize - ReturnStackItemBinarySize
	c.maxResponseSize = maxResponseSize - ReturnStackItemBinarySize
	c.setState(StateReady)
}

func (n *notifiable) OnDisconnected() {
	c := (*ClientBase)(n)
	c.internalMutex.Lock()
	defer c.internalMutex.Unlock()

	if c.state == StateNotRegistered {
		panic("roda: OnDisconnected while not registered")
	}
	// A request in flight belongs to the lost session.
	c.sessionCnt++
	c.maxRequestSize = 0
	c.maxResponseSize = 0
	c.receivedResponse = nil
	c.receiveOverflow = false
	c.setState(StateNotReady)
}

func (n *notifiable) OnRequestProcessed(resp Response) {
	c := (*ClientBase)(n)
	if resp == nil {
		c.logger.Warn("OnRequestProcessed without response")
		return
	}
	item, err := resp.ReturnStack().Pop()

	c.internalMutex.Lock()
	defer c.internalMutex.Unlock()

	switch {
	case err != nil:
		c.logger.Warnf("rx %s without return stack item, dropped", resp.Type())
		return
	case item.ID != c.ownerID || item.Info != c.sessionCnt:
		c.logger.Debugf("rx stale %s (owner %08X session %d), dropped", resp.Type(), item.ID, item.Info)
		return
	case c.state != StateReady:
		c.logger.Debugf("rx %s in state %s, dropped", resp.Type(), c.state)
		return
	}

	if c.receivedResponse != nil {
		// Keep the first response, drop the new one.
		c.receiveOverflow = true
		c.overflowCount++
		c.logger.Warnf("rx %s while previous response not consumed, dropped", resp.Type())
	} else {
		c.receivedResponse = resp
	}
	c.signalResponse()
}

func (n *notifiable) LoanExecutionContext() {
	if hook := n.loanHook; hook != nil {
		hook()
	}
}
