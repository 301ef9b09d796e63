// Package provider implements in-process RODA interfaces.
package provider

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"github.com/angelodlfrtr/go-roda"
	"github.com/angelodlfrtr/go-roda/od"
)

const (
	// DefaultMaxRequestSize is the request size offered in OnReady.
	DefaultMaxRequestSize = 1024
	// DefaultMaxResponseSize is the response size offered in OnReady.
	DefaultMaxResponseSize = 1024

	// ErrBusy is returned by Send while a request is being processed.
	ErrBusy = errors.ConstError("request in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.ConstError("provider closed")
)

// LocalConfig configures a Local provider. Zero values select defaults.
type LocalConfig struct {
	Name            string
	MaxRequestSize  int
	MaxResponseSize int
	// ProcessingDelay delays every response.
	ProcessingDelay time.Duration
	Clock           clock.Clock
	Logger          *logrus.Entry
}

type eventKind int

const (
	eventReady eventKind = iota
	eventDisconnected
	eventRequest
	eventLoan
)

type event struct {
	kind  eventKind
	epoch uint64
	// link is the link generation a request was accepted in.
	link uint64
	data []byte
}

// Handler executes requests on behalf of a Local provider. The response
// must fit req.MaxResponseSize and carry no return stack.
type Handler interface {
	Handle(req roda.Request) roda.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req roda.Request) roda.Response

// Handle implements Handler.
func (f HandlerFunc) Handle(req roda.Request) roda.Response {
	return f(req)
}

// DictionaryHandler serves dic.
func DictionaryHandler(dic *od.ObjectDictionary) Handler {
	return HandlerFunc(func(req roda.Request) roda.Response {
		return Process(dic, req)
	})
}

// Local is an IRemoteObjectDictionaryAccess running a Handler. Requests are
// serialized, processed and answered on a worker goroutine, the way a remote
// peer would.
type Local struct {
	handler Handler
	cfg     LocalConfig
	logger  *logrus.Entry
	tomb    tomb.Tomb
	wake    chan struct{}

	// notifyMu is held while a callback runs.
	notifyMu sync.Mutex

	mu         sync.Mutex
	notifiable roda.IRemoteObjectDictionaryAccessNotifiable
	linkUp     bool
	// ready tells whether the notifiable was last told OnReady.
	ready bool
	busy  bool
	// epoch changes with every registration, linkGen with every link loss.
	epoch   uint64
	linkGen uint64
	pending []event
}

// NewLocal starts a provider serving dic. The link is up initially.
func NewLocal(dic *od.ObjectDictionary, cfg LocalConfig) *Local {
	return NewWithHandler(DictionaryHandler(dic), cfg)
}

// NewWithHandler starts a provider running handler. The link is up
// initially.
func NewWithHandler(handler Handler, cfg LocalConfig) *Local {
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = DefaultMaxRequestSize
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	local := &Local{
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.WithFields(logrus.Fields{"component": "roda-local", "provider": cfg.Name}),
		wake:    make(chan struct{}, 1),
		linkUp:  true,
	}
	local.tomb.Go(local.loop)
	return local
}

// Close stops the worker. Registered notifiables receive no further
// callbacks.
func (local *Local) Close() error {
	local.tomb.Kill(nil)
	return local.tomb.Wait()
}

// RegisterNotifiable implements roda.IRemoteObjectDictionaryAccess.
func (local *Local) RegisterNotifiable(n roda.IRemoteObjectDictionaryAccessNotifiable) error {
	if n == nil {
		return errors.NotValidf("nil notifiable")
	}
	local.mu.Lock()
	defer local.mu.Unlock()
	if local.notifiable != nil {
		return errors.AlreadyExistsf("notifiable")
	}
	local.notifiable = n
	local.epoch++
	if local.linkUp {
		local.enqueue(event{kind: eventReady, epoch: local.epoch})
	}
	return nil
}

// UnregisterNotifiable implements roda.IRemoteObjectDictionaryAccess. It
// must not be called from a callback.
func (local *Local) UnregisterNotifiable() {
	local.notifyMu.Lock()
	defer local.notifyMu.Unlock()
	local.mu.Lock()
	defer local.mu.Unlock()
	local.notifiable = nil
	local.ready = false
	local.busy = false
	local.epoch++
}

// Send implements roda.IRemoteObjectDictionaryAccess.
func (local *Local) Send(req roda.Request) error {
	local.mu.Lock()
	defer local.mu.Unlock()
	switch {
	case !local.tomb.Alive():
		return ErrClosed
	case local.notifiable == nil:
		return roda.ErrNotConnected
	case !local.ready || !local.linkUp:
		return roda.ErrNotReady
	case local.busy:
		return ErrBusy
	}
	size, err := roda.BinarySizeWithoutReturnStack(req)
	if err != nil {
		return errors.Trace(err)
	}
	if size += roda.ReturnStackItemBinarySize; size > local.cfg.MaxRequestSize {
		return errors.Annotatef(roda.ErrRequestTooLarge, "%d bytes", size)
	}
	data, err := roda.EncodeRequest(req)
	if err != nil {
		return errors.Trace(err)
	}
	local.busy = true
	local.enqueue(event{kind: eventRequest, epoch: local.epoch, link: local.linkGen, data: data})
	return nil
}

// RequestExecutionContext implements roda.IRemoteObjectDictionaryAccess.
func (local *Local) RequestExecutionContext() error {
	local.mu.Lock()
	defer local.mu.Unlock()
	if local.notifiable == nil {
		return roda.ErrNotConnected
	}
	local.enqueue(event{kind: eventLoan, epoch: local.epoch})
	return nil
}

// SetLinkUp simulates loss and recovery of the connection to the remote
// dictionary. Losing the link drops a request in progress.
func (local *Local) SetLinkUp(up bool) {
	local.mu.Lock()
	defer local.mu.Unlock()
	if local.linkUp == up {
		return
	}
	local.linkUp = up
	if local.notifiable == nil {
		return
	}
	if up {
		local.enqueue(event{kind: eventReady, epoch: local.epoch})
		return
	}
	local.linkGen++
	local.busy = false
	local.enqueue(event{kind: eventDisconnected, epoch: local.epoch})
}

// enqueue requires mu.
func (local *Local) enqueue(ev event) {
	local.pending = append(local.pending, ev)
	select {
	case local.wake <- struct{}{}:
	default:
	}
}

func (local *Local) loop() error {
	for {
		select {
		case <-local.tomb.Dying():
			return tomb.ErrDying
		case <-local.wake:
		}
		local.mu.Lock()
		events := local.pending
		local.pending = nil
		local.mu.Unlock()

		for _, ev := range events {
			if err := local.handle(ev); err != nil {
				return err
			}
		}
	}
}

func (local *Local) handle(ev event) error {
	switch ev.kind {
	case eventReady:
		local.notify(ev.epoch, func() bool {
			if local.ready || !local.linkUp {
				return false
			}
			local.ready = true
			return true
		}, func(n roda.IRemoteObjectDictionaryAccessNotifiable) {
			n.OnReady(local.cfg.MaxRequestSize, local.cfg.MaxResponseSize)
		})

	case eventDisconnected:
		local.notify(ev.epoch, func() bool {
			if !local.ready {
				return false
			}
			local.ready = false
			return true
		}, func(n roda.IRemoteObjectDictionaryAccessNotifiable) {
			n.OnDisconnected()
		})

	case eventLoan:
		local.notify(ev.epoch, nil, func(n roda.IRemoteObjectDictionaryAccessNotifiable) {
			n.LoanExecutionContext()
		})

	case eventRequest:
		resp, err := local.process(ev.data)
		if err != nil {
			local.logger.Errorf("process request: %v", err)
		}
		if local.cfg.ProcessingDelay > 0 {
			select {
			case <-local.cfg.Clock.After(local.cfg.ProcessingDelay):
			case <-local.tomb.Dying():
				return tomb.ErrDying
			}
		}
		local.notify(ev.epoch, func() bool {
			if ev.link != local.linkGen {
				return false
			}
			local.busy = false
			return resp != nil && local.ready && local.linkUp
		}, func(n roda.IRemoteObjectDictionaryAccessNotifiable) {
			n.OnRequestProcessed(resp)
		})
	}
	return nil
}

// notify runs fn with the registered notifiable if ev's epoch is still
// current and check, called with mu held, agrees.
func (local *Local) notify(epoch uint64, check func() bool, fn func(n roda.IRemoteObjectDictionaryAccessNotifiable)) {
	local.notifyMu.Lock()
	defer local.notifyMu.Unlock()

	local.mu.Lock()
	n := local.notifiable
	ok := n != nil && local.epoch == epoch
	if ok && check != nil {
		ok = check()
	}
	local.mu.Unlock()
	if ok {
		fn(n)
	}
}

// process decodes a request, executes it and returns the decoded response
// carrying the request's return stack.
func (local *Local) process(data []byte) (roda.Response, error) {
	req, err := roda.DecodeRequest(data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if limit := local.cfg.MaxResponseSize - roda.ReturnStackItemBinarySize; req.MaxResponseSize() > limit {
		req.SetMaxResponseSize(limit)
	}
	resp := local.handler.Handle(req)
	resp.ReturnStack().Set(req.ReturnStack().Items())

	out, err := roda.EncodeResponse(resp)
	if err != nil {
		return nil, errors.Trace(err)
	}
	local.logger.Debugf("processed %s: %s", req.Type(), resp.ResultCode())
	return roda.DecodeResponse(out)
}
