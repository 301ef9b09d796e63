package roda

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gosuri/uitable"
	"github.com/juju/errors"
	"github.com/thoas/go-funk"

	"github.com/angelodlfrtr/go-roda/cli"
)

// MultiClientConfig configures a MultiClient.
type MultiClientConfig struct {
	ClientConfig
	// CommandName is the CLI command registered for the client. No command
	// is registered if it is empty.
	CommandName string
	// RODAReadyTimeout bounds the wait for readiness after switching to
	// another RODA interface. Defaults to DefaultRODAReadyTimeout.
	RODAReadyTimeout time.Duration
}

// MultiClient shares one ClientBase among several RODA interfaces
// registered under an ID. It connects to the addressed interface on demand.
//
// rodaItfMutex is locked before any mutex of the ClientBase.
type MultiClient struct {
	rodaItfMutex sync.Mutex
	itfs         map[uint32]IRemoteObjectDictionaryAccess
	currentID    uint32
	connected    bool

	client       *ClientBase
	registry     *cli.CLI
	commandName  string
	readyTimeout time.Duration
}

// NewMultiClient creates a MultiClient without registered interfaces.
func NewMultiClient(registry *cli.CLI, cfg MultiClientConfig) (*MultiClient, error) {
	if cfg.RODAReadyTimeout <= 0 {
		cfg.RODAReadyTimeout = DefaultRODAReadyTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.CommandName
	}
	multiClient := &MultiClient{
		itfs:         make(map[uint32]IRemoteObjectDictionaryAccess),
		client:       NewClientBase(cfg.ClientConfig),
		commandName:  cfg.CommandName,
		readyTimeout: cfg.RODAReadyTimeout,
	}
	if registry != nil && cfg.CommandName != "" {
		err := registry.AddCommand(cli.Command{
			Name:    cfg.CommandName,
			Summary: "remote object dictionary access, see '" + cfg.CommandName + " help'",
			Handler: multiClient.handleCLI,
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		multiClient.registry = registry
	}
	return multiClient, nil
}

// Register adds itf under id. A duplicate id is refused. Registering an
// interface that is already registered under another id panics.
func (multiClient *MultiClient) Register(itf IRemoteObjectDictionaryAccess, id uint32) error {
	if itf == nil {
		return errors.NotValidf("nil RODA interface")
	}
	multiClient.rodaItfMutex.Lock()
	defer multiClient.rodaItfMutex.Unlock()
	if _, ok := multiClient.itfs[id]; ok {
		return errors.AlreadyExistsf("RODA interface %d", id)
	}
	for other, registered := range multiClient.itfs {
		if registered == itf {
			panic(fmt.Sprintf("roda: RODA interface registered as %d and %d", other, id))
		}
	}
	multiClient.itfs[id] = itf
	multiClient.client.logger.Debugf("registered RODA interface %d", id)
	return nil
}

// Unregister removes the interface registered under id, disconnecting
// from it first if it is the current one. Unknown ids are ignored.
func (multiClient *MultiClient) Unregister(id uint32) error {
	multiClient.rodaItfMutex.Lock()
	defer multiClient.rodaItfMutex.Unlock()
	itf, ok := multiClient.itfs[id]
	if !ok {
		multiClient.client.logger.Debugf("unregister of unknown RODA interface %d ignored", id)
		return nil
	}
	if multiClient.client.IsConnectedTo(itf) {
		multiClient.client.Disconnect()
		multiClient.connected = false
	}
	delete(multiClient.itfs, id)
	multiClient.client.logger.Debugf("unregistered RODA interface %d", id)
	return nil
}

// IDs returns the registered IDs in ascending order.
func (multiClient *MultiClient) IDs() []uint32 {
	multiClient.rodaItfMutex.Lock()
	ids := funk.Keys(multiClient.itfs).([]uint32)
	multiClient.rodaItfMutex.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CurrentID returns the ID of the interface the client is connected to. ok
// is false if it is connected to none.
func (multiClient *MultiClient) CurrentID() (id uint32, ok bool) {
	multiClient.rodaItfMutex.Lock()
	defer multiClient.rodaItfMutex.Unlock()
	return multiClient.currentID, multiClient.connected
}

// Do connects to the interface registered under id, waits until it is ready
// and calls fn. Registration changes block until fn returns.
func (multiClient *MultiClient) Do(id uint32, fn func(client *ClientBase) error) error {
	multiClient.rodaItfMutex.Lock()
	defer multiClient.rodaItfMutex.Unlock()
	if err := multiClient.ensureConnected(id); err != nil {
		return err
	}
	return fn(multiClient.client)
}

// Close removes the CLI command and disconnects. All interfaces must have
// been unregistered before.
func (multiClient *MultiClient) Close() {
	multiClient.rodaItfMutex.Lock()
	defer multiClient.rodaItfMutex.Unlock()
	if len(multiClient.itfs) != 0 {
		panic(fmt.Sprintf("roda: MultiClient closed with %d registered RODA interfaces", len(multiClient.itfs)))
	}
	if multiClient.registry != nil {
		multiClient.registry.RemoveCommand(multiClient.commandName)
		multiClient.registry = nil
	}
	multiClient.client.Disconnect()
}

// ensureConnected requires rodaItfMutex.
func (multiClient *MultiClient) ensureConnected(id uint32) error {
	itf, ok := multiClient.itfs[id]
	if !ok {
		return errors.NotFoundf("RODA interface %d", id)
	}
	if !multiClient.client.IsConnectedTo(itf) {
		multiClient.client.Disconnect()
		multiClient.connected = false
		if err := multiClient.client.Connect(itf); err != nil {
			return errors.Annotatef(err, "connect to RODA interface %d", id)
		}
		multiClient.currentID = id
		multiClient.connected = true
	}
	if !multiClient.client.WaitForRODAItfReady(multiClient.readyTimeout) {
		return errors.Annotatef(ErrNotReady, "RODA interface %d within %v", id, multiClient.readyTimeout)
	}
	return nil
}

func (multiClient *MultiClient) handleCLI(ctx *cli.Context) error {
	if len(ctx.Args) == 0 || ctx.Args[0] == "help" {
		fmt.Fprintf(ctx.Out, "%s ids\n", multiClient.commandName)
		printCLIUsage(ctx.Out, multiClient.commandName+" ID")
		return nil
	}
	if ctx.Args[0] == "ids" {
		table := uitable.New()
		table.AddRow("ID", "CONNECTED")
		current, connected := multiClient.CurrentID()
		for _, id := range multiClient.IDs() {
			table.AddRow(id, connected && id == current)
		}
		fmt.Fprintln(ctx.Out, table)
		return nil
	}
	v, err := cli.ParseUint(ctx.Args[0], 32)
	if err != nil {
		return errors.NotValidf("RODA interface ID %q", ctx.Args[0])
	}
	id := uint32(v)
	if len(ctx.Args) < 2 {
		printCLIUsage(ctx.Out, fmt.Sprintf("%s %d", multiClient.commandName, id))
		return nil
	}
	if _, ok := findCLISubCommand(ctx.Args[1]); !ok && ctx.Args[1] != "help" {
		return errors.NotFoundf("sub-command %q", ctx.Args[1])
	}
	return multiClient.Do(id, func(client *ClientBase) error {
		return client.runCLI(&cli.Context{Args: ctx.Args[1:], Out: ctx.Out, Prompter: ctx.Prompter}, fmt.Sprintf("%s %d", multiClient.commandName, id))
	})
}
