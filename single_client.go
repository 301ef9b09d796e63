package roda

import (
	"time"

	"github.com/juju/errors"

	"github.com/angelodlfrtr/go-roda/cli"
)

// SingleClientConfig configures a SingleClient.
type SingleClientConfig struct {
	ClientConfig
	// CommandName is the CLI command registered for the client. No command
	// is registered if it is empty.
	CommandName string
	// RODAReadyTimeout bounds the wait for readiness before each CLI
	// command. Defaults to DefaultRODAReadyTimeout.
	RODAReadyTimeout time.Duration
}

// SingleClient is a ClientBase bound to one RODA interface for its whole
// lifetime.
type SingleClient struct {
	*ClientBase

	registry     *cli.CLI
	commandName  string
	readyTimeout time.Duration
}

// NewSingleClient connects to itf and registers the CLI command at registry
// if both registry and cfg.CommandName are set.
func NewSingleClient(itf IRemoteObjectDictionaryAccess, registry *cli.CLI, cfg SingleClientConfig) (*SingleClient, error) {
	if cfg.RODAReadyTimeout <= 0 {
		cfg.RODAReadyTimeout = DefaultRODAReadyTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.CommandName
	}
	singleClient := &SingleClient{
		ClientBase:   NewClientBase(cfg.ClientConfig),
		commandName:  cfg.CommandName,
		readyTimeout: cfg.RODAReadyTimeout,
	}
	if err := singleClient.Connect(itf); err != nil {
		return nil, errors.Trace(err)
	}
	if registry != nil && cfg.CommandName != "" {
		err := registry.AddCommand(cli.Command{
			Name:    cfg.CommandName,
			Summary: "remote object dictionary access, see '" + cfg.CommandName + " help'",
			Handler: singleClient.handleCLI,
		})
		if err != nil {
			singleClient.Disconnect()
			return nil, errors.Trace(err)
		}
		singleClient.registry = registry
	}
	return singleClient, nil
}

// Close removes the CLI command and disconnects.
func (singleClient *SingleClient) Close() {
	if singleClient.registry != nil {
		singleClient.registry.RemoveCommand(singleClient.commandName)
		singleClient.registry = nil
	}
	singleClient.Disconnect()
}

func (singleClient *SingleClient) handleCLI(ctx *cli.Context) error {
	if len(ctx.Args) > 0 && ctx.Args[0] != "help" {
		if !singleClient.WaitForRODAItfReady(singleClient.readyTimeout) {
			return errors.Annotatef(ErrNotReady, "within %v", singleClient.readyTimeout)
		}
	}
	return singleClient.runCLI(ctx, singleClient.commandName)
}
