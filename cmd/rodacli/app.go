package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/angelodlfrtr/go-roda"
	"github.com/angelodlfrtr/go-roda/canopen"
	"github.com/angelodlfrtr/go-roda/cli"
	"github.com/angelodlfrtr/go-roda/od"
	"github.com/angelodlfrtr/go-roda/provider"
)

// app owns the providers described by a config and the MultiClient giving
// access to them.
type app struct {
	registry *cli.CLI
	multi    *roda.MultiClient
	out      io.Writer
	logger   *logrus.Entry

	// CANopen providers share one simulated bus.
	bus     *canopen.MemoryBus
	network *canopen.Network

	rxTimeout time.Duration
	ids       []uint32
	closers   []func() error
}

// newApp creates the providers of cfg. Relative EDS paths are resolved
// against dir.
func newApp(cfg *config, dir string, out io.Writer, prompter cli.Prompter) (*app, error) {
	a := &app{
		registry:  cli.New(out, prompter),
		out:       out,
		logger:    logrus.WithField("component", "rodacli"),
		rxTimeout: cfg.RxTimeout,
	}
	multi, err := roda.NewMultiClient(a.registry, roda.MultiClientConfig{
		ClientConfig: roda.ClientConfig{
			Name:        cfg.CommandName,
			RxTimeout:   cfg.RxTimeout,
			Permissions: cfg.Permissions,
		},
		CommandName:      cfg.CommandName,
		RODAReadyTimeout: cfg.ReadyTimeout,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	a.multi = multi

	for _, p := range cfg.Providers {
		if err := a.addProvider(p, dir); err != nil {
			a.Close()
			return nil, errors.Annotatef(err, "provider %d", p.ID)
		}
	}
	return a, nil
}

func (a *app) addProvider(p providerConfig, dir string) error {
	edsPath := p.EDS
	if !filepath.IsAbs(edsPath) {
		edsPath = filepath.Join(dir, edsPath)
	}
	dic, err := od.LoadEDS(edsPath, p.NodeID)
	if err != nil {
		return errors.Trace(err)
	}
	localCfg := provider.LocalConfig{
		Name:            fmt.Sprintf("%s-%d", p.Type, p.ID),
		MaxResponseSize: p.MaxResponseSize,
		ProcessingDelay: p.ProcessingDelay,
	}

	var itf *provider.Local
	switch p.Type {
	case providerLocal:
		itf = provider.NewLocal(dic, localCfg)
	case providerCANopen:
		// The node itself is simulated by an SDO server holding its own copy
		// of the dictionary.
		remote, err := od.LoadEDS(edsPath, p.NodeID)
		if err != nil {
			return errors.Trace(err)
		}
		a.ensureNetwork()
		serverNetwork := canopen.NewNetwork(a.bus.Endpoint())
		serverNetwork.Run()
		server := canopen.NewSDOServer(serverNetwork, int(p.NodeID), remote)
		a.closers = append(a.closers, serverNetwork.Stop, server.Stop)

		node := canopen.NewNode(int(p.NodeID), a.network, dic)
		node.Init()
		// Three tries with doubling timeouts end before the client gives up.
		node.SDOClient.Timeout = a.rxTimeout / 8
		node.SDOClient.RetryCount = 3
		itf = canopen.NewProvider(node, localCfg)
	default:
		return errors.NotSupportedf("provider type %q", p.Type)
	}
	a.closers = append(a.closers, itf.Close)

	if err := a.multi.Register(itf, p.ID); err != nil {
		return errors.Trace(err)
	}
	a.ids = append(a.ids, p.ID)
	a.logger.Infof("%s provider %d serving %s", p.Type, p.ID, edsPath)
	return nil
}

func (a *app) ensureNetwork() {
	if a.network != nil {
		return
	}
	a.bus = canopen.NewMemoryBus()
	a.network = canopen.NewNetwork(a.bus.Endpoint())
	a.network.Run()
	a.closers = append(a.closers, a.network.Stop)
}

// execute runs one command line. It reports whether the session ends.
func (a *app) execute(line string) bool {
	switch line {
	case "quit", "exit":
		return true
	}
	if err := a.registry.Execute(line); err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
	}
	return false
}

// Close unregisters and stops every provider.
func (a *app) Close() {
	for _, id := range a.ids {
		if err := a.multi.Unregister(id); err != nil {
			a.logger.Warnf("unregister %d: %v", id, err)
		}
	}
	a.ids = nil
	a.multi.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warnf("close: %v", err)
		}
	}
	a.closers = nil
}
