package main

import (
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/angelodlfrtr/go-roda"
	"github.com/angelodlfrtr/go-roda/cli"
	"github.com/angelodlfrtr/go-roda/od"
)

const (
	providerLocal   = "local"
	providerCANopen = "canopen"

	providerSectionPrefix = "roda."
)

// providerConfig describes one RODA interface, configured in a [roda.ID]
// section. ID is a decimal or 0x prefixed 32-bit number.
type providerConfig struct {
	ID   uint32
	Type string
	// EDS is the path of the object dictionary of the provider.
	EDS    string
	NodeID uint8
	// MaxResponseSize is offered to the client, 0 selects the default.
	MaxResponseSize int
	// ProcessingDelay slows down local providers.
	ProcessingDelay time.Duration
}

type config struct {
	RxTimeout    time.Duration
	ReadyTimeout time.Duration
	LogLevel     logrus.Level
	Permissions  od.Permissions
	CommandName  string
	Providers    []providerConfig
}

// loadConfig reads the ini configuration. source is anything ini.Load
// accepts: a file name, []byte or an io.Reader.
func loadConfig(source interface{}) (*config, error) {
	file, err := ini.Load(source)
	if err != nil {
		return nil, errors.Annotate(err, "load config")
	}

	client := file.Section("client")
	cfg := &config{
		RxTimeout:    client.Key("rx_timeout").MustDuration(roda.DefaultRxTimeout),
		ReadyTimeout: client.Key("ready_timeout").MustDuration(roda.DefaultRODAReadyTimeout),
		CommandName:  client.Key("command").MustString("roda"),
	}
	if cfg.LogLevel, err = logrus.ParseLevel(client.Key("log_level").MustString("warning")); err != nil {
		return nil, errors.NotValidf("log_level %q", client.Key("log_level").String())
	}
	switch perm := client.Key("permissions").MustString("rw"); perm {
	case "rw":
		cfg.Permissions = od.AttrRW
	case "ro":
		cfg.Permissions = od.AttrRead
	case "wo":
		cfg.Permissions = od.AttrWrite
	default:
		return nil, errors.NotValidf("permissions %q", perm)
	}

	seen := make(map[uint32]string)
	for _, section := range file.Sections() {
		if !strings.HasPrefix(section.Name(), providerSectionPrefix) {
			continue
		}
		p, err := parseProviderSection(section)
		if err != nil {
			return nil, errors.Annotatef(err, "section [%s]", section.Name())
		}
		if other, ok := seen[p.ID]; ok {
			return nil, errors.AlreadyExistsf("provider id %d in [%s] and [%s]", p.ID, other, section.Name())
		}
		seen[p.ID] = section.Name()
		cfg.Providers = append(cfg.Providers, p)
	}
	if len(cfg.Providers) == 0 {
		return nil, errors.NotFoundf("[%s*] section", providerSectionPrefix)
	}
	return cfg, nil
}

func parseProviderSection(section *ini.Section) (providerConfig, error) {
	p := providerConfig{
		Type:            section.Key("type").MustString(providerLocal),
		EDS:             section.Key("eds").String(),
		MaxResponseSize: section.Key("max_response_size").MustInt(0),
		ProcessingDelay: section.Key("processing_delay").MustDuration(0),
	}
	suffix := strings.TrimPrefix(section.Name(), providerSectionPrefix)
	id, err := cli.ParseUint(suffix, 32)
	if err != nil {
		return p, errors.NotValidf("provider id %q", suffix)
	}
	p.ID = uint32(id)
	if p.Type != providerLocal && p.Type != providerCANopen {
		return p, errors.NotValidf("type %q", p.Type)
	}
	if p.EDS == "" {
		return p, errors.NotFoundf("eds")
	}
	if !section.HasKey("node_id") {
		if p.Type == providerCANopen {
			return p, errors.NotFoundf("node_id")
		}
		return p, nil
	}
	nodeID, err := section.Key("node_id").Uint()
	switch {
	case err != nil:
		return p, errors.NotValidf("node_id %q", section.Key("node_id").String())
	case nodeID > 127 || (nodeID == 0 && p.Type == providerCANopen):
		return p, errors.NotValidf("node_id %d", nodeID)
	}
	p.NodeID = uint8(nodeID)
	return p, nil
}
