package roda_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelodlfrtr/go-roda"
	"github.com/angelodlfrtr/go-roda/cli"
	"github.com/angelodlfrtr/go-roda/od"
	"github.com/angelodlfrtr/go-roda/provider"
)

const testEDS = `
[1000]
ParameterName=Device type
ObjectType=0x7
DataType=0x0007
AccessType=ro
DefaultValue=0x000F0191

[1008]
ParameterName=Manufacturer device name
ObjectType=0x7
DataType=0x0009
AccessType=const
DefaultValue=roda

[1017]
ParameterName=Producer heartbeat time
ObjectType=0x7
DataType=0x0006
AccessType=rw
DefaultValue=1000

[1018]
ParameterName=Identity
ObjectType=0x9
SubNumber=3

[1018sub0]
ParameterName=Number of entries
ObjectType=0x7
DataType=0x0005
AccessType=ro
DefaultValue=2

[1018sub1]
ParameterName=Vendor-ID
ObjectType=0x7
DataType=0x0007
AccessType=ro
DefaultValue=0x1234

[1018sub2]
ParameterName=Product code
ObjectType=0x7
DataType=0x0007
AccessType=ro
DefaultValue=$NODEID+0x100

[2000]
ParameterName=Outputs
ObjectType=0x8
SubNumber=4

[2000sub0]
ParameterName=Number of outputs
ObjectType=0x7
DataType=0x0005
AccessType=ro
DefaultValue=3

[2000sub1]
ParameterName=Output 1
ObjectType=0x7
DataType=0x0005
AccessType=rw
DefaultValue=0

[2000sub2]
ParameterName=Output 2
ObjectType=0x7
DataType=0x0005
AccessType=rw
DefaultValue=0

[2000sub3]
ParameterName=Output 3
ObjectType=0x7
DataType=0x0005
AccessType=rw
DefaultValue=0
`

const (
	timeoutLong = 2 * time.Second
	tick        = 10 * time.Millisecond
)

type cliFixture struct {
	local    *provider.Local
	client   *roda.SingleClient
	registry *cli.CLI
	out      *bytes.Buffer
}

func newCLIFixture(t *testing.T, input string, cfg provider.LocalConfig) *cliFixture {
	dic, err := od.LoadEDS([]byte(testEDS), 5)
	require.NoError(t, err)
	out := &bytes.Buffer{}
	fixture := &cliFixture{
		local:    provider.NewLocal(dic, cfg),
		registry: cli.New(out, cli.NewReaderPrompter(strings.NewReader(input), out)),
		out:      out,
	}
	fixture.client, err = roda.NewSingleClient(fixture.local, fixture.registry, roda.SingleClientConfig{CommandName: "roda"})
	require.NoError(t, err)
	require.True(t, fixture.client.WaitForRODAItfReady(timeoutLong))
	t.Cleanup(func() {
		fixture.client.Close()
		assert.NoError(t, fixture.local.Close())
	})
	return fixture
}

func (fixture *cliFixture) run(t *testing.T, line string) string {
	t.Helper()
	fixture.out.Reset()
	require.NoError(t, fixture.registry.Execute(line))
	return fixture.out.String()
}

func TestCLIEnumerate(t *testing.T) {
	fixture := newCLIFixture(t, "", provider.LocalConfig{})

	out := fixture.run(t, "roda enum")
	assert.Contains(t, out, "0x1000")
	assert.Contains(t, out, "Identity")
	assert.Contains(t, out, "ARRAY")
	assert.Contains(t, out, "5 objects")

	out = fixture.run(t, "roda enum 0x1010-0x1FFF")
	assert.NotContains(t, out, "0x1000")
	assert.Contains(t, out, "2 objects")
}

func TestCLIEnumerateSmallResponses(t *testing.T) {
	// Forces the provider to split the enumeration.
	fixture := newCLIFixture(t, "", provider.LocalConfig{MaxResponseSize: 8 + 9 + 2*2})
	indices, abort, err := fixture.client.Enumerate(0, 0xFFFF, od.AttrRW)
	require.NoError(t, err)
	assert.Equal(t, od.AbortNone, abort)
	assert.Equal(t, []uint16{0x1000, 0x1008, 0x1017, 0x1018, 0x2000}, indices)
}

func TestCLIInfo(t *testing.T) {
	fixture := newCLIFixture(t, "", provider.LocalConfig{})

	out := fixture.run(t, "roda info 0x1018")
	assert.Contains(t, out, `RECORD "Identity"`)
	assert.Contains(t, out, "Vendor-ID")
	assert.Contains(t, out, "UNSIGNED32")

	out = fixture.run(t, "roda info 0x3000")
	assert.Contains(t, out, "Abort: x06020000")

	assert.Error(t, fixture.registry.Execute("roda info 0x1018 foo"))
}

func TestCLIReadWrite(t *testing.T) {
	fixture := newCLIFixture(t, "", provider.LocalConfig{})

	assert.Contains(t, fixture.run(t, "roda read 0x1017:0"), "1000 (0x03E8)")
	assert.Contains(t, fixture.run(t, "roda read 0x1018:2"), "0x00000105")
	assert.Contains(t, fixture.run(t, "roda read 0x1008:0"), `"roda"`)

	assert.Contains(t, fixture.run(t, "roda write 0x1017:0 0x7D0"), "OK")
	assert.Contains(t, fixture.run(t, "roda read 0x1017:0"), "2000 (0x07D0)")

	assert.Contains(t, fixture.run(t, "roda write 0x1000:0 1"), "Abort: x06010002")
	assert.Contains(t, fixture.run(t, "roda read 0x1017:7"), "Abort: x06090011")

	err := fixture.registry.Execute("roda write 0x1017:0 notanumber")
	assert.True(t, errors.Is(err, errors.NotValid))
	err = fixture.registry.Execute("roda frobnicate")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestCLICompleteAccess(t *testing.T) {
	fixture := newCLIFixture(t, "3\n7\n8\n9\n", provider.LocalConfig{})

	assert.Contains(t, fixture.run(t, "roda caread 0x2000"), "03 00 00 00")

	assert.Contains(t, fixture.run(t, "roda cawrite 0x2000"), "OK")
	assert.Contains(t, fixture.run(t, "roda caread 0x2000"), "03 07 08 09")

	out := fixture.run(t, "roda caread 0x2000 v")
	assert.Contains(t, out, "Output 2")
	assert.Contains(t, out, "8 (0x08)")

	assert.Contains(t, fixture.run(t, "roda caread 0x1017"), "Abort: x06010000")
	err := fixture.registry.Execute("roda cawrite 0x1017")
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestCLIHelp(t *testing.T) {
	fixture := newCLIFixture(t, "", provider.LocalConfig{})
	out := fixture.run(t, "roda help")
	for _, sub := range []string{"enum", "info", "read INDEX:SI", "write", "caread", "cawrite"} {
		assert.Contains(t, out, sub)
	}
}

func TestCLILinkLoss(t *testing.T) {
	fixture := newCLIFixture(t, "", provider.LocalConfig{})
	fixture.local.SetLinkUp(false)
	require.Eventually(t, func() bool { return fixture.client.State() == roda.StateNotReady }, timeoutLong, tick)

	err := fixture.registry.Execute("roda read 0x1017:0")
	assert.ErrorIs(t, err, roda.ErrNotReady)

	fixture.local.SetLinkUp(true)
	assert.Contains(t, fixture.run(t, "roda read 0x1017:0"), "1000")
}
