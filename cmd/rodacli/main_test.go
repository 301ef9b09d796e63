package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func runTestScript(t *testing.T, script string) string {
	t.Helper()
	out := &bytes.Buffer{}
	err := run([]string{"-config", "testdata/rodacli.ini", "-script", "-"}, strings.NewReader(script), out)
	require.NoError(t, err)
	return out.String()
}

func TestScriptLocalProvider(t *testing.T) {
	out := runTestScript(t, `
# local dictionary
roda ids
roda 1 read 0x1017:0
roda 1 write 0x1017:0 500
roda 1 read 0x1017:0
roda 1 read 0x1018:2
`)
	assert.Regexp(t, `(?m)^1\s+false`, out)
	assert.Regexp(t, `(?m)^5\s+false`, out)
	assert.Contains(t, out, "1000 (0x03E8)")
	assert.Contains(t, out, "500 (0x01F4)")
	assert.Contains(t, out, "0x00000101")
}

func TestScriptCANopenProvider(t *testing.T) {
	out := runTestScript(t, `
roda 5 enum
roda 5 read 0x1008:0
roda 5 read 0x1018:2
roda 5 write 0x1017:0 250
roda 5 read 0x1017:0
roda 5 write 0x1000:0 1
roda 5 caread 0x2000
`)
	assert.Contains(t, out, "Identity")
	assert.Contains(t, out, `"sample device"`)
	assert.Contains(t, out, "0x00000105")
	assert.Contains(t, out, "250 (0x00FA)")
	assert.Contains(t, out, "Abort: x06010002")
	assert.Contains(t, out, "Abort: x06010000")
}

func TestScriptSwitchesProviders(t *testing.T) {
	out := runTestScript(t, `
roda 1 write 0x1017:0 100
roda 5 read 0x1017:0
roda 1 read 0x1017:0
`)
	// Each provider has its own dictionary.
	assert.Contains(t, out, "1000 (0x03E8)")
	assert.Contains(t, out, "100 (0x0064)")
}

func TestScriptInteractiveWrite(t *testing.T) {
	out := runTestScript(t, `
roda 1 cawrite 0x2000
2
4
5
roda 1 caread 0x2000
quit
roda 1 read 0x1017:0
`)
	assert.Contains(t, out, "02 04 05")
	assert.NotContains(t, out, "1000 (0x03E8)")
}

func TestScriptErrors(t *testing.T) {
	out := runTestScript(t, `
nosuchcommand
roda 9 read 0x1000:0
roda other read 0x1000:0
`)
	assert.Contains(t, out, `Error: command "nosuchcommand" not found`)
	assert.Contains(t, out, `RODA interface 9 not found`)
	assert.Contains(t, out, `RODA interface ID "other" not valid`)
}

func TestRunBadFlags(t *testing.T) {
	assert.Error(t, run([]string{"-nosuchflag"}, strings.NewReader(""), &bytes.Buffer{}))
	assert.Error(t, run([]string{"-config", "testdata/missing.ini"}, strings.NewReader(""), &bytes.Buffer{}))
}
