package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRemoveExecute(t *testing.T) {
	out := &bytes.Buffer{}
	c := New(out, nil)

	var got []string
	require.NoError(t, c.AddCommand(Command{Name: "echo", Summary: "print arguments", Handler: func(ctx *Context) error {
		got = ctx.Args
		return nil
	}}))

	err := c.AddCommand(Command{Name: "echo", Handler: func(*Context) error { return nil }})
	assert.True(t, errors.Is(err, errors.AlreadyExists))

	require.NoError(t, c.Execute(`echo 0x1000:1 "hello world"`))
	assert.Equal(t, []string{"0x1000:1", "hello world"}, got)

	require.NoError(t, c.Execute("   "))
	require.NoError(t, c.Execute("help"))
	assert.Contains(t, out.String(), "print arguments")

	assert.Equal(t, []string{"echo"}, c.Commands())
	assert.True(t, c.RemoveCommand("echo"))
	assert.False(t, c.RemoveCommand("echo"))

	err = c.Execute("echo")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestAddCommandInvalid(t *testing.T) {
	c := New(&bytes.Buffer{}, nil)
	assert.Error(t, c.AddCommand(Command{Name: "", Handler: func(*Context) error { return nil }}))
	assert.Error(t, c.AddCommand(Command{Name: "a b", Handler: func(*Context) error { return nil }}))
	assert.Error(t, c.AddCommand(Command{Name: "nohandler"}))
	assert.Error(t, c.AddCommand(Command{Name: "help", Handler: func(*Context) error { return nil }}))
}

func TestExecuteUnbalancedQuote(t *testing.T) {
	c := New(&bytes.Buffer{}, nil)
	assert.Error(t, c.Execute(`echo "abc`))
}

func TestReaderPrompter(t *testing.T) {
	out := &bytes.Buffer{}
	p := NewReaderPrompter(strings.NewReader("first\r\nsecond"), out)

	line, err := p.Prompt("> ")
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = p.Prompt("> ")
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	_, err = p.Prompt("> ")
	assert.Error(t, err)
	assert.Equal(t, "> > > ", out.String())
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		first   uint16
		last    uint16
		wantErr bool
	}{
		{name: "hex", in: "0x1000-0x1FFF", first: 0x1000, last: 0x1FFF},
		{name: "decimal", in: "1-2", first: 1, last: 2},
		{name: "reversed", in: "0x2000-0x1000", wantErr: true},
		{name: "no dash", in: "0x1000", wantErr: true},
		{name: "too large", in: "0x1000-0x10000", wantErr: true},
		{name: "garbage", in: "a-b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last, err := ParseIndexRange(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.NotValid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.first, first)
			assert.Equal(t, tt.last, last)
		})
	}

	index, si, err := ParseIndexSubIndex("0x1018:4")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1018), index)
	assert.Equal(t, uint8(4), si)

	_, _, err = ParseIndexSubIndex("0x1018:256")
	assert.Error(t, err)
	_, _, err = ParseIndexSubIndex("0x1018")
	assert.Error(t, err)

	assert.NoError(t, ExpectArgs([]string{"a"}, 1, 2, "x"))
	assert.Error(t, ExpectArgs(nil, 1, 2, "x"))
	assert.Error(t, ExpectArgs([]string{"a", "b", "c"}, 1, 2, "x"))
}
