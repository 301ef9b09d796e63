// Package cli implements a small command registry for line oriented
// interactive consoles.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/gosuri/uitable"
	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"
	"github.com/thoas/go-funk"
)

// Prompter reads one line of user input after printing prompt.
type Prompter interface {
	Prompt(prompt string) (string, error)
}

// Context is passed to a command handler.
type Context struct {
	// Args are the arguments following the command name.
	Args []string
	// Out receives the command's output.
	Out io.Writer
	// Prompter reads additional input, e.g. values of an interactive write.
	Prompter Prompter
}

// HandlerFunc executes a command.
type HandlerFunc func(ctx *Context) error

// Command is a named entry of the registry.
type Command struct {
	Name    string
	Summary string
	Handler HandlerFunc
}

// CLI is a registry of commands. It is safe for concurrent use.
type CLI struct {
	mu       sync.RWMutex
	commands map[string]Command
	out      io.Writer
	prompter Prompter
}

// New creates an empty registry writing to out and reading from prompter.
func New(out io.Writer, prompter Prompter) *CLI {
	return &CLI{
		commands: make(map[string]Command),
		out:      out,
		prompter: prompter,
	}
}

// AddCommand registers cmd. Names are unique.
func (c *CLI) AddCommand(cmd Command) error {
	if cmd.Name == "" || strings.ContainsAny(cmd.Name, " \t") {
		return errors.NotValidf("command name %q", cmd.Name)
	}
	if cmd.Handler == nil {
		return errors.NotValidf("command %q without handler", cmd.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.commands[cmd.Name]; ok || cmd.Name == "help" {
		return errors.AlreadyExistsf("command %q", cmd.Name)
	}
	c.commands[cmd.Name] = cmd
	return nil
}

// RemoveCommand unregisters the command name. It returns false if no such
// command was registered.
func (c *CLI) RemoveCommand(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.commands[name]; !ok {
		return false
	}
	delete(c.commands, name)
	return true
}

// Commands returns the sorted names of the registered commands.
func (c *CLI) Commands() []string {
	c.mu.RLock()
	names := funk.Keys(c.commands).([]string)
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Execute splits line shell style and runs the named command. Empty lines
// are ignored. The handler runs without the registry lock held, so it may
// add or remove commands.
func (c *CLI) Execute(line string) error {
	words, err := shellquote.Split(line)
	if err != nil {
		return errors.Annotate(err, "parse command line")
	}
	if len(words) == 0 {
		return nil
	}
	if words[0] == "help" {
		c.printHelp()
		return nil
	}

	c.mu.RLock()
	cmd, ok := c.commands[words[0]]
	c.mu.RUnlock()
	if !ok {
		return errors.NotFoundf("command %q", words[0])
	}
	return cmd.Handler(&Context{Args: words[1:], Out: c.out, Prompter: c.prompter})
}

func (c *CLI) printHelp() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := funk.Keys(c.commands).([]string)
	sort.Strings(names)
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	for _, name := range names {
		table.AddRow(name, c.commands[name].Summary)
	}
	table.AddRow("help", "list commands")
	fmt.Fprintln(c.out, table)
}

// ReaderPrompter prompts on a writer and reads lines from a reader. It is
// used for non interactive input and in tests.
type ReaderPrompter struct {
	r *bufio.Reader
	w io.Writer
}

// NewReaderPrompter creates a ReaderPrompter.
func NewReaderPrompter(r io.Reader, w io.Writer) *ReaderPrompter {
	return &ReaderPrompter{r: bufio.NewReader(r), w: w}
}

// Prompt implements Prompter.
func (p *ReaderPrompter) Prompt(prompt string) (string, error) {
	if p.w != nil {
		fmt.Fprint(p.w, prompt)
	}
	line, err := p.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
