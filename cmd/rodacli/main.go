// Command rodacli is an interactive console accessing remote object
// dictionaries through RODA.
//
// Usage:
//
//	rodacli [-config rodacli.ini] [-script file|-] [-v]
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/mitchellh/go-linereader"
	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"
)

const historyFile = ".rodacli_history"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rodacli: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	flags := gnuflag.NewFlagSet("rodacli", gnuflag.ContinueOnError)
	configPath := flags.String("config", "rodacli.ini", "configuration file")
	script := flags.String("script", "", "read commands from `file` (- for stdin) instead of a prompt")
	verbose := flags.Bool("v", false, "log debug messages")
	if err := flags.Parse(true, args); err != nil {
		return errors.Trace(err)
	}
	if flags.NArg() != 0 {
		return errors.NotValidf("arguments %q", flags.Args())
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return errors.Trace(err)
	}
	logrus.SetLevel(cfg.LogLevel)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *script != "" {
		r := stdin
		if *script != "-" {
			f, err := os.Open(*script)
			if err != nil {
				return errors.Trace(err)
			}
			defer f.Close()
			r = f
		}
		return runScript(cfg, filepath.Dir(*configPath), r, stdout)
	}
	return runInteractive(cfg, filepath.Dir(*configPath), stdout)
}

// scriptPrompter answers prompts with the next line of the script.
type scriptPrompter struct {
	lines <-chan string
	out   io.Writer
}

func (p *scriptPrompter) Prompt(prompt string) (string, error) {
	line, ok := <-p.lines
	if !ok {
		return "", io.EOF
	}
	line = strings.TrimRight(line, "\r")
	fmt.Fprintln(p.out, prompt+line)
	return line, nil
}

// runScript executes the lines of r. Lines starting with # are comments.
func runScript(cfg *config, dir string, r io.Reader, out io.Writer) error {
	lines := linereader.New(r).Ch
	defer func() {
		// Let the reader goroutine finish.
		for range lines {
		}
	}()
	a, err := newApp(cfg, dir, out, &scriptPrompter{lines: lines, out: out})
	if err != nil {
		return errors.Trace(err)
	}
	defer a.Close()

	for line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fmt.Fprintf(out, "> %s\n", line)
		if a.execute(line) {
			break
		}
	}
	return nil
}

// linerPrompter prompts on the terminal.
type linerPrompter struct {
	state *liner.State
}

func (p linerPrompter) Prompt(prompt string) (string, error) {
	return p.state.Prompt(prompt)
}

func runInteractive(cfg *config, dir string, out io.Writer) error {
	state := liner.NewLiner()
	defer state.Close()
	state.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.Getenv("HOME"), historyFile)
	if f, err := os.Open(historyPath); err == nil {
		_, _ = state.ReadHistory(f)
		f.Close()
	}

	a, err := newApp(cfg, dir, out, linerPrompter{state: state})
	if err != nil {
		return errors.Trace(err)
	}
	defer a.Close()

	state.SetCompleter(func(line string) []string {
		var out []string
		for _, name := range append(a.registry.Commands(), "help", "quit") {
			if strings.HasPrefix(name, line) {
				out = append(out, name)
			}
		}
		return out
	})

	fmt.Fprintln(out, "rodacli, type 'help' for a list of commands")
	for {
		line, err := state.Prompt("rodacli> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			break
		}
		if err != nil {
			return errors.Trace(err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		state.AppendHistory(line)
		if a.execute(line) {
			break
		}
	}

	if f, err := os.Create(historyPath); err == nil {
		_, _ = state.WriteHistory(f)
		f.Close()
	}
	return nil
}
