// Package console is the interactive command surface. Each line is split at
// the first whitespace and executed through the command registry on the
// runtime loop. It also answers the force quit question when shutdown
// stalls.
package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/SlastyonArtyom/BotCore/internal/command"
	"github.com/SlastyonArtyom/BotCore/internal/config"
	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

// ErrClosed is returned by Confirm once the console input has ended.
var ErrClosed = errors.New("console input closed")

// Options configures a Console.
type Options struct {
	Mode   string // config.ConsoleAuto, ConsoleTUI or ConsoleLine
	Prompt string
	In     io.Reader
	Out    io.Writer
	Logger *log.Logger

	// Interrupt is called on the first Ctrl+C in the TUI. A second Ctrl+C
	// closes the console.
	Interrupt func()
}

// Console reads command lines and prints their output.
type Console struct {
	commands  *command.Registry
	post      func(func()) bool
	mode      string
	prompt    string
	in        io.Reader
	out       io.Writer
	interrupt func()
	logger    *log.Logger

	mu      sync.Mutex
	program *tea.Program
	pending *question
	closed  bool

	outMu sync.Mutex
}

type question struct {
	text   string
	answer chan bool
}

// New returns a console executing lines through commands. post runs work on
// the runtime loop.
func New(commands *command.Registry, post func(func()) bool, opts Options) *Console {
	c := &Console{
		commands:  commands,
		post:      post,
		mode:      opts.Mode,
		prompt:    opts.Prompt,
		in:        opts.In,
		out:       opts.Out,
		interrupt: opts.Interrupt,
		logger:    shared.Tagged(opts.Logger, "Console"),
	}
	if c.in == nil {
		c.in = os.Stdin
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.prompt == "" {
		c.prompt = "> "
	}
	return c
}

// Interactive reports whether Run will start the TUI.
func (c *Console) Interactive() bool {
	switch c.mode {
	case config.ConsoleTUI:
		return true
	case config.ConsoleLine:
		return false
	}
	return isTerminal(c.in) && isTerminal(c.out)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// Run reads lines until the input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	defer c.close()
	if c.Interactive() {
		return c.runTUI(ctx)
	}
	return c.runLines(ctx)
}

// ErrNotRunning is returned by Handle when the loop no longer accepts work.
var ErrNotRunning = errors.New("runtime is not running")

// Handle executes one console line on the loop. Its output is printed once
// the command has run.
func (c *Console) Handle(line string) error {
	name, rest := command.SplitLine(line)
	if name == "" {
		return nil
	}
	run := func() {
		var buf bytes.Buffer
		if err := c.commands.Execute(name, rest, &buf); err != nil {
			if errors.Is(err, command.ErrCommandNotFound) {
				fmt.Fprintf(&buf, "Unknown command: %s\n", name)
			} else {
				fmt.Fprintf(&buf, "[ERROR] %v\n", err)
			}
		}
		c.Print(buf.String())
	}
	if !c.post(run) {
		return ErrNotRunning
	}
	return nil
}

// answer hands line to a pending question. It reports false when nothing
// was asked.
func (c *Console) answer(line string) bool {
	c.mu.Lock()
	q := c.pending
	c.pending = nil
	c.mu.Unlock()

	if q == nil {
		return false
	}
	q.answer <- strings.EqualFold(strings.TrimSpace(line), "y")
	return true
}

// Confirm asks question and waits for the next line. Only "y" confirms.
func (c *Console) Confirm(ctx context.Context, text string) (bool, error) {
	q := &question{text: text, answer: make(chan bool, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.pending != nil {
		c.pending.answer <- false
	}
	c.pending = q
	p := c.program
	c.mu.Unlock()

	if p != nil {
		p.Send(questionMsg(text))
	} else {
		c.write(text)
	}

	select {
	case ok := <-q.answer:
		return ok, nil
	case <-ctx.Done():
		c.mu.Lock()
		if c.pending == q {
			c.pending = nil
		}
		c.mu.Unlock()
		return false, ctx.Err()
	}
}

// Print writes command output. While the TUI runs it is printed above the
// input line. It must not be called from the TUI's own update loop.
func (c *Console) Print(s string) {
	if s == "" {
		return
	}
	c.mu.Lock()
	p := c.program
	c.mu.Unlock()

	if p != nil {
		p.Send(printMsg(strings.TrimRight(s, "\n")))
		return
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	c.write(s)
}

func (c *Console) write(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	io.WriteString(c.out, s)
}

// Writer returns an io.Writer printing through the console, for pointing
// the logger at it while the TUI owns the terminal.
func (c *Console) Writer() io.Writer {
	return &consoleWriter{c: c}
}

// consoleWriter must stay hashable: the logger keys its writers in a map.
type consoleWriter struct {
	c *Console
}

func (w *consoleWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

func (c *Console) close() {
	c.mu.Lock()
	c.closed = true
	q := c.pending
	c.pending = nil
	c.mu.Unlock()

	if q != nil {
		q.answer <- false
	}
}
