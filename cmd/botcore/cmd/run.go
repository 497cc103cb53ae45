package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SlastyonArtyom/BotCore/internal/console"
	"github.com/SlastyonArtyom/BotCore/internal/runtime"
	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

var (
	runTransport string
	runURL       string
	runConsole   string
	runLogFile   string
	runStorage   string
	runTimeout   time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the bot server and start the console",
	Long: `Connect to the bot server, load every enabled module and read
console commands until shutdown.

The first Ctrl+C (or the quit command) starts a graceful shutdown. If the
modules take longer than the shutdown timeout to unload, the console asks
whether to force quit.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runTransport, "transport", "", "client transport (socketio, websocket, local)")
	f.StringVar(&runURL, "url", "", "bot server URL")
	f.StringVar(&runConsole, "console", "", "console mode (auto, tui, line)")
	f.StringVar(&runLogFile, "log-file", "", "write logs to this file instead of the terminal")
	f.StringVar(&runStorage, "storage", "", "module config directory or database file")
	f.DurationVar(&runTimeout, "shutdown-timeout", 0, "how long to wait for modules to unload before asking")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("load config", err)
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Client.Transport = runTransport
	}
	if flags.Changed("url") {
		cfg.Client.URL = runURL
	}
	if flags.Changed("console") {
		cfg.Console.Mode = runConsole
	}
	if flags.Changed("log-file") {
		cfg.Log.File = runLogFile
	}
	if flags.Changed("storage") {
		cfg.Storage.Path = runStorage
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = runTimeout
	}
	if err := cfg.Validate(); err != nil {
		printError("invalid config", err)
		return err
	}

	out := &logOutput{w: os.Stderr}
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			printError("open log file", err)
			return err
		}
		defer f.Close()
		out.set(f)
	}
	logger, err := shared.NewLogger(out, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		printError("create logger", err)
		return err
	}

	var con *console.Console
	rt := runtime.New(cfg,
		runtime.WithLogger(logger),
		runtime.WithCatalog(catalog()),
		runtime.WithPrompter(runtime.PrompterFunc(func(ctx context.Context, q string) (bool, error) {
			return con.Confirm(ctx, q)
		})),
	)
	con = console.New(rt.Commands(), rt.Loop().Post, console.Options{
		Mode:      cfg.Console.Mode,
		Prompt:    cfg.Console.Prompt,
		Logger:    logger,
		Interrupt: rt.RequestShutdown,
	})
	if con.Interactive() && cfg.Log.File == "" {
		out.set(con.Writer())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Init(ctx); err != nil {
		logger.Error("Failed to start", "err", err)
		if rt.Initialized() {
			rt.Shutdown(context.Background())
		}
		return err
	}

	consoleCtx, cancelConsole := context.WithCancel(context.Background())
	defer cancelConsole()
	consoleDone := make(chan error, 1)
	go func() { consoleDone <- con.Run(consoleCtx) }()

	running := consoleDone
wait:
	for {
		select {
		case <-rt.Done():
			break wait
		case <-ctx.Done():
			logger.Info("Received signal, shutting down")
			break wait
		case err := <-running:
			running = nil
			if err != nil {
				logger.Error("Console stopped", "err", err)
			} else {
				logger.Info("Console closed, send SIGINT or SIGTERM to stop")
			}
		}
	}
	// A second signal kills the process the default way.
	stop()

	err = rt.Shutdown(context.Background())
	cancelConsole()
	if running != nil {
		select {
		case <-running:
		case <-time.After(time.Second):
		}
	}
	out.set(os.Stderr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// logOutput lets the console take over log output once it owns the
// terminal.
type logOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *logOutput) set(w io.Writer) {
	o.mu.Lock()
	o.w = w
	o.mu.Unlock()
}

func (o *logOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	w := o.w
	o.mu.Unlock()
	return w.Write(p)
}
