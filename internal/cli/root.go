package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	httpapi "github.com/Paintersrp/scriptq/internal/api/http"
	"github.com/Paintersrp/scriptq/internal/config"
	"github.com/Paintersrp/scriptq/internal/logging"
	"github.com/Paintersrp/scriptq/internal/sigq"
)

var newDiagnosticsServer = httpapi.NewServer

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{}

	root := &cobra.Command{
		Use:   "scriptq",
		Short: "Run and supervise child processes with signal-safe reaping",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&ctx.configFile, "config", "c", os.Getenv("SCRIPTQ_CONFIG"), "Path to configuration file")
	flags.StringVar(&ctx.flags.waitStrategy, "wait-strategy", "", "How waiters block: cond or suspend")
	flags.StringVar(&ctx.flags.reapMode, "reap-mode", "", "Which children the reaper collects: tracked or any")
	flags.StringVar(&ctx.flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, disabled)")
	flags.StringVar(&ctx.flags.logFormat, "log-format", "", "Log format (auto, console, json)")
	flags.StringVar(&ctx.flags.metricsAddr, "metrics-addr", "", "Serve status and Prometheus metrics on this address")

	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newFanCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	err := root.ExecuteContext(ctx)
	var exit *exitError
	if errors.As(err, &exit) {
		stop()
		os.Exit(exit.code)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitError carries a child's decoded status out as the process exit code.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type flagOverrides struct {
	waitStrategy string
	reapMode     string
	logLevel     string
	logFormat    string
	metricsAddr  string
}

type context struct {
	configFile string
	flags      flagOverrides

	cfg        *config.Config
	log        zerolog.Logger
	supervisor *sigq.Supervisor
}

// setup resolves configuration with flags taking precedence over the
// environment and the file, then builds the logger and the supervisor.
func (c *context) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configFile)
	if err != nil {
		return err
	}
	changed := cmd.Flags().Changed
	if changed("wait-strategy") {
		cfg.WaitStrategy = c.flags.waitStrategy
	}
	if changed("reap-mode") {
		cfg.ReapMode = c.flags.reapMode
	}
	if changed("log-level") {
		cfg.Log.Level = c.flags.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = c.flags.logFormat
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = c.flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.log = logger
	c.supervisor = sigq.New(
		sigq.WithLogger(logger),
		sigq.WithWaitStrategy(sigq.WaitStrategy(cfg.WaitStrategy)),
		sigq.WithReapMode(sigq.ReapMode(cfg.ReapMode)),
	)
	return nil
}

// startDiagnostics serves status and metrics while a command runs. It is a
// no-op without a configured address. The returned stop function shuts the
// server down and reports its terminal error.
func (c *context) startDiagnostics(cmd *cobra.Command) (func() error, error) {
	noop := func() error { return nil }
	if c.cfg == nil || c.cfg.Metrics.Addr == "" {
		return noop, nil
	}
	server, err := newDiagnosticsServer(httpapi.Config{
		Addr:     c.cfg.Metrics.Addr,
		Reporter: supervisorReporter{sup: c.supervisor},
	})
	if err != nil {
		return nil, err
	}

	serverCtx, cancel := stdcontext.WithCancel(cmd.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(serverCtx)
	}()
	readyTimer := time.NewTimer(200 * time.Millisecond)
	defer readyTimer.Stop()
	select {
	case err := <-errCh:
		cancel()
		return nil, err
	case <-readyTimer.C:
	}
	c.log.Info().Str("addr", server.Addr()).Msg("diagnostics listening")
	return func() error {
		cancel()
		err := <-errCh
		if err != nil && !errors.Is(err, stdcontext.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, nil
}

func fileOrNil(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
