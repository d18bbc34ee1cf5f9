package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ptybridge:", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath  string
	shell       string
	dir         string
	cols        uint16
	rows        uint16
	inheritSize bool
	bufferSize  string
	logLevel    string
	logFormat   string
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:   "ptybridge",
		Short: "Drive an interactive shell in a pseudoterminal over standard streams",
		Long: `ptybridge spawns an interactive shell attached to a pseudoterminal.

Standard input takes one JSON control message per line:

  {"type":"Input","data":"ls -la\n"}
  {"type":"Resize","cols":120,"rows":40}

Standard output carries the shell's raw output, unmodified. Diagnostics
are written to standard error. The bridge exits with status 0 when
standard input is closed.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cfg, path, os.Stdin, os.Stdout)
		},
	}

	bindFlags(cmd, &flags)
	return cmd
}

func bindFlags(cmd *cobra.Command, flags *cliFlags) {
	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "config file (default: ./ptybridge.yaml or ~/.config/ptybridge/config.yaml)")
	f.StringVarP(&flags.shell, "shell", "s", "", "shell to spawn (default: $SHELL, then "+defaultShell+")")
	f.StringVar(&flags.dir, "dir", "", "working directory for the shell")
	f.Uint16Var(&flags.cols, "cols", defaultGeometry.Cols, "initial terminal columns")
	f.Uint16Var(&flags.rows, "rows", defaultGeometry.Rows, "initial terminal rows")
	f.BoolVar(&flags.inheritSize, "inherit-size", false, "take the initial size from the terminal on stderr, if any")
	f.StringVar(&flags.bufferSize, "buffer-size", "", "output relay buffer size, e.g. 8KiB")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&flags.logFormat, "log-format", "", "console or json")
}

// apply overrides cfg with the flags that were set explicitly.
func (f *cliFlags) apply(cmd *cobra.Command, cfg *appConfig) {
	fs := cmd.Flags()
	if fs.Changed("shell") {
		cfg.Shell = f.shell
	}
	if fs.Changed("dir") {
		cfg.Dir = f.dir
	}
	if fs.Changed("cols") {
		cfg.Cols = f.cols
	}
	if fs.Changed("rows") {
		cfg.Rows = f.rows
	}
	if fs.Changed("inherit-size") {
		cfg.InheritSize = f.inheritSize
	}
	if fs.Changed("buffer-size") {
		cfg.BufferSize = f.bufferSize
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
}

// run sets up the session and serves it until the control channel closes.
// Only setup failures are returned. The session is released on return,
// which hangs up a shell that is still running.
func run(cfg appConfig, configPath string, control io.Reader, output io.Writer) error {
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	defer func() { _ = log.Sync() }()

	log = log.With(zap.String("session_id", uuid.NewString()))
	if configPath != "" {
		log.Debug("loaded config file", zap.String("path", configPath))
	}
	if f, ok := control.(*os.File); ok && isTerminal(int(f.Fd())) {
		log.Warn("control channel is a terminal; expecting one JSON message per line")
	}

	bufSize, err := cfg.bufferBytes()
	if err != nil {
		return err
	}

	size := cfg.initialGeometry(os.Stderr)
	session, err := openPTY(size)
	if err != nil {
		log.Error("cannot allocate pseudoterminal", zap.Error(err))
		return err
	}

	shell := resolveShell(cfg.Shell)
	opts := spawnOptions{
		Args: cfg.ShellArgs,
		Dir:  cfg.Dir,
		Env:  shellEnv(os.Environ(), cfg.Term, cfg.Env),
	}
	defer func() { _ = session.Close() }()
	if err := session.Spawn(shell, opts); err != nil {
		log.Error("cannot start shell", zap.String("shell", shell), zap.Error(err))
		return err
	}
	log = log.With(zap.String("shell", shell), zap.Int("pid", session.Pid()))
	log.Info("shell started", zap.Stringer("size", size), zap.Strings("args", opts.Args))

	ignoreBrokenPipe()
	if err := newBridge(session, control, output, bufSize, log).run(); err != nil {
		log.Error("cannot attach to pseudoterminal", zap.Error(err))
		return err
	}
	return nil
}

func exitCodeFromErr(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1
	}
	return exitErr.ExitCode()
}
