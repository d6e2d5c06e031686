// Package cmd wires up the CLI flags and starts the telfs server.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"telfs/config"
	"telfs/internal/fsgate"
	"telfs/internal/metrics"
	"telfs/internal/server"
	"telfs/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X telfs/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args, layers the configuration and runs the server
// until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fv := config.Default()
	fs := flag.NewFlagSet("telfs", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── listener ─────────────────────────────────────────────────
	fs.StringVarP(&fv.Address, "address", "a", fv.Address, "Address to bind (numeric IP)")
	fs.IntVarP(&fv.Port, "port", "p", fv.Port, "Port to listen on (0 picks a free port)")
	fs.IntVar(&fv.Backlog, "backlog", fv.Backlog, "listen(2) backlog")
	fs.IntVar(&fv.BindRetries, "bind-retries", fv.BindRetries, "Attempts to bind while the address is in use")

	// ── filesystem ───────────────────────────────────────────────
	fs.StringVarP(&fv.Root, "root", "r", fv.Root, "Server root directory (created if missing)")
	fs.BoolVar(&fv.ReadOnly, "read-only", fv.ReadOnly, "Refuse touch, mkdir, rm and copy")
	fs.Int64Var(&fv.MaxFileSize, "max-file-size", fv.MaxFileSize, "Largest file cat and sum will read, in bytes")

	// ── sessions ─────────────────────────────────────────────────
	fs.StringVar(&fv.Nickname, "nick", fv.Nickname, "Default nickname shown in the prompt")
	fs.IntVar(&fv.MaxLineLength, "max-line", fv.MaxLineLength, "Longest accepted command line, in bytes")
	fs.IntVar(&fv.ReadBufferSize, "read-buffer", fv.ReadBufferSize, "Bytes read per readiness event")

	// ── configuration sources ────────────────────────────────────
	var configPath, envFile string
	fs.StringVarP(&configPath, "config", "c", "", "YAML config file (or $"+config.EnvConfigPath+")")
	fs.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading TELFS_* variables")

	// ── output ───────────────────────────────────────────────────
	var verbose int
	var quiet bool
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity above the configured level (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Log errors only")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Print the effective configuration and exit")

	fs.Usage = func() { printUsage(fs, stderr) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showHelp {
		printUsage(fs, stderr)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "telfs %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── layer configuration ──────────────────────────────────────
	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	cfg := config.Default()
	if configPath == "" {
		configPath = os.Getenv(config.EnvConfigPath)
	}
	if configPath != "" {
		if err := config.LoadFile(configPath, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)
	applyFlags(fs, fv, cfg)
	switch {
	case quiet:
		cfg.Verbose = 0
	default:
		cfg.Verbose += verbose
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		fmt.Fprint(stdout, cfg.String())
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	if f, ok := stderr.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		logger.SetConsole(true)
	} else {
		logger.SetOutput(stderr)
	}

	root, err := cfg.AbsRoot()
	if err != nil {
		return err
	}
	gw, err := fsgate.NewOS(root, fsgate.WithMaxReadSize(cfg.MaxFileSize))
	if err != nil {
		return err
	}
	srv := server.New(cfg, gw, logger, metrics.New())
	return srv.ListenAndServe(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// applyFlags copies every flag the user actually set from fv onto cfg,
// so flags win over the file and the environment.
func applyFlags(fs *flag.FlagSet, fv, cfg *config.Config) {
	set := map[string]func(){
		"address":       func() { cfg.Address = fv.Address },
		"port":          func() { cfg.Port = fv.Port },
		"backlog":       func() { cfg.Backlog = fv.Backlog },
		"bind-retries":  func() { cfg.BindRetries = fv.BindRetries },
		"root":          func() { cfg.Root = fv.Root },
		"read-only":     func() { cfg.ReadOnly = fv.ReadOnly },
		"max-file-size": func() { cfg.MaxFileSize = fv.MaxFileSize },
		"nick":          func() { cfg.Nickname = fv.Nickname },
		"max-line":      func() { cfg.MaxLineLength = fv.MaxLineLength },
		"read-buffer":   func() { cfg.ReadBufferSize = fv.ReadBufferSize },
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `telfs – text-command file server v%s

Clients connect with any line-based TCP client (telnet, nc) and manage
files under the server root with ls, cd, touch, mkdir, rm, copy, cat, sum.

Usage:
  telfs [options]

Options:
`, version)
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, `
Examples:
  telfs                                 Serve ./server on 0.0.0.0:5678
  telfs -r /srv/share -p 2323 -v        Custom root and port, verbose
  telfs --read-only -c telfs.yaml       Read-only, settings from YAML
  telfs --dry-run                       Show the effective configuration
`)
}
