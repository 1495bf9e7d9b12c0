package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/core-tools/hsu-procdesc-go/pkg/errors"
	"github.com/core-tools/hsu-procdesc-go/pkg/logging"
	zaplogging "github.com/core-tools/hsu-procdesc-go/pkg/logging/zap"
	"github.com/core-tools/hsu-procdesc-go/pkg/logsink"
	"github.com/core-tools/hsu-procdesc-go/pkg/procdesc"

	flags "github.com/jessevdk/go-flags"
	"github.com/tidwall/pretty"
	"go.uber.org/multierr"
)

type globalOptions struct {
	LogLevel string `long:"log-level" default:"warn" description:"Log level (debug, info, warn, error)"`
}

type configOptions struct {
	Config string `long:"config" short:"c" description:"Descriptor file path (YAML or JSON)" required:"true"`
}

type app struct {
	in      io.Reader
	out     io.Writer
	global  globalOptions
	zap     *zaplogging.ZapLogger
	logger  logging.Logger
	environ func() []string
}

func newApp(out io.Writer) *app {
	return &app{
		in:      os.Stdin,
		out:     out,
		environ: os.Environ,
	}
}

func newParser(a *app) *flags.Parser {
	parser := flags.NewParser(&a.global, flags.HelpFlag)
	parser.ShortDescription = "Process supervisor descriptor tool"

	mustAddCommand(parser, "validate", "Validate a descriptor file",
		"Loads the file and reports the first configuration error, if any.",
		&validateCommand{app: a})
	mustAddCommand(parser, "show", "Print the loaded descriptors",
		"Prints descriptors after defaults are applied. DATABASE_URL passwords are masked unless --reveal is set.",
		&showCommand{app: a})
	mustAddCommand(parser, "env", "Print the environment of one process",
		"Prints KEY=value lines as they would be injected into the child process.",
		&envCommand{app: a})
	mustAddCommand(parser, "watch", "Hold the descriptors and reload them on SIGHUP",
		"Loads the file, then re-reads it on every SIGHUP until interrupted. A failed reload keeps the previous descriptors.",
		&watchCommand{app: a})
	mustAddCommand(parser, "tee", "Write standard input to the log files of one process",
		"Reads lines from standard input and appends them to out_file and log_file (or error_file and log_file with --stderr), rotating the files by size.",
		&teeCommand{app: a})

	return parser
}

func mustAddCommand(parser *flags.Parser, name, short, long string, data interface{}) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic(err)
	}
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-cli , ", module)
}

func (a *app) lookup(filename, name string) (*procdesc.Ecosystem, procdesc.ProcessDescriptor, error) {
	ecosystem, err := a.load(filename)
	if err != nil {
		return nil, procdesc.ProcessDescriptor{}, err
	}

	descriptor, ok := ecosystem.Lookup(name)
	if !ok {
		return nil, procdesc.ProcessDescriptor{}, errors.NewConfigError("process is not declared", nil).
			WithContext("process", name).
			WithContext("declared", strings.Join(ecosystem.Names(), ","))
	}
	return ecosystem, descriptor, nil
}

// getLogger builds the logger once the global flags are parsed
func (a *app) getLogger() (logging.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}

	zapLogger, err := zaplogging.NewZapLogger(a.global.LogLevel)
	if err != nil {
		return nil, err
	}
	a.zap = zapLogger
	a.logger = logging.NewLogger(logPrefix("procdesc"), zapLogger.LogFuncs())
	return a.logger, nil
}

func (a *app) load(filename string) (*procdesc.Ecosystem, error) {
	logger, err := a.getLogger()
	if err != nil {
		return nil, err
	}
	return procdesc.LoadFromFile(filename, logger)
}

func (a *app) close() {
	if a.zap != nil {
		_ = a.zap.Sync()
	}
}

type validateCommand struct {
	configOptions
	app *app
}

func (c *validateCommand) Execute(args []string) error {
	ecosystem, err := c.app.load(c.Config)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.app.out, "OK: %d process descriptor(s): %s\n", len(ecosystem.Apps), strings.Join(ecosystem.Names(), ", "))
	return nil
}

type showCommand struct {
	configOptions
	Format  string `long:"format" short:"f" default:"yaml" choice:"yaml" choice:"json" choice:"summary" description:"Output format"`
	Resolve bool   `long:"resolve" description:"Resolve relative paths against the descriptor file directory"`
	Reveal  bool   `long:"reveal" description:"Do not mask DATABASE_URL passwords"`
	Color   bool   `long:"color" description:"Colorize JSON output"`
	app     *app
}

func (c *showCommand) Execute(args []string) error {
	ecosystem, err := c.app.load(c.Config)
	if err != nil {
		return err
	}

	for i, descriptor := range ecosystem.Apps {
		if c.Resolve {
			descriptor = descriptor.ResolvePaths(ecosystem.BaseDir)
		}
		if !c.Reveal {
			descriptor = descriptor.Redacted()
		}
		ecosystem.Apps[i] = descriptor
	}

	var out []byte
	switch c.Format {
	case "json":
		out, err = procdesc.MarshalJSON(ecosystem)
		if err == nil {
			out = c.prettyJSON(out)
		}
	case "summary":
		out, err = json.Marshal(procdesc.Summarize(ecosystem))
		if err == nil {
			out = c.prettyJSON(out)
		}
	default:
		out, err = procdesc.Marshal(ecosystem)
	}
	if err != nil {
		return err
	}

	_, err = c.app.out.Write(out)
	return err
}

func (c *showCommand) prettyJSON(data []byte) []byte {
	out := pretty.Pretty(data)
	if c.Color {
		out = pretty.Color(out, nil)
	}
	return out
}

type envCommand struct {
	configOptions
	App     string `long:"app" short:"a" description:"Process name" required:"true"`
	Env     string `long:"env" short:"e" description:"Named environment override, e.g. production for env_production"`
	Inherit bool   `long:"inherit" description:"Start from the current process environment"`
	app     *app
}

func (c *envCommand) Execute(args []string) error {
	_, descriptor, err := c.app.lookup(c.Config, c.App)
	if err != nil {
		return err
	}

	var base []string
	if c.Inherit {
		base = c.app.environ()
	}

	environ, err := descriptor.Environ(base, c.Env)
	if err != nil {
		return err
	}
	for _, entry := range environ {
		fmt.Fprintln(c.app.out, entry)
	}
	return nil
}

type watchCommand struct {
	configOptions
	app *app
}

func (c *watchCommand) Execute(args []string) error {
	logger, err := c.app.getLogger()
	if err != nil {
		return err
	}

	store, err := procdesc.NewStore(c.Config, logger)
	if err != nil {
		return err
	}
	c.report(store.Current())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	store.ReloadOn(ctx, reload, func(err error) {
		if err != nil {
			fmt.Fprintf(c.app.out, "reload failed, keeping previous descriptors: %v\n", err)
			return
		}
		c.report(store.Current())
	})
	return nil
}

func (c *watchCommand) report(ecosystem *procdesc.Ecosystem) {
	summary := procdesc.Summarize(ecosystem)
	fmt.Fprintf(c.app.out, "active: %d process descriptor(s), %d instance(s): %s\n",
		summary.TotalProcesses, summary.TotalInstances, strings.Join(ecosystem.Names(), ", "))
}

type teeCommand struct {
	configOptions
	App        string `long:"app" short:"a" description:"Process name" required:"true"`
	Stderr     bool   `long:"stderr" description:"Treat input as the process standard error"`
	MaxSizeMB  int    `long:"max-size" default:"100" description:"Rotate a file once it reaches this many megabytes"`
	MaxBackups int    `long:"max-backups" description:"Rotated files to keep, 0 keeps all"`
	MaxAgeDays int    `long:"max-age" description:"Days to keep rotated files, 0 keeps all"`
	Compress   bool   `long:"compress" description:"Gzip rotated files"`
	app        *app
}

func (c *teeCommand) Execute(args []string) error {
	ecosystem, descriptor, err := c.app.lookup(c.Config, c.App)
	if err != nil {
		return err
	}
	descriptor = descriptor.ResolvePaths(ecosystem.BaseDir)

	sinks, err := logsink.Open(descriptor.LogPaths, logsink.Options{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	})
	if err != nil {
		return errors.NewConfigError("process has no log files", err).WithContext("process", descriptor.Name)
	}

	target := sinks.Stdout
	if c.Stderr {
		target = sinks.Stderr
	}

	c.app.logger.Debugf("Writing input to log files of %s, stderr: %v", descriptor.Name, c.Stderr)

	_, copyErr := io.Copy(target, c.app.in)
	return multierr.Combine(copyErr, sinks.Close())
}
