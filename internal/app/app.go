// Package app wires configuration, the graph connection and the
// consolidation engine into the graphmerge command line.
package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. GRAPHMERGE_STORE_URI.
const EnvPrefix = "GRAPHMERGE"

// Connector opens the graph and the record source for a command.
type Connector func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Runtime, error)

type App struct {
	version string

	configFile string
	verbose    bool
	logLevel   string

	cfg    *config.Config
	v      *viper.Viper
	logger zerolog.Logger

	in      io.Reader
	out     io.Writer
	connect Connector
}

type Option func(*App)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in, a.out = in, out
	}
}

// WithConnector replaces the Bolt connection, mainly for tests.
func WithConnector(c Connector) Option {
	return func(a *App) { a.connect = c }
}

func New(version string, opts ...Option) *App {
	a := &App{
		version: version,
		v:       viper.New(),
		logger:  logging.Nop(),
		in:      os.Stdin,
		out:     os.Stdout,
		connect: Connect,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs the command line with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetIn(a.in)
	return root.ExecuteContext(ctx)
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "graphmerge",
		Short:   "Consolidate duplicate entity records in a property graph",
		Version: a.version,
		Long: `graphmerge finds duplicate organizations, individuals and financial
transactions in a Neo4j or Memgraph graph, merges each group into one
canonical entity with a merge history, repoints every relationship the
duplicates held and validates the result.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "graphmerge.toml", "TOML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v)")

	root.AddCommand(a.runCommand())
	root.AddCommand(a.validateCommand())
	root.AddCommand(a.stepsCommand())
	root.AddCommand(a.serveCommand())
	return root
}

// setup loads the config file, applies environment and flag overrides and
// builds the logger. It runs before every command.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}

	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, key := range overrideKeys {
		_ = a.v.BindEnv(key)
	}
	if f := cmd.Flags().Lookup("batch-size"); f != nil {
		_ = a.v.BindPFlag("batch.size", f)
	}
	applyOverrides(a.v, cfg)

	if a.logLevel != "" || a.verbose || os.Getenv("LOG_LEVEL") != "" {
		cfg.Log.Level = logging.ResolveLevel(a.logLevel, a.verbose)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.Log)
	return nil
}

var overrideKeys = []string{
	"store.uri", "store.user", "store.password", "store.database", "store.dialect",
	"batch.size", "batch.max_attempts",
	"source.kind", "source.path", "source.dsn", "source.table",
	"server.addr",
	"log.level", "log.format", "log.output",
}

func applyOverrides(v *viper.Viper, cfg *config.Config) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	str("store.uri", &cfg.Store.URI)
	str("store.user", &cfg.Store.User)
	str("store.password", &cfg.Store.Password)
	str("store.database", &cfg.Store.Database)
	str("store.dialect", &cfg.Store.Dialect)
	num("batch.size", &cfg.Batch.Size)
	num("batch.max_attempts", &cfg.Batch.MaxAttempts)
	str("source.kind", &cfg.Source.Kind)
	str("source.path", &cfg.Source.Path)
	str("source.dsn", &cfg.Source.DSN)
	str("source.table", &cfg.Source.Table)
	str("server.addr", &cfg.Server.Addr)
	str("log.level", &cfg.Log.Level)
	str("log.format", &cfg.Log.Format)
	str("log.output", &cfg.Log.Output)
}

// ContextWithSignals returns a context cancelled on SIGINT or SIGTERM.
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ExitOnError prints err and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString("graphmerge: " + err.Error() + "\n")
		os.Exit(1)
	}
}
