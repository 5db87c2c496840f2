package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/borisblack/scicms-client-sub000/scicms"
	"github.com/borisblack/scicms-client-sub000/scicms/registry"
	"github.com/borisblack/scicms-client-sub000/scicms/store"
	"github.com/borisblack/scicms-client-sub000/scicms/transport"
	"github.com/borisblack/scicms-client-sub000/types"
)

// globalFlags are bound to viper and the SCICMS_* environment
var globalFlags = []string{
	"schema", "db", "endpoint", "token", "user", "timezone", "lang",
	"format", "log-level", "log-operations", "metrics",
}

// CLI is the viper-configured scicms command line
type CLI struct {
	rootCmd   *cobra.Command
	viperInst *viper.Viper
}

// NewCLI creates the command tree and reads configuration
func NewCLI() *CLI {
	cli := &CLI{viperInst: viper.New()}
	cli.setupViperConfig()
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// setupViperConfig configures config file discovery and the environment
func (cli *CLI) setupViperConfig() {
	if configFile := os.Getenv("SCICMS_CONFIG"); configFile != "" {
		cli.viperInst.SetConfigFile(configFile)
	} else {
		cli.viperInst.SetConfigName("scicms")
		cli.viperInst.AddConfigPath(".")
		cli.viperInst.AddConfigPath("$HOME/.scicms")
		cli.viperInst.AddConfigPath("/etc/scicms")
	}

	cli.viperInst.SetEnvPrefix("SCICMS")
	cli.viperInst.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cli.viperInst.AutomaticEnv()

	// a missing config file is fine
	_ = cli.viperInst.ReadInConfig()
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   "scicms",
		Short: "Schema-driven admin console for SciCMS items",
		Long: `scicms compiles generic list and lifecycle commands against the item
descriptors of a schema and runs them on a remote GraphQL backend or a local
JSON store.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (SCICMS_*)
3. Configuration file (SCICMS_CONFIG, or scicms.yaml / scicms.json in
   ., $HOME/.scicms, /etc/scicms)

Examples:
  scicms --schema items/ list book --filter title=dune --sort publishedAt:desc
  scicms --schema items/ create book --set title=Dune --set pages=412
  SCICMS_ENDPOINT=https://cms.example.com/graphql SCICMS_TOKEN=... scicms list user`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cli.rootCmd.PersistentFlags()
	flags.String("schema", "schema", "Item descriptor YAML file or directory")
	flags.StringP("db", "d", "scicms-data.json", "Local JSON store path")
	flags.String("endpoint", "", "Remote GraphQL endpoint; overrides --db")
	flags.String("token", "", "Bearer token for the remote endpoint")
	flags.StringP("user", "u", "cli", "Acting user id")
	flags.String("timezone", "UTC", "IANA zone temporal filters are read in")
	flags.String("lang", "en", "Message language (en|ru)")
	flags.StringP("format", "f", "table", "Output format (table|json|yaml)")
	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")
	flags.Bool("log-operations", false, "Echo every backend operation to stderr")
	flags.String("metrics", "", "Write Prometheus metrics to this textfile after the command")

	for _, name := range globalFlags {
		_ = cli.viperInst.BindPFlag(name, flags.Lookup(name))
	}
}

func (cli *CLI) addCommands() {
	cli.addItemsCommand()
	cli.addConfigCommand()
	cli.addListCommand()
	cli.addCompileCommand()
	cli.addMutationCommands()
}

// Execute runs the CLI
func (cli *CLI) Execute() error {
	return cli.rootCmd.Execute()
}

// ExecuteContext runs the CLI with a cancelable context
func (cli *CLI) ExecuteContext(ctx context.Context) error {
	return cli.rootCmd.ExecuteContext(ctx)
}

// session is the per-command wiring of schema, backend and console
type session struct {
	schema  *registry.Registry
	console *scicms.Console
	logs    *loggers
	store   *store.Store

	registry    *prometheus.Registry
	metricsPath string
}

func (cli *CLI) loadSchema() (*registry.Registry, error) {
	path := cli.viperInst.GetString("schema")
	if path == "" {
		return nil, NewConfigError("load schema", "no schema configured", CommonSuggestions.CheckSchema)
	}
	schema, err := registry.Load(path)
	if err != nil {
		return nil, WrapError("load schema", err)
	}
	return schema, nil
}

// open wires a console for one command run
func (cli *CLI) open(cmd *cobra.Command) (*session, error) {
	v := cli.viperInst

	schema, err := cli.loadSchema()
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return nil, NewUsageError("configure", "timezone", v.GetString("timezone"), "Use an IANA zone name such as Europe/Moscow")
	}

	logs, err := initLogging(v.GetString("log-level"), v.GetBool("log-operations"), cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapError("initialize logging", err)
	}

	s := &session{schema: schema, logs: logs}
	user := v.GetString("user")

	var backend scicms.Transport
	if endpoint := v.GetString("endpoint"); endpoint != "" {
		backend = transport.New(endpoint, nil,
			transport.WithToken(v.GetString("token")),
			transport.WithLogger(logs.main))
	} else {
		st, err := store.Open(v.GetString("db"), schema,
			store.WithActor(user),
			store.WithLogger(logs.main))
		if err != nil {
			logs.Close()
			return nil, WrapError("open local store", err)
		}
		s.store = st
		backend = st
	}

	opts := []scicms.Option{
		scicms.WithAuth(scicms.StaticAuth(user)),
		scicms.WithLogger(logs.main),
		scicms.WithOperationLogger(logs.operations),
		scicms.WithLocation(loc),
		scicms.WithLanguage(scicms.ParseLanguage(v.GetString("lang"))),
	}
	if path := v.GetString("metrics"); path != "" {
		s.registry = prometheus.NewRegistry()
		s.metricsPath = path
		rec, err := scicms.NewPrometheusRecorder(s.registry)
		if err != nil {
			_ = s.Close()
			return nil, WrapError("register metrics", err)
		}
		opts = append(opts, scicms.WithMetrics(rec))
	}

	s.console = scicms.New(schema, backend, opts...)
	return s, nil
}

// Close flushes metrics and releases the backend and log files
func (s *session) Close() error {
	var err error
	if s.registry != nil {
		err = prometheus.WriteToTextfile(s.metricsPath, s.registry)
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	s.logs.Close()
	return err
}

// run opens a session, executes fn and prints its result
func (cli *CLI) run(cmd *cobra.Command, operation string, fn func(ctx context.Context, s *session) (interface{}, error)) error {
	s, err := cli.open(cmd)
	if err != nil {
		return err
	}

	result, err := fn(cmd.Context(), s)
	closeErr := s.Close()
	if err != nil {
		return WrapError(operation, err)
	}
	if closeErr != nil {
		return WrapError("write metrics", closeErr)
	}
	if err := cli.output(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if page, ok := result.(*types.Page); ok {
		for _, filterErr := range page.FilterErrors {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v (filter ignored)\n", filterErr)
		}
	}
	return nil
}

func (cli *CLI) output(w io.Writer, result interface{}) error {
	out, err := NewOutputFormatter(cli.viperInst.GetString("format")).Format(result)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
