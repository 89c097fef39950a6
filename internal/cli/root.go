// Package cli implements the casebook command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/casebook/internal/casebook"
	"github.com/mesh-intelligence/casebook/internal/logging"
	"github.com/mesh-intelligence/casebook/internal/metrics"
	"github.com/mesh-intelligence/casebook/internal/paths"
	"github.com/mesh-intelligence/casebook/internal/store"
	meta "github.com/mesh-intelligence/casebook/pkg/casebook"
	"github.com/mesh-intelligence/casebook/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	backend   string
	logLevel  string
	jsonMode  bool
}

// app is the state shared by one command tree: flags, the loaded config and
// the resolved directories.
type app struct {
	flags     rootFlags
	v         *viper.Viper
	configDir string
}

// NewRootCmd creates the top-level "casebook" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:     "casebook",
		Short:   "Track manually authored test cases",
		Long:    "Casebook keeps a local catalog of test cases with their asserted status,\ninput, expected output, tags and iteration.",
		Version: meta.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// version never touches config or storage.
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (env "+paths.EnvConfigDir+")")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (env "+paths.EnvDataDir+")")
	pf.StringVar(&a.flags.backend, "backend", "", "storage backend: sqlite, leveldb or memory")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newListCmd(a),
		newStatsCmd(a),
		newTagsCmd(a),
		newIterationsCmd(a),
		newShowCmd(a),
		newAddCmd(a),
		newEditCmd(a),
		newDeleteCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newClearCmd(a),
		newServeCmd(a),
	)
	return root
}

// load resolves the config directory, reads config.yaml and applies the
// log level. Flags override config values.
func (a *app) load(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return sysError(err)
	}
	pf := cmd.Root().PersistentFlags()
	if err := v.BindPFlag(cfgKeyBackend, pf.Lookup("backend")); err != nil {
		return sysError(err)
	}
	if err := v.BindPFlag(cfgKeyLogLevel, pf.Lookup("log-level")); err != nil {
		return sysError(err)
	}

	level, err := logging.ParseLevel(v.GetString(cfgKeyLogLevel))
	if err != nil {
		return userError(err)
	}
	logging.SetLevel(level)

	a.v = v
	a.configDir = configDir
	return nil
}

// storeConfig builds the backend config from flags and config.yaml.
func (a *app) storeConfig() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, a.v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg := types.Config{Backend: a.v.GetString(cfgKeyBackend), DataDir: dataDir}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("%w: %q", err, cfg.Backend)
	}
	return cfg, nil
}

// openStore opens the configured backend, instrumented with rec.
func (a *app) openStore(ctx context.Context, rec metrics.Recorder) (types.Store, error) {
	cfg, err := a.storeConfig()
	if err != nil {
		return nil, userError(err)
	}
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, sysError(err)
	}
	return metrics.Instrument(s, rec), nil
}

// withService opens the store, runs fn against a Service and closes the
// store again.
func (a *app) withService(cmd *cobra.Command, fn func(svc *casebook.Service) error) error {
	s, err := a.openStore(cmd.Context(), metrics.Nop)
	if err != nil {
		return err
	}
	defer s.Close()
	return classify(fn(casebook.New(s, casebook.WithLogger(logging.S()))))
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func userError(err error) error { return &ExitError{Code: exitUserError, Err: err} }

func sysError(err error) error { return &ExitError{Code: exitSysError, Err: err} }

// classify assigns an exit code: problems with the user's input exit 1,
// storage failures exit 2. Errors that already carry a code keep it.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	switch {
	case errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrInvalidRecord),
		errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrMalformedPayload):
		return userError(err)
	default:
		return sysError(err)
	}
}

// exitCode returns the code for err; cobra's own errors (bad flags, wrong
// argument counts) are user errors.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitUserError
}

// Run executes the command tree with args and returns the exit code.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return exitCode(err)
}

// Execute runs the root command against the process arguments and exits
// with the appropriate code.
func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
