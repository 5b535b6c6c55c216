package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shaiso/dagfactory/internal/callable"
	"github.com/shaiso/dagfactory/internal/engine"
	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/loader"
	"github.com/shaiso/dagfactory/internal/scheduler"
	"github.com/shaiso/dagfactory/internal/settings"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// App — состояние одного запуска CLI: настройки, логгер, метрики и вывод.
// Заполняется в PersistentPreRunE корневой команды.
type App struct {
	Settings *settings.Settings
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics
	Out      *Output

	stdout  io.Writer
	stderr  io.Writer
	environ func() []string

	flags rootFlags
}

type rootFlags struct {
	configPath  string
	logLevel    string
	jsonOutput  bool
	skipInvalid bool
	parallelism int
}

// NewRootCmd создаёт корневую команду dagfactory.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(version, os.Stdout, os.Stderr, os.Environ)
}

func newRootCmd(version string, stdout, stderr io.Writer, environ func() []string) *cobra.Command {
	app := &App{stdout: stdout, stderr: stderr, environ: environ}

	root := &cobra.Command{
		Use:           "dagfactory",
		Short:         "Build workflow graphs from declarative YAML",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&app.flags.configPath, "config", "c", "", "Path to the workflow document (env DAGFACTORY_CONFIG_PATH)")
	pf.StringVar(&app.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&app.flags.jsonOutput, "json", false, "Output in JSON format")
	pf.BoolVar(&app.flags.skipInvalid, "skip-invalid", false, "Skip invalid workflows instead of failing")
	pf.IntVar(&app.flags.parallelism, "parallelism", 0, "Number of workflows built concurrently")

	root.AddCommand(
		newValidateCmd(app),
		newListCmd(app),
		newShowCmd(app),
		newRunCmd(app),
		newRegisterCmd(app),
		newServeCmd(app),
		newWatchCmd(app),
	)
	return root
}

// init загружает настройки и применяет к ним флаги.
func (a *App) init(cmd *cobra.Command) error {
	s, err := settings.LoadFrom(a.environ)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("config") {
		s.ConfigPath = a.flags.configPath
	}
	if flags.Changed("log-level") {
		s.LogLevel = a.flags.logLevel
	}
	if flags.Changed("skip-invalid") && a.flags.skipInvalid {
		s.FailurePolicy = string(engine.SkipInvalid)
	}
	if flags.Changed("parallelism") {
		s.Parallelism = a.flags.parallelism
	}
	if err := s.Validate(); err != nil {
		return err
	}

	a.Settings = s
	a.Logger = telemetry.NewLogger(s.LogLevel, s.LogFormat, a.stderr)
	a.Metrics = telemetry.NewMetrics()
	a.Out = NewOutputTo(a.flags.jsonOutput, a.stdout, a.stderr)

	cmd.SetContext(telemetry.WithLogger(cmd.Context(), a.Logger))
	return nil
}

// Compile читает документ конфигурации и собирает все workflow.
func (a *App) Compile(ctx context.Context) (*engine.Result, error) {
	path := a.Settings.ConfigPath
	raw, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	factory := engine.NewFactory(engine.FactoryConfig{
		Loader:      callable.NewLoader(filepath.Dir(path)),
		Options:     a.Settings.EngineOptions(),
		Policy:      a.Settings.Policy(),
		Parallelism: a.Settings.Parallelism,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
	})
	return factory.Build(ctx, raw)
}

// Compiler возвращает Compiler для Refresher.
// Пропущенные workflow только логируются.
func (a *App) Compiler() scheduler.Compiler {
	return scheduler.CompilerFunc(func(ctx context.Context) (map[string]*graph.Workflow, error) {
		result, err := a.Compile(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range result.Failed {
			a.Logger.Warn("workflow skipped", "workflow_id", f.Workflow, "error", f.Err)
		}
		return result.Workflows, nil
	})
}

// workflow собирает документ и возвращает один workflow.
func (a *App) workflow(ctx context.Context, id string) (*graph.Workflow, error) {
	result, err := a.Compile(ctx)
	if err != nil {
		return nil, err
	}
	wf, ok := result.Workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", id, scheduler.ErrNotFound)
	}
	return wf, nil
}
