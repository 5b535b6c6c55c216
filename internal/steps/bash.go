package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
)

// KindBash — каноническое имя shell шага.
const KindBash = "dagfactory.steps.BashOperator"

// BashOperator — шаг, выполняющий команду через bash -c.
//
// Конфигурация:
//
//	{
//	    "bash_command": "echo {{ .DS }}",
//	    "env": {"STAGE": "prod"},
//	    "append_env": true,
//	    "cwd": "/tmp"
//	}
//
// Outputs:
//
//	{
//	    "exit_code": 0,
//	    "stdout": "...",
//	    "return_value": "последняя строка stdout"
//	}
type BashOperator struct {
	params domain.Params
}

// bashConfig — распарсенная конфигурация shell шага.
type bashConfig struct {
	BashCommand string            `mapstructure:"bash_command"`
	Env         map[string]string `mapstructure:"env"`
	AppendEnv   bool              `mapstructure:"append_env"`
	Cwd         string            `mapstructure:"cwd"`
}

// BashDefinition возвращает определение shell шага для каталога.
func BashDefinition() Definition {
	return Definition{
		Name: KindBash,
		Aliases: []string{
			"bash",
			"airflow.operators.bash_operator.BashOperator",
			"airflow.operators.bash.BashOperator",
		},
		Factory: NewBashOperator,
	}
}

// NewBashOperator проверяет конфигурацию и создаёт BashOperator.
func NewBashOperator(spec *Spec) (graph.Operator, error) {
	if _, err := parseBashConfig(spec.OperatorParams()); err != nil {
		return nil, err
	}
	return &BashOperator{params: spec.OperatorParams()}, nil
}

func parseBashConfig(params map[string]any) (*bashConfig, error) {
	cfg := &bashConfig{}
	if err := decodeParams(KindBash, params, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.BashCommand) == "" {
		return nil, fmt.Errorf("%w: %s: bash_command is required", ErrInvalidConfig, KindBash)
	}
	return cfg, nil
}

// Kind возвращает тип шага.
func (o *BashOperator) Kind() string {
	return KindBash
}

// Params возвращает параметры шага.
func (o *BashOperator) Params() map[string]any {
	return describe(o.params)
}

// Execute рендерит команду и выполняет её.
// Ненулевой код выхода считается ошибкой.
func (o *BashOperator) Execute(ctx context.Context, tc *graph.TaskContext) (map[string]any, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	rendered, err := renderParams(o.params, tc)
	if err != nil {
		return nil, err
	}
	cfg, err := parseBashConfig(rendered)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", cfg.BashCommand)
	cmd.Dir = cfg.Cwd
	cmd.Env = buildEnv(cfg.Env, cfg.AppendEnv)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if tc != nil && tc.Logger != nil {
		tc.Logger.Debug("running bash command", "command", cfg.BashCommand)
	}

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("run bash command: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	out := stdout.String()
	outputs := map[string]any{
		"exit_code":    exitCode,
		"stdout":       out,
		"return_value": lastLine(out),
	}

	if exitCode != 0 {
		return outputs, fmt.Errorf("%w: bash command exited with code %d: %s",
			ErrStepFailed, exitCode, strings.TrimSpace(stderr.String()))
	}

	return outputs, nil
}

// buildEnv собирает окружение команды. Без env наследуется окружение процесса.
func buildEnv(env map[string]string, appendEnv bool) []string {
	if len(env) == 0 {
		return nil
	}

	result := make([]string, 0, len(env))
	if appendEnv {
		result = append(result, os.Environ()...)
	}
	for _, k := range sortedKeys(env) {
		result = append(result, k+"="+env[k])
	}
	return result
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}
