package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/shaiso/dagfactory/internal/engine"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "DAGFACTORY_"

// ErrInvalidSettings — настройки не прошли валидацию.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings — настройки процесса.
type Settings struct {
	// ConfigPath — путь к документу с описанием workflow.
	ConfigPath string `koanf:"config_path"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// DefaultTimezone — часовой пояс для workflow без default_args.timezone.
	DefaultTimezone string `koanf:"default_timezone"`

	// MaxActiveRuns — значение для workflow без max_active_runs.
	MaxActiveRuns int `koanf:"max_active_runs"`

	// FailurePolicy — fail_fast или skip.
	FailurePolicy string `koanf:"failure_policy"`

	// Parallelism — число workflow, собираемых одновременно.
	Parallelism int `koanf:"parallelism"`

	// RefreshInterval — период пересборки в режиме serve.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	DBURL    string `koanf:"db_url"`
	AMQPURL  string `koanf:"amqp_url"`
	HTTPAddr string `koanf:"http_addr"`
}

// Default возвращает настройки по умолчанию.
func Default() Settings {
	return Settings{
		ConfigPath:      "workflows.yaml",
		LogLevel:        "info",
		LogFormat:       "json",
		DefaultTimezone: "UTC",
		MaxActiveRuns:   engine.DefaultMaxActiveRuns,
		FailurePolicy:   string(engine.FailFast),
		Parallelism:     1,
		RefreshInterval: 30 * time.Second,
		HTTPAddr:        ":8081",
	}
}

// Load загружает настройки из значений по умолчанию и окружения процесса.
func Load() (*Settings, error) {
	return LoadFrom(os.Environ)
}

// LoadFrom загружает настройки, читая переменные окружения из environ.
func LoadFrom(environ func() []string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load default settings: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnvKey,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var s Settings
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &s,
			TagName:          "koanf",
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// transformEnvKey: DAGFACTORY_MAX_ACTIVE_RUNS -> max_active_runs.
func transformEnvKey(key, value string) (string, any) {
	return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
}

// Validate проверяет настройки.
func (s *Settings) Validate() error {
	var errs []error

	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: expected debug, info, warn or error", s.LogLevel))
	}

	switch strings.ToLower(s.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: expected json or text", s.LogFormat))
	}

	if _, err := engine.LoadLocation(s.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("default_timezone: %w", err))
	}
	if s.MaxActiveRuns <= 0 {
		errs = append(errs, fmt.Errorf("max_active_runs must be positive, got %d", s.MaxActiveRuns))
	}
	if _, err := engine.ParseFailurePolicy(s.FailurePolicy); err != nil {
		errs = append(errs, fmt.Errorf("failure_policy: %w", err))
	}
	if s.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism must be at least 1, got %d", s.Parallelism))
	}
	if s.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh_interval must be positive, got %s", s.RefreshInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return nil
}

// Policy возвращает разобранную политику обработки ошибок.
func (s *Settings) Policy() engine.FailurePolicy {
	policy, err := engine.ParseFailurePolicy(s.FailurePolicy)
	if err != nil {
		return engine.FailFast
	}
	return policy
}

// EngineOptions возвращает параметры сборки workflow.
func (s *Settings) EngineOptions() engine.Options {
	return engine.Options{
		DefaultTimezone: s.DefaultTimezone,
		MaxActiveRuns:   s.MaxActiveRuns,
	}
}
