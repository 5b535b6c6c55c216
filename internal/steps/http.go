package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
)

const (
	// KindHTTP — каноническое имя HTTP шага.
	KindHTTP = "dagfactory.steps.HTTPOperator"

	// Значения по умолчанию.
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// HTTPOperator — шаг HTTP запроса.
//
// Конфигурация:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/data",
//	    "headers": {
//	        "Authorization": "Bearer {{ .Params.token }}"
//	    },
//	    "body": {
//	        "rows": "{{ .Tasks.extract.Outputs.rows }}"
//	    },
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30,
//	    "fail_on_status": true
//	}
//
// Outputs:
//
//	{
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json", ...},
//	    "body": {...}  // parsed JSON or string
//	}
type HTTPOperator struct {
	params domain.Params
}

// httpConfig — распарсенная конфигурация HTTP шага.
type httpConfig struct {
	Method          string            `mapstructure:"method"`
	URL             string            `mapstructure:"url"`
	Headers         map[string]string `mapstructure:"headers"`
	Body            any               `mapstructure:"body"`
	FollowRedirects *bool             `mapstructure:"follow_redirects"`
	ValidateSSL     *bool             `mapstructure:"validate_ssl"`
	TimeoutSec      int               `mapstructure:"timeout_sec"`
	FailOnStatus    *bool             `mapstructure:"fail_on_status"`
}

// HTTPDefinition возвращает определение HTTP шага для каталога.
func HTTPDefinition() Definition {
	return Definition{
		Name:    KindHTTP,
		Aliases: []string{"http"},
		Factory: NewHTTPOperator,
	}
}

// NewHTTPOperator проверяет конфигурацию и создаёт HTTPOperator.
func NewHTTPOperator(spec *Spec) (graph.Operator, error) {
	if _, err := parseHTTPConfig(spec.OperatorParams()); err != nil {
		return nil, err
	}
	return &HTTPOperator{params: spec.OperatorParams()}, nil
}

// parseHTTPConfig парсит конфигурацию HTTP шага.
func parseHTTPConfig(params map[string]any) (*httpConfig, error) {
	cfg := &httpConfig{}
	if err := decodeParams(KindHTTP, params, cfg); err != nil {
		return nil, err
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, KindHTTP)
	}
	if cfg.TimeoutSec < 0 {
		return nil, fmt.Errorf("%w: %s: timeout_sec must be non-negative", ErrInvalidConfig, KindHTTP)
	}

	// Метод по умолчанию — GET
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	cfg.Method = strings.ToUpper(cfg.Method)

	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	return cfg, nil
}

// Kind возвращает тип шага.
func (o *HTTPOperator) Kind() string {
	return KindHTTP
}

// Params возвращает параметры шага.
func (o *HTTPOperator) Params() map[string]any {
	return describe(o.params)
}

// Execute выполняет HTTP запрос.
func (o *HTTPOperator) Execute(ctx context.Context, tc *graph.TaskContext) (map[string]any, error) {
	rendered, err := renderParams(o.params, tc)
	if err != nil {
		return nil, err
	}
	cfg, err := parseHTTPConfig(rendered)
	if err != nil {
		return nil, err
	}

	client := buildHTTPClient(cfg)

	httpReq, err := buildHTTPRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	outputs, bodyText, err := parseHTTPResponse(resp)
	if err != nil {
		return nil, err
	}

	if boolOr(cfg.FailOnStatus, true) && resp.StatusCode >= 400 {
		return outputs, fmt.Errorf("%w: %w", ErrStepFailed, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       bodyText,
		})
	}

	return outputs, nil
}

// buildHTTPClient создаёт HTTP клиент с нужными настройками.
func buildHTTPClient(cfg *httpConfig) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: !boolOr(cfg.ValidateSSL, true),
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !boolOr(cfg.FollowRedirects, true) {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}
}

// buildHTTPRequest создаёт HTTP запрос.
func buildHTTPRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		// Устанавливаем Content-Type, если не задан
		if _, hasContentType := cfg.Headers["Content-Type"]; !hasContentType {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseHTTPResponse читает ответ в outputs.
func parseHTTPResponse(resp *http.Response) (map[string]any, string, error) {
	// Читаем body с ограничением размера
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, "", fmt.Errorf("read response body: %w", err)
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			// Если не удалось распарсить JSON, возвращаем как строку
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]string)
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	outputs := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}

	return outputs, string(bodyBytes), nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// HTTPError — ответ с кодом >= 400.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
