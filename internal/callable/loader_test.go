package callable

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const callableSource = `package main

import "strings"

func Extract(kwargs map[string]any) (map[string]any, error) {
	table, _ := kwargs["table"].(string)
	return map[string]any{"table": strings.ToUpper(table)}, nil
}

func Ping() error {
	return nil
}

var Answer = 42
`

func writeSource(t *testing.T, dir, name, code string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "extract.go", callableSource)

	loader := NewLoader(dir)
	fn, err := loader.Load("Extract", "extract.go")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	outputs, err := fn(context.Background(), map[string]any{"table": "events"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if outputs["table"] != "EVENTS" {
		t.Errorf("outputs = %v", outputs)
	}

	ping, err := loader.Load("Ping", filepath.Join(dir, "extract.go"))
	if err != nil {
		t.Fatalf("load Ping: %v", err)
	}
	if _, err := ping(context.Background(), nil); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestLoader_Errors(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "extract.go", callableSource)
	writeSource(t, dir, "empty.go", "   \n")
	writeSource(t, dir, "broken.go", "package main\n\nfunc Broken( {\n")

	tests := []struct {
		name    string
		symbol  string
		file    string
		wantErr error
	}{
		{name: "missing file", symbol: "Extract", file: "nope.go", wantErr: ErrSourceNotFound},
		{name: "empty file", symbol: "Extract", file: "empty.go", wantErr: ErrSourceNotFound},
		{name: "syntax error", symbol: "Broken", file: "broken.go", wantErr: ErrInterpret},
		{name: "missing symbol", symbol: "Load", file: "extract.go", wantErr: ErrSymbolNotFound},
		{name: "empty symbol", symbol: " ", file: "extract.go", wantErr: ErrSymbolNotFound},
		{name: "not a function", symbol: "Answer", file: "extract.go", wantErr: ErrUnsupportedSignature},
	}

	loader := NewLoader(dir)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(tt.symbol, tt.file)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAdapt(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		fn         any
		wantOutput any
		wantErr    error
	}{
		{
			name: "context and kwargs",
			fn: func(ctx context.Context, kwargs map[string]any) (map[string]any, error) {
				return map[string]any{"v": kwargs["v"]}, nil
			},
			wantOutput: 1,
		},
		{
			name: "kwargs only",
			fn: func(kwargs map[string]any) (map[string]any, error) {
				return map[string]any{"v": kwargs["v"]}, nil
			},
			wantOutput: 1,
		},
		{
			name:    "kwargs returning error",
			fn:      func(kwargs map[string]any) error { return boom },
			wantErr: boom,
		},
		{
			name: "no arguments",
			fn:   func() {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := Adapt(reflect.ValueOf(tt.fn))
			if err != nil {
				t.Fatalf("Adapt: %v", err)
			}
			outputs, err := fn(context.Background(), map[string]any{"v": 1})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if outputs == nil {
				t.Fatal("outputs should not be nil")
			}
			if tt.wantOutput != nil && outputs["v"] != tt.wantOutput {
				t.Errorf("outputs = %v", outputs)
			}
		})
	}
}

func TestAdapt_Unsupported(t *testing.T) {
	for _, fn := range []any{
		42,
		func(s string) error { return nil },
		func(kwargs map[string]any) string { return "" },
		func(a, b, c int) {},
		func() (int, error) { return 0, nil },
	} {
		if _, err := Adapt(reflect.ValueOf(fn)); !errors.Is(err, ErrUnsupportedSignature) {
			t.Errorf("%T: expected ErrUnsupportedSignature, got %v", fn, err)
		}
	}
}
