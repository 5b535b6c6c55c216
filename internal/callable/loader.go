package callable

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/shaiso/dagfactory/internal/steps"
)

// Ошибки загрузки.
var (
	// ErrSourceNotFound — файл с функцией не найден или пуст.
	ErrSourceNotFound = errors.New("callable source not found")

	// ErrInterpret — файл не удалось интерпретировать.
	ErrInterpret = errors.New("callable source failed to interpret")

	// ErrSymbolNotFound — в файле нет функции с таким именем.
	ErrSymbolNotFound = errors.New("callable symbol not found")

	// ErrUnsupportedSignature — функция имеет неподдерживаемую сигнатуру.
	ErrUnsupportedSignature = errors.New("unsupported callable signature")
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	kwargsType  = reflect.TypeOf(map[string]any{})
)

// Loader загружает функции из исходных файлов Go через интерпретатор yaegi.
//
// Поддерживаемые сигнатуры:
//
//	func(ctx context.Context, kwargs map[string]any) (map[string]any, error)
//	func(kwargs map[string]any) (map[string]any, error)
//	func(kwargs map[string]any) error
//	func() error
//	func()
//
// Файл интерпретируется один раз, повторные загрузки берутся из кэша.
// Потокобезопасен.
type Loader struct {
	// BaseDir — каталог, относительно которого разрешаются пути.
	BaseDir string

	mu    sync.Mutex
	cache map[string]steps.Callable
}

// NewLoader создаёт Loader.
func NewLoader(baseDir string) *Loader {
	return &Loader{
		BaseDir: baseDir,
		cache:   make(map[string]steps.Callable),
	}
}

// Load загружает функцию name из файла file.
func (l *Loader) Load(name, file string) (steps.Callable, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrSymbolNotFound)
	}

	path := l.resolvePath(file)
	key := path + "#" + name

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cache == nil {
		l.cache = make(map[string]steps.Callable)
	}
	if fn, ok := l.cache[key]; ok {
		return fn, nil
	}

	fn, err := loadFile(path, name)
	if err != nil {
		return nil, err
	}
	l.cache[key] = fn
	return fn, nil
}

func (l *Loader) resolvePath(file string) string {
	file = strings.TrimSpace(file)
	if file == "" || filepath.IsAbs(file) || l.BaseDir == "" {
		return file
	}
	return filepath.Join(l.BaseDir, file)
}

func loadFile(path, name string) (steps.Callable, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceNotFound, path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSourceNotFound, path)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInterpret, path, err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInterpret, path, err)
	}

	value, err := i.Eval(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s: %v", ErrSymbolNotFound, name, path, err)
	}

	fn, err := Adapt(value)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: %w", name, path, err)
	}
	return fn, nil
}

// Adapt приводит функцию с поддерживаемой сигнатурой к steps.Callable.
func Adapt(value reflect.Value) (steps.Callable, error) {
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: not a function", ErrUnsupportedSignature)
	}
	if value.IsNil() {
		return nil, fmt.Errorf("%w: nil function", ErrUnsupportedSignature)
	}

	if fn, ok := value.Interface().(func(context.Context, map[string]any) (map[string]any, error)); ok {
		return fn, nil
	}

	typ := value.Type()
	withCtx, withKwargs, err := checkInputs(typ)
	if err != nil {
		return nil, err
	}
	if err := checkOutputs(typ); err != nil {
		return nil, err
	}

	return func(ctx context.Context, kwargs map[string]any) (map[string]any, error) {
		args := make([]reflect.Value, 0, 2)
		if withCtx {
			arg := reflect.New(typ.In(0)).Elem()
			arg.Set(reflect.ValueOf(ctx))
			args = append(args, arg)
		}
		if withKwargs {
			args = append(args, kwargsValue(typ.In(typ.NumIn()-1), kwargs))
		}
		return collectResults(value.Call(args))
	}, nil
}

// isKwargsType проверяет, что тип — map со строковыми ключами и
// значениями-интерфейсами. Интерпретатор может построить собственный
// тип map[string]any, поэтому сравнения с kwargsType недостаточно.
func isKwargsType(t reflect.Type) bool {
	if t == kwargsType {
		return true
	}
	return t.Kind() == reflect.Map &&
		t.Key().Kind() == reflect.String &&
		t.Elem().Kind() == reflect.Interface &&
		t.Elem().NumMethod() == 0
}

func isContextType(t reflect.Type) bool {
	return t == contextType || (t.Kind() == reflect.Interface && t.Implements(contextType))
}

func isErrorType(t reflect.Type) bool {
	return t == errorType || (t.Kind() == reflect.Interface && t.Implements(errorType))
}

func kwargsValue(t reflect.Type, kwargs map[string]any) reflect.Value {
	if kwargs == nil {
		kwargs = make(map[string]any)
	}
	if t == kwargsType {
		return reflect.ValueOf(kwargs)
	}
	m := reflect.MakeMapWithSize(t, len(kwargs))
	for k, v := range kwargs {
		val := reflect.New(t.Elem()).Elem()
		if v != nil {
			val.Set(reflect.ValueOf(v))
		}
		m.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), val)
	}
	return m
}

func checkInputs(typ reflect.Type) (withCtx, withKwargs bool, err error) {
	switch typ.NumIn() {
	case 0:
		return false, false, nil
	case 1:
		if !isKwargsType(typ.In(0)) {
			return false, false, fmt.Errorf("%w: argument must be map[string]any, got %s", ErrUnsupportedSignature, typ.In(0))
		}
		return false, true, nil
	case 2:
		if !isContextType(typ.In(0)) || !isKwargsType(typ.In(1)) {
			return false, false, fmt.Errorf("%w: arguments must be (context.Context, map[string]any), got %s", ErrUnsupportedSignature, typ)
		}
		return true, true, nil
	default:
		return false, false, fmt.Errorf("%w: too many arguments: %s", ErrUnsupportedSignature, typ)
	}
}

func checkOutputs(typ reflect.Type) error {
	switch typ.NumOut() {
	case 0:
		return nil
	case 1:
		if !isErrorType(typ.Out(0)) {
			return fmt.Errorf("%w: single result must be error, got %s", ErrUnsupportedSignature, typ.Out(0))
		}
		return nil
	case 2:
		if !isKwargsType(typ.Out(0)) || !isErrorType(typ.Out(1)) {
			return fmt.Errorf("%w: results must be (map[string]any, error), got %s", ErrUnsupportedSignature, typ)
		}
		return nil
	default:
		return fmt.Errorf("%w: too many results: %s", ErrUnsupportedSignature, typ)
	}
}

func collectResults(results []reflect.Value) (map[string]any, error) {
	outputs := make(map[string]any)
	var err error

	switch len(results) {
	case 1:
		err = asError(results[0])
	case 2:
		if !results[0].IsNil() {
			iter := results[0].MapRange()
			for iter.Next() {
				outputs[iter.Key().String()] = iter.Value().Interface()
			}
		}
		err = asError(results[1])
	}

	return outputs, err
}

func asError(v reflect.Value) error {
	if !v.IsValid() || v.IsNil() {
		return nil
	}
	if e, ok := v.Interface().(error); ok {
		return e
	}
	return fmt.Errorf("callable returned non-error value %v", v.Interface())
}
