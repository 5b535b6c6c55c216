// Package callable загружает пользовательские функции из исходных файлов Go.
//
// Задача с оператором callable может указать функцию не напрямую, а парой
// callable_name + callable_file. Loader интерпретирует файл через yaegi
// (со стандартной библиотекой), находит функцию по имени и приводит её к
// steps.Callable.
//
//	loader := callable.NewLoader("/etc/dagfactory")
//	fn, err := loader.Load("Extract", "callables/extract.go")
//
// Файл должен быть в package main:
//
//	package main
//
//	func Extract(kwargs map[string]any) (map[string]any, error) {
//	    return map[string]any{"rows": 10}, nil
//	}
package callable
