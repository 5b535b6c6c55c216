// Package steps содержит каталог типов шагов и их реализации.
//
// # Обзор
//
// Задача в конфигурации ссылается на тип шага символическим именем
// (ключ operator). Catalog сопоставляет имя с Definition, а фабрика
// Definition создаёт graph.Operator из параметров задачи.
//
//	catalog := steps.DefaultCatalog()
//	def, err := catalog.Lookup("bash")
//	if err != nil {
//	    // неизвестный тип
//	}
//	op, err := def.Factory(&steps.Spec{TaskID: "t1", Workflow: wf, Params: params})
//
// Фабрика проверяет конфигурацию сразу (mapstructure, неизвестные ключи
// запрещены), поэтому ошибки параметров видны на этапе построения графа,
// а не при запуске. Строковые параметры рендерятся Go templates во время
// Execute.
//
// # Типы шагов
//
//	dagfactory.steps.NoopOperator      noop, empty
//	dagfactory.steps.BashOperator      bash
//	dagfactory.steps.CallableOperator  callable
//	dagfactory.steps.HTTPOperator      http
//	dagfactory.steps.DelayOperator     delay
//	dagfactory.steps.TransformOperator transform
//
// Имена операторов Airflow (BashOperator, PythonOperator, DummyOperator,
// EmptyOperator) зарегистрированы как алиасы.
//
// ## Callable
//
// CallableOperator вызывает функцию Callable. Функция передаётся в
// параметре callable; пару callable_name + callable_file фабрика графов
// превращает в callable до вызова конструктора (см. пакет callable).
//
// # Обработка ошибок
//
//	ErrStepNotFound   // неизвестная ссылка
//	ErrInvalidConfig  // неверная конфигурация
//	ErrStepCancelled  // context cancelled
//	ErrStepFailed     // ненулевой код выхода, HTTP >= 400, ошибка функции
//
// # Файлы пакета
//
//   - step.go      — Definition, Spec, Factory, Callable, ошибки
//   - registry.go  — Catalog
//   - noop.go      — NoopOperator
//   - bash.go      — BashOperator
//   - callable.go  — CallableOperator
//   - http.go      — HTTPOperator
//   - delay.go     — DelayOperator
//   - transform.go — TransformOperator
package steps
