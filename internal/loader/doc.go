// Package loader читает документ конфигурации workflow.
//
// Документ (YAML или JSON) содержит три ключа верхнего уровня:
//
//	defaults:        # параметры по умолчанию для всех workflow (алиас default)
//	  default_args:
//	    owner: ops
//	    start_date: 2024-01-01
//	workflows:       # workflow по имени (алиас dags)
//	  nightly:
//	    schedule: "@daily"
//	    tasks:
//	      extract: {operator: bash, bash_command: ./extract.sh}
//	      load:    {template: loader, dependencies: [extract]}
//	step-templates:  # шаблоны параметров задач
//	  loader:
//	    operator: bash
//	    bash_command: ./load.sh
//
// Порядок workflow и задач сохраняется таким, как в документе.
// ApplyStepTemplates подставляет шаблоны до сборки графов.
package loader
