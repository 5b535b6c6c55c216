// Package graph — контейнер workflow, который наполняет компилятор.
//
// Включает:
//   - workflow.go — Workflow: задачи, рёбра, топологический порядок
//   - task.go     — Task: узел графа, upstream/downstream, базовые аргументы
//   - snapshot.go — детерминированный JSON-снимок графа и его checksum
//   - template.go — рендеринг Go templates в параметрах задач
//   - run.go      — локальный последовательный прогон workflow
//
// Задача регистрируется в workflow при создании (AddTask), рёбра
// добавляются отдельно через SetUpstream/SetDownstream.
package graph
