package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/shaiso/dagfactory/internal/domain"
)

// WorkflowOptions — настройки уровня workflow.
type WorkflowOptions struct {
	Schedule      string
	Description   string
	MaxActiveRuns int
	StartDate     time.Time
	Timezone      string
	DefaultArgs   domain.Params
}

// Workflow — направленный граф задач.
//
// Рёбра означают "выполняется после": ребро A → B означает,
// что B стартует только после A.
type Workflow struct {
	// ID — идентификатор workflow.
	ID string

	// Schedule — cron-выражение, дескриптор (@daily) или пусто.
	Schedule string

	// Description — описание workflow.
	Description string

	// MaxActiveRuns — ограничение одновременных запусков.
	MaxActiveRuns int

	// StartDate — дата начала расписания.
	StartDate time.Time

	// Timezone — часовой пояс расписания.
	Timezone string

	// DefaultArgs — аргументы по умолчанию для всех задач.
	DefaultArgs domain.Params

	tasks map[string]*Task
	order []string
}

// Edge — ребро графа (From выполняется до To).
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NewWorkflow создаёт пустой workflow.
func NewWorkflow(id string, opts WorkflowOptions) *Workflow {
	return &Workflow{
		ID:            id,
		Schedule:      opts.Schedule,
		Description:   opts.Description,
		MaxActiveRuns: opts.MaxActiveRuns,
		StartDate:     opts.StartDate,
		Timezone:      opts.Timezone,
		DefaultArgs:   opts.DefaultArgs.Clone(),
		tasks:         make(map[string]*Task),
		order:         make([]string, 0),
	}
}

// AddTask создаёт задачу и регистрирует её в workflow.
// args — базовые аргументы уровня задачи (owner, retries, ...).
func (w *Workflow) AddTask(id string, op Operator, args domain.Params) (*Task, error) {
	if id == "" {
		return nil, ErrEmptyTaskID
	}
	if _, exists := w.tasks[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}
	if err := ValidateTaskArgs(args); err != nil {
		return nil, err
	}

	task := &Task{
		ID:         id,
		workflow:   w,
		operator:   op,
		args:       args.Clone(),
		upstream:   make([]*Task, 0),
		downstream: make([]*Task, 0),
	}
	w.tasks[id] = task
	w.order = append(w.order, id)

	return task, nil
}

// link добавляет ребро from → to.
// Повторное ребро игнорируется, чтобы не задваивать зависимости.
func (w *Workflow) link(from, to *Task) error {
	if from == nil || to == nil {
		return fmt.Errorf("%w: nil task", ErrForeignTask)
	}
	if from.workflow != w || to.workflow != w {
		return fmt.Errorf("%w: %s -> %s", ErrForeignTask, from.ID, to.ID)
	}
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfDependency, from.ID)
	}

	for _, dep := range to.upstream {
		if dep == from {
			return nil // уже связаны
		}
	}
	from.downstream = append(from.downstream, to)
	to.upstream = append(to.upstream, from)
	return nil
}

// Task возвращает задачу по ID.
func (w *Workflow) Task(id string) *Task {
	return w.tasks[id]
}

// Tasks возвращает задачи в порядке регистрации.
func (w *Workflow) Tasks() []*Task {
	tasks := make([]*Task, 0, len(w.order))
	for _, id := range w.order {
		tasks = append(tasks, w.tasks[id])
	}
	return tasks
}

// TaskIDs возвращает ID задач в порядке регистрации.
func (w *Workflow) TaskIDs() []string {
	return append([]string(nil), w.order...)
}

// Size возвращает количество задач.
func (w *Workflow) Size() int {
	return len(w.tasks)
}

// Edges возвращает все рёбра, отсортированные по (From, To).
func (w *Workflow) Edges() []Edge {
	edges := make([]Edge, 0)
	for _, task := range w.tasks {
		for _, down := range task.downstream {
			edges = append(edges, Edge{From: task.ID, To: down.ID})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// Roots возвращает задачи без зависимостей в порядке регистрации.
func (w *Workflow) Roots() []*Task {
	roots := make([]*Task, 0)
	for _, id := range w.order {
		if len(w.tasks[id].upstream) == 0 {
			roots = append(roots, w.tasks[id])
		}
	}
	return roots
}

// Leaves возвращает задачи, от которых никто не зависит.
func (w *Workflow) Leaves() []*Task {
	leaves := make([]*Task, 0)
	for _, id := range w.order {
		if len(w.tasks[id].downstream) == 0 {
			leaves = append(leaves, w.tasks[id])
		}
	}
	return leaves
}

// TopologicalOrder выполняет топологическую сортировку (алгоритм Кана).
// Среди готовых задач первой идёт та, что зарегистрирована раньше.
// Возвращает ErrCyclicDependency, если в графе есть цикл.
func (w *Workflow) TopologicalOrder() ([]*Task, error) {
	inDegree := make(map[string]int, len(w.tasks))
	position := make(map[string]int, len(w.order))
	for i, id := range w.order {
		inDegree[id] = len(w.tasks[id].upstream)
		position[id] = i
	}

	// Очередь задач с inDegree = 0
	queue := make([]*Task, 0)
	for _, id := range w.order {
		if inDegree[id] == 0 {
			queue = append(queue, w.tasks[id])
		}
	}

	order := make([]*Task, 0, len(w.tasks))
	for len(queue) > 0 {
		task := queue[0]
		queue = queue[1:]
		order = append(order, task)

		ready := make([]*Task, 0)
		for _, down := range task.downstream {
			inDegree[down.ID]--
			if inDegree[down.ID] == 0 {
				ready = append(ready, down)
			}
		}
		sort.Slice(ready, func(i, j int) bool {
			return position[ready[i].ID] < position[ready[j].ID]
		})
		queue = append(queue, ready...)
	}

	// Если не все задачи обработаны — есть цикл
	if len(order) != len(w.tasks) {
		return nil, fmt.Errorf("%w: %v", ErrCyclicDependency, w.cycleMembers(inDegree))
	}

	return order, nil
}

// cycleMembers возвращает задачи, оставшиеся с ненулевым inDegree.
func (w *Workflow) cycleMembers(inDegree map[string]int) []string {
	members := make([]string, 0)
	for _, id := range w.order {
		if inDegree[id] > 0 {
			members = append(members, id)
		}
	}
	return members
}

// Validate проверяет, что граф ацикличен.
func (w *Workflow) Validate() error {
	_, err := w.TopologicalOrder()
	return err
}
