package steps

import (
	"fmt"
	"sync"
)

// Catalog — каталог типов шагов.
//
// Сопоставляет символическую ссылку из конфигурации (каноническое имя
// или алиас) с фабрикой оператора. Потокобезопасен.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[string]*Definition // каноническое имя → определение
	index map[string]*Definition // имя или алиас → определение
}

// NewCatalog создаёт пустой каталог.
func NewCatalog() *Catalog {
	return &Catalog{
		defs:  make(map[string]*Definition),
		index: make(map[string]*Definition),
	}
}

// DefaultCatalog создаёт каталог со всеми стандартными шагами.
func DefaultCatalog() *Catalog {
	c := NewCatalog()

	c.Register(NoopDefinition())
	c.Register(BashDefinition())
	c.Register(CallableDefinition())
	c.Register(HTTPDefinition())
	c.Register(DelayDefinition())
	c.Register(TransformDefinition())

	return c
}

// Register регистрирует тип шага под каноническим именем и алиасами.
// Если тип с таким именем уже существует, он будет перезаписан.
func (c *Catalog) Register(def Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, exists := c.defs[def.Name]; exists {
		c.unregisterLocked(old)
	}

	d := def
	c.defs[d.Name] = &d
	for _, ref := range d.Refs() {
		c.index[ref] = &d
	}
}

// Lookup возвращает определение по имени или алиасу.
// Возвращает ErrStepNotFound, если ссылка неизвестна.
func (c *Catalog) Lookup(ref string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, exists := c.index[ref]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, ref)
	}

	return def, nil
}

// Has проверяет, известна ли ссылка.
func (c *Catalog) Has(ref string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.index[ref]
	return exists
}

// Names возвращает отсортированный список канонических имён.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.defs)
}

// Refs возвращает отсортированный список всех ссылок (имена и алиасы).
func (c *Catalog) Refs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.index)
}

// Count возвращает количество зарегистрированных типов.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// Unregister удаляет тип шага вместе с алиасами.
func (c *Catalog) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if def, exists := c.defs[name]; exists {
		c.unregisterLocked(def)
	}
}

func (c *Catalog) unregisterLocked(def *Definition) {
	delete(c.defs, def.Name)
	for _, ref := range def.Refs() {
		if c.index[ref] == def {
			delete(c.index, ref)
		}
	}
}
