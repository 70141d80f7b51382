// Package edits records user overrides of schedule cells.
package edits

import (
	"cmp"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/shopspring/decimal"
)

type key struct {
	day   int
	field models.Field
}

// Store keeps one EditedCell per (day, field). Callers serialise access.
type Store struct {
	cells map[key]models.EditedCell
	now   func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		cells: make(map[key]models.EditedCell),
		now:   time.Now,
	}
}

// RecordEdit upserts an edit. The original value is kept from the first edit of the key.
func (s *Store) RecordEdit(day int, field models.Field, original, newValue decimal.Decimal) models.EditedCell {
	k := key{day: day, field: field}
	c, ok := s.cells[k]
	if !ok {
		c = models.EditedCell{Day: day, Field: field, OriginalValue: original}
	}
	c.NewValue = newValue
	c.EditedAt = s.now()
	s.cells[k] = c
	return c
}

// Get returns the edit stored for a cell
func (s *Store) Get(day int, field models.Field) (models.EditedCell, bool) {
	c, ok := s.cells[key{day: day, field: field}]
	return c, ok
}

// All yields the edits ordered by day, then by column. Each range starts over from the current contents.
func (s *Store) All() iter.Seq[models.EditedCell] {
	return func(yield func(models.EditedCell) bool) {
		keys := slices.SortedFunc(maps.Keys(s.cells), func(a, b key) int {
			return cmp.Or(cmp.Compare(a.day, b.day), cmp.Compare(a.field.Order(), b.field.Order()))
		})
		for _, k := range keys {
			if !yield(s.cells[k]) {
				return
			}
		}
	}
}

// Len returns the number of edited cells
func (s *Store) Len() int {
	return len(s.cells)
}

// Clear drops every edit
func (s *Store) Clear() {
	clear(s.cells)
}
