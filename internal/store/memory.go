package store

import (
	"context"
	"sync"
)

// Memory is an in-process TableStore. It backs tests and the default local
// setup; contents vanish on restart.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][][]string
}

// NewMemory creates an empty in-memory store with all known tables present.
func NewMemory() *Memory {
	m := &Memory{tables: make(map[string][][]string)}
	for _, t := range Tables {
		m.tables[t] = nil
	}
	return m
}

func (m *Memory) Read(_ context.Context, table string) ([][]string, error) {
	cols, err := Columns(table)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([][]string, 0, len(m.tables[table]))
	for _, row := range m.tables[table] {
		rows = append(rows, pad(append([]string(nil), row...), len(cols)))
	}
	return rows, nil
}

func (m *Memory) Write(_ context.Context, table string, rows [][]string) error {
	cols, err := Columns(table)
	if err != nil {
		return err
	}

	copied := make([][]string, 0, len(rows))
	for _, row := range rows {
		copied = append(copied, pad(append([]string(nil), row...), len(cols)))
	}

	m.mu.Lock()
	m.tables[table] = copied
	m.mu.Unlock()
	return nil
}

func (m *Memory) Append(_ context.Context, table string, rows ...[]string) error {
	cols, err := Columns(table)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		m.tables[table] = append(m.tables[table], pad(append([]string(nil), row...), len(cols)))
	}
	return nil
}

func (m *Memory) Close() error { return nil }
