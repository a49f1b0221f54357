package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/datagate-io/datagate/internal/common/apperrors"
)

// Memory is an in-memory Engine used by the "memory" engine type and by
// tests. Objects, columns, grants, and canned results are configured
// programmatically.
type Memory struct {
	mu            sync.RWMutex
	objects       map[string]RawObject
	columns       map[string][]RawColumn
	grants        map[string]map[string]bool
	results       map[string]*ResultSet
	defaultResult *ResultSet
	failScans     int
	execDelay     time.Duration
	execErrs      map[string]error
}

// NewMemory creates an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{
		objects:  make(map[string]RawObject),
		columns:  make(map[string][]RawColumn),
		grants:   make(map[string]map[string]bool),
		results:  make(map[string]*ResultSet),
		execErrs: make(map[string]error),
	}
}

// AddView registers a view with the given comment and columns.
func (m *Memory) AddView(fqName, comment string, cols []RawColumn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.objects[fqName]; ok {
		now = existing.CreatedAt
	}
	m.objects[fqName] = RawObject{
		Kind:        KindView,
		FqName:      fqName,
		Schema:      schemaOf(fqName),
		Comment:     comment,
		CreatedAt:   now,
		LastAltered: time.Now().UTC(),
	}
	m.columns[fqName] = cols
}

// AddProcedure registers a procedure with the given comment.
func (m *Memory) AddProcedure(fqName, comment string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.objects[fqName] = RawObject{
		Kind:        KindProcedure,
		FqName:      fqName,
		Schema:      schemaOf(fqName),
		Comment:     comment,
		CreatedAt:   now,
		LastAltered: now,
	}
}

// Remove deletes an object.
func (m *Memory) Remove(fqName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, fqName)
	delete(m.columns, fqName)
}

// Grant allows principal to SELECT from object.
func (m *Memory) Grant(principal, object string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[principal] == nil {
		m.grants[principal] = make(map[string]bool)
	}
	m.grants[principal][strings.ToLower(object)] = true
}

// Revoke removes principal's SELECT privilege on object.
func (m *Memory) Revoke(principal, object string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[principal], strings.ToLower(object))
}

// SetResult cans a result set for an exact statement text.
func (m *Memory) SetResult(sqlText string, rs *ResultSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[sqlText] = rs
}

// SetDefaultResult cans the result returned for statements without an
// exact match.
func (m *Memory) SetDefaultResult(rs *ResultSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResult = rs
}

// SetExecError makes executions whose text contains substr fail with err.
func (m *Memory) SetExecError(substr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execErrs[substr] = err
}

// SetExecDelay delays executions, for exercising statement timeouts.
func (m *Memory) SetExecDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execDelay = d
}

// FailIntrospections makes the next n introspection calls fail, for
// exercising scan retries.
func (m *Memory) FailIntrospections(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failScans = n
}

func (m *Memory) Ping(ctx context.Context) apperrors.Error {
	return nil
}

func (m *Memory) IntrospectObjects(ctx context.Context) ([]RawObject, apperrors.Error) {
	m.mu.Lock()
	if m.failScans > 0 {
		m.failScans--
		m.mu.Unlock()
		return nil, ErrIntrospection.Msg("injected introspection failure")
	}
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	objects := make([]RawObject, 0, len(m.objects))
	for _, o := range m.objects {
		objects = append(objects, o)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].FqName < objects[j].FqName })
	return objects, nil
}

func (m *Memory) IntrospectColumns(ctx context.Context, fqName string) ([]RawColumn, apperrors.Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[fqName]; !ok {
		return nil, ErrUnknownObject.Msg("unknown object: " + fqName)
	}
	cols := make([]RawColumn, len(m.columns[fqName]))
	copy(cols, m.columns[fqName])
	return cols, nil
}

func (m *Memory) CanRead(ctx context.Context, object, principal string) (bool, apperrors.Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grants[principal][strings.ToLower(object)], nil
}

func (m *Memory) ExecuteRead(ctx context.Context, sqlText string, tag QueryTag, maxRows int) (*ResultSet, apperrors.Error) {
	m.mu.RLock()
	delay := m.execDelay
	var injected error
	for substr, err := range m.execErrs {
		if strings.Contains(sqlText, substr) {
			injected = err
			break
		}
	}
	rs, ok := m.results[sqlText]
	if !ok {
		rs = m.defaultResult
	}
	m.mu.RUnlock()

	if injected != nil {
		return nil, ErrExecution.Err(injected)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrExecutionTimeout.Err(ctx.Err())
		}
	}
	if rs == nil {
		rs = &ResultSet{}
	}
	out := &ResultSet{Columns: rs.Columns}
	for i, row := range rs.Rows {
		if maxRows > 0 && i >= maxRows {
			break
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func schemaOf(fqName string) string {
	if i := strings.IndexByte(fqName, '.'); i > 0 {
		return fqName[:i]
	}
	return ""
}
