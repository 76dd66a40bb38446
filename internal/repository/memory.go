package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"flowportal/pkg/models"
)

// MemoryStore is an in-memory Store used in tests and for local development
// without a database. Transactions are simulated by snapshotting state and
// restoring it when fn fails.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	instances map[int64]*models.ActivityInstance
	tasks     map[string]*models.Task
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:    1,
		instances: make(map[int64]*models.ActivityInstance),
		tasks:     make(map[string]*models.Task),
	}
}

// WithinTx snapshots the store, runs fn, and restores the snapshot when fn
// returns an error.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx ActivityStore) error) error {
	s.mu.Lock()
	savedInstances := make(map[int64]*models.ActivityInstance, len(s.instances))
	for id, inst := range s.instances {
		savedInstances[id] = copyInstance(inst)
	}
	savedTasks := make(map[string]*models.Task, len(s.tasks))
	for id, task := range s.tasks {
		savedTasks[id] = copyTask(task)
	}
	savedNextID := s.nextID
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.instances = savedInstances
		s.tasks = savedTasks
		s.nextID = savedNextID
		s.mu.Unlock()
		return err
	}
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// CreateInstance implements ActivityStore.
func (s *MemoryStore) CreateInstance(ctx context.Context, inst *models.ActivityInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	s.instances[inst.ID] = copyInstance(inst)
	return nil
}

// GetInstance implements ActivityStore.
func (s *MemoryStore) GetInstance(ctx context.Context, id int64) (*models.ActivityInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %d: %w", id, ErrNotFound)
	}
	out := copyInstance(inst)
	out.Task = s.findTask(id)
	return out, nil
}

// UpdateInstance implements ActivityStore.
func (s *MemoryStore) UpdateInstance(ctx context.Context, inst *models.ActivityInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.instances[inst.ID]
	if !ok {
		return fmt.Errorf("instance %d: %w", inst.ID, ErrNotFound)
	}
	inst.UpdatedAt = time.Now().UTC()
	stored.Fields = copyFields(inst.Fields)
	stored.Completed = inst.Completed
	stored.UpdatedAt = inst.UpdatedAt
	return nil
}

// DeleteInstance implements ActivityStore.
func (s *MemoryStore) DeleteInstance(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[id]; !ok {
		return fmt.Errorf("instance %d: %w", id, ErrNotFound)
	}
	delete(s.instances, id)
	for tid, task := range s.tasks {
		if task.InstanceID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

// ListInstances implements ActivityStore.
func (s *MemoryStore) ListInstances(ctx context.Context, appName, modelName string) ([]*models.ActivityInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ActivityInstance
	for _, inst := range s.instances {
		if inst.AppName == appName && inst.ModelName == modelName {
			c := copyInstance(inst)
			c.Task = s.findTask(inst.ID)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// CreateTask implements ActivityStore.
func (s *MemoryStore) CreateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// UpdateTask implements ActivityStore.
func (s *MemoryStore) UpdateTask(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return fmt.Errorf("task %s: %w", task.ID, ErrNotFound)
	}
	task.UpdatedAt = time.Now().UTC()
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// DeleteTask implements ActivityStore.
func (s *MemoryStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) findTask(instanceID int64) *models.Task {
	for _, task := range s.tasks {
		if task.InstanceID == instanceID {
			return copyTask(task)
		}
	}
	return nil
}

func copyInstance(inst *models.ActivityInstance) *models.ActivityInstance {
	c := *inst
	c.Fields = copyFields(inst.Fields)
	c.Task = nil
	return &c
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func copyTask(task *models.Task) *models.Task {
	c := *task
	if task.PreviousInstanceID != nil {
		prev := *task.PreviousInstanceID
		c.PreviousInstanceID = &prev
	}
	return &c
}
