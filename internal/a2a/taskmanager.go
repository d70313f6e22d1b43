package a2a

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrTaskNotFound reports an unknown task id.
	ErrTaskNotFound = errors.New("a2a: task not found")

	// ErrNotCancelable reports a cancel on a terminal task.
	ErrNotCancelable = errors.New("a2a: task is in a terminal state")
)

// Processor runs one task's message through the agent pipeline and
// returns the assistant reply plus any artifacts.
type Processor interface {
	Process(ctx context.Context, taskID string, message Message) (Message, []Artifact, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, taskID string, message Message) (Message, []Artifact, error)

func (f ProcessorFunc) Process(ctx context.Context, taskID string, message Message) (Message, []Artifact, error) {
	return f(ctx, taskID, message)
}

// TaskManager owns the task table and enforces the state machine:
// Submitted -> Working -> {Completed | Failed | Canceled}, with
// Rejected terminal from Submitted. Terminal states reject cancel.
type TaskManager struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	cancels map[string]context.CancelFunc
}

// NewTaskManager creates an empty manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{
		tasks:   make(map[string]*Task),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create registers a new Submitted task holding the inbound message.
func (m *TaskManager) Create(message Message) Task {
	task := Task{
		ID:        uuid.NewString(),
		ContextID: message.ContextID,
		Status:    TaskStatus{State: StateSubmitted, Timestamp: nowRFC3339()},
		Artifacts: []Artifact{},
		History:   []Message{message},
	}
	m.mu.Lock()
	m.tasks[task.ID] = &task
	m.mu.Unlock()
	return task
}

// Get returns a task copy, optionally truncating history to the last
// historyLength messages.
func (m *TaskManager) Get(id string, historyLength *int) (Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	out := *task
	out.History = append([]Message(nil), task.History...)
	out.Artifacts = append([]Artifact(nil), task.Artifacts...)
	if historyLength != nil && len(out.History) > *historyLength {
		out.History = out.History[len(out.History)-*historyLength:]
	}
	return out, nil
}

// UpdateState transitions a task and returns the updated copy. A
// transition out of a terminal state is refused.
func (m *TaskManager) UpdateState(id string, state TaskState, msg *Message) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if task.Status.State.Terminal() {
		return *task, ErrNotCancelable
	}
	task.Status = TaskStatus{State: state, Timestamp: nowRFC3339(), Message: msg}
	return *task, nil
}

// AppendHistory adds a message to the task's history.
func (m *TaskManager) AppendHistory(id string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	task.History = append(task.History, msg)
	return nil
}

// AddArtifact attaches an artifact to the task.
func (m *TaskManager) AddArtifact(id string, artifact Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	task.Artifacts = append(task.Artifacts, artifact)
	return nil
}

// BindCancel associates the task with the cancel function of its
// in-flight processing context.
func (m *TaskManager) BindCancel(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()
}

// ReleaseCancel drops the cancel binding once processing ends.
func (m *TaskManager) ReleaseCancel(id string) {
	m.mu.Lock()
	delete(m.cancels, id)
	m.mu.Unlock()
}

// Cancel transitions the task to Canceled and fires its cancel
// function. Terminal tasks return ErrNotCancelable.
func (m *TaskManager) Cancel(id string) (Task, error) {
	m.mu.Lock()
	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return Task{}, ErrTaskNotFound
	}
	if task.Status.State.Terminal() {
		out := *task
		m.mu.Unlock()
		return out, ErrNotCancelable
	}
	task.Status = TaskStatus{State: StateCanceled, Timestamp: nowRFC3339()}
	cancel := m.cancels[id]
	delete(m.cancels, id)
	out := *task
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return out, nil
}
