// Package orchestrator drives one conversation turn through the
// classify, compose, generate, extract, inject, execute and synthesize
// stages, and falls back to decomposing compound or slow turns into
// concurrently executed sub-tasks.
package orchestrator

import (
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/parley/ai/core/llm"
	"github.com/hrygo/parley/ai/routing"
	"github.com/hrygo/parley/ai/toolcall"
)

// TurnState is the orchestrator's position in the turn state machine.
type TurnState string

const (
	StateClassifying  TurnState = "classifying"
	StateComposing    TurnState = "composing"
	StateGenerating   TurnState = "generating"
	StateExtracting   TurnState = "extracting"
	StateInjecting    TurnState = "injecting"
	StateExecuting    TurnState = "executing"
	StateSynthesizing TurnState = "synthesizing"
	StateDecomposing  TurnState = "decomposing"
	StateDone         TurnState = "done"
)

// Request is one inbound utterance with its caller context.
type Request struct {
	Utterance string
	HasMedia  bool
	CallerID  string
	History   []llm.Message
}

// Turn holds everything produced while answering one request. It is
// owned exclusively by the orchestrator and discarded after the reply
// is returned.
type Turn struct {
	ID             string
	Request        Request
	Classification routing.Result
	Invocation     *toolcall.Invocation
	Result         *toolcall.Result
	FinalReply     string
	Decomposed     bool
	State          TurnState
	Timings        map[string]int64 // stage -> elapsed milliseconds

	start time.Time
}

func newTurn(req Request) *Turn {
	return &Turn{
		ID:      shortuuid.New(),
		Request: req,
		State:   StateClassifying,
		Timings: make(map[string]int64),
		start:   time.Now(),
	}
}

// mark records the elapsed time of one stage.
func (t *Turn) mark(stage string, since time.Time) {
	t.Timings[stage] = time.Since(since).Milliseconds()
}

// SubTaskStatus is the lifecycle state of one decomposed sub-task.
type SubTaskStatus string

const (
	SubTaskPending   SubTaskStatus = "pending"
	SubTaskRunning   SubTaskStatus = "running"
	SubTaskCompleted SubTaskStatus = "completed"
	SubTaskFailed    SubTaskStatus = "failed"
	// SubTaskSkipped marks a sub-task abandoned because an upstream
	// dependency failed.
	SubTaskSkipped SubTaskStatus = "skipped"
)

// IsTerminal reports whether the status is final.
func (s SubTaskStatus) IsTerminal() bool {
	return s == SubTaskCompleted || s == SubTaskFailed || s == SubTaskSkipped
}

// SubTask is one independently executable fragment of a decomposed
// utterance. It re-enters the full single-shot chain with its own
// sub-budget.
type SubTask struct {
	ID        string
	Fragment  string
	DependsOn []string

	mu     sync.RWMutex
	status SubTaskStatus
	turn   *Turn
	errMsg string
}

// NewSubTask creates a pending sub-task for one utterance fragment.
func NewSubTask(id, fragment string, dependsOn []string) *SubTask {
	return &SubTask{
		ID:        id,
		Fragment:  fragment,
		DependsOn: dependsOn,
		status:    SubTaskPending,
	}
}

// Status returns the current status thread-safely.
func (s *SubTask) Status() SubTaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// MarkRunning transitions the sub-task to running.
func (s *SubTask) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = SubTaskRunning
}

// Complete records the finished turn and marks the sub-task completed.
func (s *SubTask) Complete(turn *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turn = turn
	s.status = SubTaskCompleted
}

// Fail records an error message and marks the sub-task failed.
func (s *SubTask) Fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
	s.status = SubTaskFailed
}

// Skip marks the sub-task skipped with a reason.
func (s *SubTask) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = reason
	s.status = SubTaskSkipped
}

// Turn returns the nested turn, nil unless completed.
func (s *SubTask) Turn() *Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turn
}

// Err returns the failure or skip reason.
func (s *SubTask) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// Config tunes the orchestrator.
type Config struct {
	// TurnBudget is the overall wall-clock deadline for one turn.
	TurnBudget time.Duration

	// GenerationFraction bounds the single-shot generation call to a
	// fraction of the remaining budget, leaving headroom to decompose
	// on timeout.
	GenerationFraction float64

	// MaxParallelSubTasks caps concurrent sub-task execution.
	MaxParallelSubTasks int

	// MaxSubTasks caps how many fragments a decomposition may produce.
	MaxSubTasks int
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		TurnBudget:          30 * time.Second,
		GenerationFraction:  0.6,
		MaxParallelSubTasks: 3,
		MaxSubTasks:         4,
	}
}

// Option configures the orchestrator.
type Option func(*Config)

// WithTurnBudget sets the overall turn deadline.
func WithTurnBudget(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.TurnBudget = d
		}
	}
}

// WithMaxParallelSubTasks sets the sub-task concurrency cap.
func WithMaxParallelSubTasks(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxParallelSubTasks = n
		}
	}
}

// WithMaxSubTasks caps decomposition width.
func WithMaxSubTasks(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxSubTasks = n
		}
	}
}
