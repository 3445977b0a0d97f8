package toolcall

import (
	"github.com/google/uuid"
)

// Source records who produced an invocation.
type Source string

const (
	// SourceModel marks an invocation extracted from generated text.
	SourceModel Source = "model_emitted"
	// SourceInjected marks an invocation synthesized by the deterministic
	// injector from the original utterance.
	SourceInjected Source = "injected"
)

// Invocation is a request to call one tool. At most one invocation is
// executed per turn unless the utterance was decomposed.
type Invocation struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Source    Source         `json:"source"`
}

// NewInvocation creates an invocation with a fresh ID.
func NewInvocation(tool string, args map[string]any, source Source) *Invocation {
	return &Invocation{
		ID:        uuid.NewString(),
		Tool:      tool,
		Arguments: args,
		Source:    source,
	}
}

// ErrorKind classifies tool execution failures.
type ErrorKind string

const (
	// ErrorInvalidArguments means the schema gate rejected the arguments;
	// no network call was made.
	ErrorInvalidArguments ErrorKind = "invalid_arguments"
	// ErrorExecutionFailed means the RPC itself failed (network, timeout,
	// non-2xx status).
	ErrorExecutionFailed ErrorKind = "execution_failed"
	// ErrorRemoteRejected means the capability service returned an
	// application-level failure; its message is preserved.
	ErrorRemoteRejected ErrorKind = "remote_rejected"
)

// Result is the terminal outcome of one invocation.
type Result struct {
	Invocation *Invocation    `json:"invocation"`
	Success    bool           `json:"success"`
	Payload    map[string]any `json:"payload,omitempty"`
	ErrorKind  ErrorKind      `json:"error_kind,omitempty"`
	// Message holds the remote service's error text for RemoteRejected,
	// or a short local description for other failures.
	Message string `json:"message,omitempty"`
}
