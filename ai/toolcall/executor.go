package toolcall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const defaultToolTimeout = 5 * time.Second

// Maximum response body read from a capability service.
const maxResponseSize = 1 << 20

// rpcResponse is the wire shape every capability service returns.
type rpcResponse struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Executor validates invocation arguments against the catalog schema and
// performs the capability RPC. The RPC is issued exactly once per
// invocation: no retry, so a flaky network cannot double-apply an action.
type Executor struct {
	catalog *Catalog
	client  *http.Client
	timeout time.Duration
}

// NewExecutor creates an executor with a pooled transport shared across
// requests. timeout bounds each capability RPC and should be a small
// fraction of the overall turn budget.
func NewExecutor(catalog *Catalog, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	return &Executor{
		catalog: catalog,
		timeout: timeout,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   3 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:    50,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// Execute runs one invocation against its capability service. A schema
// violation is rejected before any network I/O. All failures come back
// as a Result, never as a hard error: the orchestrator folds them into
// the reply text.
func (e *Executor) Execute(ctx context.Context, inv *Invocation, callerID string) *Result {
	def, ok := e.catalog.Lookup(inv.Tool)
	if !ok {
		return failure(inv, ErrorInvalidArguments, fmt.Sprintf("unknown tool %q", inv.Tool))
	}

	if msg := validateArguments(def, inv.Arguments); msg != "" {
		slog.Warn("executor: schema gate rejected invocation",
			"tool", inv.Tool,
			"source", inv.Source,
			"reason", msg)
		return failure(inv, ErrorInvalidArguments, msg)
	}

	body := make(map[string]any, len(inv.Arguments)+1)
	for k, v := range inv.Arguments {
		body[k] = v
	}
	body["caller_id"] = callerID

	payload, err := json.Marshal(body)
	if err != nil {
		return failure(inv, ErrorInvalidArguments, fmt.Sprintf("encode arguments: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	startTime := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, def.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return failure(inv, ErrorExecutionFailed, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		slog.Warn("executor: capability rpc failed",
			"tool", inv.Tool,
			"endpoint", def.Endpoint,
			"error", err,
			"duration_ms", time.Since(startTime).Milliseconds())
		return failure(inv, ErrorExecutionFailed, fmt.Sprintf("capability call failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure(inv, ErrorExecutionFailed, fmt.Sprintf("capability returned status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return failure(inv, ErrorExecutionFailed, fmt.Sprintf("read response: %v", err))
	}

	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return failure(inv, ErrorExecutionFailed, fmt.Sprintf("decode response: %v", err))
	}

	if !rpc.Success {
		return failure(inv, ErrorRemoteRejected, rpc.Error)
	}

	slog.Debug("executor: capability rpc completed",
		"tool", inv.Tool,
		"source", inv.Source,
		"duration_ms", time.Since(startTime).Milliseconds())

	return &Result{
		Invocation: inv,
		Success:    true,
		Payload:    rpc.Result,
	}
}

func failure(inv *Invocation, kind ErrorKind, msg string) *Result {
	return &Result{
		Invocation: inv,
		Success:    false,
		ErrorKind:  kind,
		Message:    msg,
	}
}

// validateArguments checks required params, param existence, and type
// agreement. Returns an empty string when valid.
func validateArguments(def *Definition, args map[string]any) string {
	for name, spec := range def.Params {
		value, present := args[name]
		if !present {
			if spec.Required {
				return fmt.Sprintf("missing required argument %q", name)
			}
			continue
		}
		if !typeMatches(spec.Type, value) {
			return fmt.Sprintf("argument %q must be of type %s", name, spec.Type)
		}
	}

	for name := range args {
		if _, known := def.Params[name]; !known {
			return fmt.Sprintf("unknown argument %q", name)
		}
	}

	return ""
}

func typeMatches(specType string, value any) bool {
	switch specType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	}
	return false
}
