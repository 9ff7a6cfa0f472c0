// ABOUTME: Generic adapter plugin that proxies the connector contract to an out-of-process server
// ABOUTME: Speaks line-delimited JSON-RPC over the child's stdio, started lazily on first use

package connector

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sagehq/sage-gateway/internal/store"
)

// ErrServerStopped indicates the external server process is no longer running.
var ErrServerStopped = errors.New("external connector server stopped")

// maxLineBytes bounds a single JSON-RPC line from the child process (4MB).
const maxLineBytes = 4 << 20

// ExternalPlugin proxies all four contract calls to an external server
// launched from a LaunchSpec. The server speaks the same JSON-RPC protocol
// over stdin/stdout, one message per line. The child is started on the first
// contract call; supervision beyond start/stop is out of scope.
type ExternalPlugin struct {
	ctype  store.ConnectorType
	launch store.LaunchSpec
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   *json.Encoder
	nextID  int64
	pending map[int64]chan *rpcReply
	stopped bool
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewExternalPlugin creates an adapter for the given connector type and
// launch spec. The server process is not started until the first call.
func NewExternalPlugin(ctype store.ConnectorType, launch store.LaunchSpec, logger *slog.Logger) *ExternalPlugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalPlugin{
		ctype:   ctype,
		launch:  launch,
		logger:  logger.With("component", "external", "connector_type", ctype),
		pending: make(map[int64]chan *rpcReply),
	}
}

// Name returns the connector type as the plugin name.
func (e *ExternalPlugin) Name() string { return string(e.ctype) }

// DisplayName returns a human-readable name derived from the type.
func (e *ExternalPlugin) DisplayName() string {
	words := strings.Split(string(e.ctype), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Description describes the externally hosted server.
func (e *ExternalPlugin) Description() string {
	return fmt.Sprintf("Externally hosted %s connector (%s)", e.ctype, e.launch.Command)
}

// RequiresOAuth is true for external connectors; the resolved credential is
// injected into the child's environment at start and the server applies its
// own usability judgment.
func (e *ExternalPlugin) RequiresOAuth() bool { return true }

// Tools lists the external server's tools, normalizing names onto the
// "{connector_type}_" prefix the dispatcher routes by.
func (e *ExternalPlugin) Tools(ctx context.Context, _ *store.ConnectorConfig, cred *store.Credential) ([]ToolDescriptor, error) {
	raw, err := e.call(ctx, cred, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding tools/list result: %w", err)
	}
	prefix := string(e.ctype) + "_"
	for i := range result.Tools {
		if !strings.HasPrefix(result.Tools[i].Name, prefix) {
			result.Tools[i].Name = prefix + result.Tools[i].Name
		}
	}
	return result.Tools, nil
}

// Resources lists the external server's resources, normalizing URIs onto the
// connector-type scheme.
func (e *ExternalPlugin) Resources(ctx context.Context, _ *store.ConnectorConfig, cred *store.Credential) ([]ResourceDescriptor, error) {
	raw, err := e.call(ctx, cred, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Resources []ResourceDescriptor `json:"resources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding resources/list result: %w", err)
	}
	scheme := string(e.ctype) + "://"
	for i := range result.Resources {
		if !strings.Contains(result.Resources[i].URI, "://") {
			result.Resources[i].URI = scheme + result.Resources[i].URI
		}
	}
	return result.Resources, nil
}

// ExecuteTool forwards a tool call using the server's local action name.
func (e *ExternalPlugin) ExecuteTool(ctx context.Context, _ *store.ConnectorConfig, action string, args map[string]any, cred *store.Credential) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := e.call(ctx, cred, "tools/call", map[string]any{
		"name":      action,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decoding tools/call result: %w", err)
	}
	var parts []string
	for _, c := range result.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// ReadResource forwards a resource read using the server's local URI.
func (e *ExternalPlugin) ReadResource(ctx context.Context, _ *store.ConnectorConfig, path string, cred *store.Credential) (string, error) {
	raw, err := e.call(ctx, cred, "resources/read", map[string]any{"uri": path})
	if err != nil {
		return "", err
	}
	var result struct {
		Contents []struct {
			Text string `json:"text"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decoding resources/read result: %w", err)
	}
	var parts []string
	for _, c := range result.Contents {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n"), nil
}

// Stop terminates the child process if it is running.
func (e *ExternalPlugin) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
		e.cmd = nil
	}
	for id, ch := range e.pending {
		close(ch)
		delete(e.pending, id)
	}
}

// ensureStarted launches the child process on first use. The resolved
// credential, when present, is injected into the child's environment so the
// server authenticates with the tenant's token.
func (e *ExternalPlugin) ensureStarted(cred *store.Credential) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrServerStopped
	}
	if e.cmd != nil {
		return nil
	}

	cmd := exec.Command(e.launch.Command, e.launch.Args...)
	cmd.Dir = e.launch.Dir
	cmd.Env = os.Environ()
	for k, v := range e.launch.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if cred != nil {
		cmd.Env = append(cmd.Env, "SAGE_ACCESS_TOKEN="+cred.AccessToken)
		cmd.Env = append(cmd.Env, "SAGE_TOKEN_PROVIDER="+cred.Provider)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", e.launch.Command, err)
	}

	e.cmd = cmd
	e.stdin = json.NewEncoder(stdin)
	go e.readLoop(stdout)

	e.logger.Info("external connector server started",
		"command", e.launch.Command,
		"pid", cmd.Process.Pid,
	)
	return nil
}

// readLoop routes replies from the child's stdout to waiting callers by id.
func (e *ExternalPlugin) readLoop(stdout interface{ Read([]byte) (int, error) }) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var reply rpcReply
		if err := json.Unmarshal(line, &reply); err != nil {
			e.logger.Warn("discarding unparsable line from external server", "error", err)
			continue
		}

		e.mu.Lock()
		ch, ok := e.pending[reply.ID]
		if ok {
			delete(e.pending, reply.ID)
		}
		e.mu.Unlock()

		if !ok {
			e.logger.Warn("reply for unknown request id", "id", reply.ID)
			continue
		}
		ch <- &reply
		close(ch)
	}

	// Child exited or stdout failed: unblock every waiter.
	e.mu.Lock()
	e.cmd = nil
	for id, ch := range e.pending {
		close(ch)
		delete(e.pending, id)
	}
	e.mu.Unlock()
	e.logger.Info("external connector server exited")
}

// call sends one JSON-RPC request to the child and waits for the matching reply.
func (e *ExternalPlugin) call(ctx context.Context, cred *store.Credential, method string, params any) (json.RawMessage, error) {
	if err := e.ensureStarted(cred); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.cmd == nil {
		e.mu.Unlock()
		return nil, ErrServerStopped
	}
	e.nextID++
	id := e.nextID
	ch := make(chan *rpcReply, 1)
	e.pending[id] = ch
	err := e.stdin.Encode(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, fmt.Errorf("writing to external server: %w", err)
	}
	e.mu.Unlock()

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrServerStopped
		}
		if reply.Error != nil {
			return nil, fmt.Errorf("external server error %d: %s", reply.Error.Code, reply.Error.Message)
		}
		return reply.Result, nil
	case <-ctx.Done():
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
		return nil, ctx.Err()
	}
}
