package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soms-platform/soms-core/internal/bus"
)

const mcpCallTimeout = 10 * time.Second

// rpcRequest is the JSON-RPC 2.0 envelope published to a device's MCP
// agent to invoke one of its tools.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  rpcCallParams `json:"params"`
	ID      string        `json:"id"`
}

type rpcCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// rpcResponse is the JSON-RPC 2.0 envelope a device's MCP agent
// publishes back.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      string          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("mcp: %s (code %d)", e.Message, e.Code) }

// MCPBridge turns Brain's send_device_command tool calls into JSON-RPC
// 2.0 requests published over the bus, and resolves the matching
// response by request id. The bus's own delivery goroutine must never
// resolve a pending call directly — it only hands the raw message to
// inbox; a single dedicated goroutine started by Start is the sole
// consumer that looks up and resolves pending calls.
type MCPBridge struct {
	bus bus.Bus
	log zerolog.Logger

	inbox chan bus.Message
	done  chan struct{}

	mu      sync.Mutex
	pending map[string]chan rpcResponse
}

// NewMCPBridge creates a bridge over b.
func NewMCPBridge(b bus.Bus, log zerolog.Logger) *MCPBridge {
	return &MCPBridge{
		bus:     b,
		log:     log.With().Str("component", "mcp-bridge").Logger(),
		inbox:   make(chan bus.Message, 256),
		done:    make(chan struct{}),
		pending: make(map[string]chan rpcResponse),
	}
}

// Start subscribes to every device's response topic and launches the
// single consumer goroutine that resolves pending calls.
func (b *MCPBridge) Start() error {
	_, err := b.bus.Subscribe("mcp/+/response/#", func(msg bus.Message) {
		select {
		case b.inbox <- msg:
		default:
			b.log.Warn().Str("topic", msg.Topic).Msg("mcp bridge inbox full, dropping response")
		}
	})
	if err != nil {
		return fmt.Errorf("mcp: subscribe responses: %w", err)
	}
	go b.consume()
	return nil
}

// Stop halts the consumer goroutine. In-flight CallTool calls will time
// out on their own.
func (b *MCPBridge) Stop() { close(b.done) }

func (b *MCPBridge) consume() {
	for {
		select {
		case <-b.done:
			return
		case msg := <-b.inbox:
			var resp rpcResponse
			if err := json.Unmarshal(msg.Payload, &resp); err != nil {
				b.log.Warn().Err(err).Str("topic", msg.Topic).Msg("mcp: malformed response")
				continue
			}
			b.mu.Lock()
			ch, ok := b.pending[resp.ID]
			if ok {
				delete(b.pending, resp.ID)
			}
			b.mu.Unlock()
			if ok {
				ch <- resp
			}
		}
	}
}

// CallTool invokes agentID's toolName with arguments over the bus and
// waits up to mcpCallTimeout for the matching response.
func (b *MCPBridge) CallTool(ctx context.Context, agentID, toolName string, arguments map[string]interface{}) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan rpcResponse, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "call_tool",
		Params:  rpcCallParams{Name: toolName, Arguments: arguments},
		ID:      id,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("mcp: marshal request: %w", err)
	}

	topic := fmt.Sprintf("mcp/%s/request/call_tool", agentID)
	if err := b.bus.Publish(topic, payload); err != nil {
		cleanup()
		return nil, fmt.Errorf("mcp: publish request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timeoutCtx.Done():
		cleanup()
		return nil, fmt.Errorf("mcp: call to %s/%s timed out after %s", agentID, toolName, mcpCallTimeout)
	}
}
