package brain

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/soms-platform/soms-core/internal/bus"
)

// fakeBus is an in-process Bus with just enough MQTT-style wildcard
// matching (`+` one segment, `#` remainder) to exercise the bridge's
// request/response topic split.
type fakeBus struct {
	mu   sync.Mutex
	subs []fakeSubEntry
	// onPublish, when set, observes each publish after handler delivery.
	onPublish func(topic string, payload []byte)
}

type fakeSubEntry struct {
	pattern string
	handler bus.Handler
}

type fakeSub struct{}

func (fakeSub) Unsubscribe() error { return nil }

func matchTopic(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for i, seg := range pp {
		if seg == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if seg != "+" && seg != tp[i] {
			return false
		}
	}
	return len(pp) == len(tp)
}

func (f *fakeBus) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	subs := append([]fakeSubEntry(nil), f.subs...)
	onPublish := f.onPublish
	f.mu.Unlock()

	for _, s := range subs {
		if matchTopic(s.pattern, topic) {
			s.handler(bus.Message{Topic: topic, Payload: payload})
		}
	}
	if onPublish != nil {
		onPublish(topic, payload)
	}
	return nil
}

func (f *fakeBus) Subscribe(pattern string, h bus.Handler) (bus.Subscription, error) {
	f.mu.Lock()
	f.subs = append(f.subs, fakeSubEntry{pattern: pattern, handler: h})
	f.mu.Unlock()
	return fakeSub{}, nil
}

func (f *fakeBus) Close() {}

func TestMCPBridgeResolvesMatchingResponse(t *testing.T) {
	fb := &fakeBus{}
	bridge := NewMCPBridge(fb, zerolog.Nop())
	if err := bridge.Start(); err != nil {
		t.Fatalf("start bridge: %v", err)
	}
	defer bridge.Stop()

	// Echo every request back as a successful response, the way a device
	// agent would, from the publish path (a separate goroutine from the
	// caller, like a real bus delivery).
	fb.mu.Lock()
	fb.onPublish = func(topic string, payload []byte) {
		if !strings.HasPrefix(topic, "mcp/") || !strings.Contains(topic, "/request/") {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			t.Errorf("malformed request published: %v", err)
			return
		}
		resp, _ := json.Marshal(rpcResponse{
			JSONRPC: "2.0",
			Result:  json.RawMessage(`{"ok":true}`),
			ID:      req.ID,
		})
		go fb.Publish("mcp/hvac_main/response/"+req.ID, resp)
	}
	fb.mu.Unlock()

	result, err := bridge.CallTool(context.Background(), "hvac_main", "set_temperature", map[string]interface{}{"temperature": 21.0})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestMCPBridgeSurfacesDeviceError(t *testing.T) {
	fb := &fakeBus{}
	bridge := NewMCPBridge(fb, zerolog.Nop())
	if err := bridge.Start(); err != nil {
		t.Fatalf("start bridge: %v", err)
	}
	defer bridge.Stop()

	fb.mu.Lock()
	fb.onPublish = func(topic string, payload []byte) {
		if !strings.Contains(topic, "/request/") {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
		resp, _ := json.Marshal(rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32601, Message: "no such tool"},
			ID:      req.ID,
		})
		go fb.Publish("mcp/hvac_main/response/"+req.ID, resp)
	}
	fb.mu.Unlock()

	_, err := bridge.CallTool(context.Background(), "hvac_main", "does_not_exist", nil)
	if err == nil {
		t.Fatal("expected device error to surface")
	}
	if !strings.Contains(err.Error(), "no such tool") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMCPBridgeIgnoresUnknownResponseID(t *testing.T) {
	fb := &fakeBus{}
	bridge := NewMCPBridge(fb, zerolog.Nop())
	if err := bridge.Start(); err != nil {
		t.Fatalf("start bridge: %v", err)
	}
	defer bridge.Stop()

	// A stray response with no pending request must not panic or wedge
	// the consumer.
	resp, _ := json.Marshal(rpcResponse{JSONRPC: "2.0", Result: json.RawMessage(`{}`), ID: "never-requested"})
	if err := fb.Publish("mcp/hvac_main/response/never-requested", resp); err != nil {
		t.Fatalf("publish stray response: %v", err)
	}
}
