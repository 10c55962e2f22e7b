// Package wallettest provides a scriptable wallet provider for exercising the
// connector and orchestrator against induced account lists, chain ids, and
// failures.
package wallettest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"payguard/apps/payguard/internal/wallet"
)

// Call records one provider request.
type Call struct {
	Method string
	Params []interface{}
}

// RequestFunc scripts the provider's response for one request. Returning a
// non-nil error propagates as-is; otherwise the value is JSON-marshalled into
// the raw response.
type RequestFunc func(ctx context.Context, method string, params []interface{}) (interface{}, error)

// Provider implements wallet.Provider with scripted responses and records
// every call and listener registration.
type Provider struct {
	mu        sync.Mutex
	fn        RequestFunc
	calls     []Call
	listeners map[string]func(json.RawMessage)
}

func New(fn RequestFunc) *Provider {
	return &Provider{
		fn:        fn,
		listeners: make(map[string]func(json.RawMessage)),
	}
}

// SetRequestFunc swaps the script mid-test.
func (p *Provider) SetRequestFunc(fn RequestFunc) {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
}

func (p *Provider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Method: method, Params: params})
	fn := p.fn
	p.mu.Unlock()

	if fn == nil {
		return nil, &wallet.ProviderError{
			Code:    wallet.CodeUnsupportedMethod,
			Message: "method not scripted: " + method,
		}
	}
	value, err := fn(ctx, method, params)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshalling scripted response for %s: %w", method, err)
	}
	return raw, nil
}

func (p *Provider) On(event string, handler func(payload json.RawMessage)) {
	p.mu.Lock()
	p.listeners[event] = handler
	p.mu.Unlock()
}

func (p *Provider) RemoveListener(event string) {
	p.mu.Lock()
	delete(p.listeners, event)
	p.mu.Unlock()
}

// Emit delivers a notification to the registered handler, if any.
func (p *Provider) Emit(event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("wallettest: marshalling %s payload: %v", event, err))
	}
	p.mu.Lock()
	handler := p.listeners[event]
	p.mu.Unlock()
	if handler != nil {
		handler(raw)
	}
}

// Calls returns how many requests were made for method; an empty method
// counts every request.
func (p *Provider) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if method == "" {
		return len(p.calls)
	}
	n := 0
	for _, c := range p.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// CallLog returns a copy of every recorded call in order.
func (p *Provider) CallLog() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}
