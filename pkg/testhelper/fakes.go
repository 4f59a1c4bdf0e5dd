package testhelper

import (
	"context"
	"sync"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/llm"
)

// SentMessage records one FakeGateway delivery.
type SentMessage struct {
	Host   string
	Token  string
	Number string
	Text   string
}

// FakeGateway captures outbound messages and can be scripted to fail.
type FakeGateway struct {
	mu   sync.Mutex
	sent []SentMessage

	// Err, when set, is returned for every send.
	Err error
	// FailNumbers lists destinations whose sends fail with Err.
	FailNumbers map[string]bool
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{FailNumbers: map[string]bool{}}
}

func (g *FakeGateway) SendText(ctx context.Context, host, token, number, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil && (len(g.FailNumbers) == 0 || g.FailNumbers[number]) {
		return g.Err
	}
	g.sent = append(g.sent, SentMessage{Host: host, Token: token, Number: number, Text: text})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (g *FakeGateway) Sent() []SentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SentMessage, len(g.sent))
	copy(out, g.sent)
	return out
}

// FakeChatModel returns scripted completions in order, repeating the
// last one when the script runs out.
type FakeChatModel struct {
	mu      sync.Mutex
	Replies []*llm.Completion
	Err     error

	calls [][]llm.Message
	index int
}

func (m *FakeChatModel) Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Replies) == 0 {
		return &llm.Completion{}, nil
	}
	reply := m.Replies[m.index]
	if m.index < len(m.Replies)-1 {
		m.index++
	}
	return reply, nil
}

// Calls returns the message sets passed to Complete.
func (m *FakeChatModel) Calls() [][]llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
