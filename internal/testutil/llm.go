// Package testutil provides test doubles shared across z88 packages.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/helix-collective/z88/internal/core"
)

// SampleStory is what MockLLM's synthesizer writes.
const SampleStory = "# Neon Requiem\n\nRain fell on the arcology as Kira jacked into the grid."

// Persona markers: fragments of each system prompt.
const (
	PersonaOracle       = "You are Oracle"
	PersonaClaude       = "You are Claude"
	PersonaKavach       = "You are Kavach"
	PersonaSynthesis    = "master cyberpunk storyteller"
	PersonaContext      = "Extract key narrative elements"
	PersonaContinuation = "next chapter in a story series"
	PersonaExpand       = "expand brief story ideas"
	PersonaAnalyze      = "Analyze the given story prompt"
)

// MockCall records one completion request.
type MockCall struct {
	Provider  core.Provider
	System    string
	User      string
	Opts      core.CallOptions
	Timestamp time.Time
}

type mockReply struct {
	marker  string
	content string
	err     error
}

// MockLLM answers completions by matching the system prompt against
// persona markers. Unmatched calls get "ok".
type MockLLM struct {
	mu      sync.Mutex
	replies []mockReply
	calls   []MockCall
}

// NewMockLLM returns a mock scripted for a successful ritual, including
// the enhancement and continuation utilities.
func NewMockLLM() *MockLLM {
	return (&MockLLM{}).
		Reply(PersonaClaude, "Overall score: 0.92").
		Reply(PersonaKavach, "APPROVED. No concerns.").
		Reply(PersonaSynthesis, SampleStory).
		Reply(PersonaContext, `{"characters":["Kira"],"locations":["arcology"],"plotThreads":["the grid"],"tone":"noir"}`).
		Reply(PersonaContinuation, `{"prompt":"Kira follows the signal into the undercity.","suggestedTitle":"Undercity","keyElements":["signal"]}`).
		Reply(PersonaExpand, `{"enhanced":"A courier smuggles memories through a drowned megacity.","genre":"Cyberpunk","tone":"Noir","themes":["memory"]}`).
		Reply(PersonaAnalyze, `{"genre":"Cyberpunk","tone":"Dark","themes":["identity"]}`)
}

// Reply answers calls whose system prompt contains marker. Later rules
// take precedence.
func (m *MockLLM) Reply(marker, content string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append([]mockReply{{marker: marker, content: content}}, m.replies...)
	return m
}

// Fail makes calls matching marker return err.
func (m *MockLLM) Fail(marker string, err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append([]mockReply{{marker: marker, err: err}}, m.replies...)
	return m
}

// Call implements core.LLM.
func (m *MockLLM) Call(ctx context.Context, provider core.Provider, messages []core.Message, opts core.CallOptions) (*core.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	system, rest := core.SplitSystem(messages)
	var user string
	if len(rest) > 0 {
		user = rest[len(rest)-1].Content
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Provider: provider, System: system, User: user, Opts: opts, Timestamp: time.Now()})
	replies := m.replies
	m.mu.Unlock()

	content := "ok"
	for _, r := range replies {
		if !strings.Contains(system, r.marker) {
			continue
		}
		if r.err != nil {
			return nil, r.err
		}
		content = r.content
		break
	}
	return &core.Completion{
		Content:  content,
		Provider: provider,
		Model:    "model-" + string(provider),
		Usage:    core.Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10},
	}, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of calls seen.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// StaticProber reports fixed provider availability.
type StaticProber map[core.Provider]bool

// TestAll implements core.ProviderTester.
func (p StaticProber) TestAll(context.Context) map[core.Provider]bool { return p }
