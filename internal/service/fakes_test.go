package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/helix-collective/z88/internal/core"
)

// Persona markers found in the system prompts.
const (
	sysOracle       = "You are Oracle"
	sysLumina       = "You are Lumina"
	sysGemini       = "You are Gemini"
	sysAgni         = "You are Agni"
	sysClaude       = "You are Claude"
	sysKavach       = "You are Kavach"
	sysResearcher   = "You are Researcher"
	sysSynthesis    = "master cyberpunk storyteller"
	sysContext      = "Extract key narrative elements"
	sysContinuation = "next chapter in a story series"
	sysExpand       = "expand brief story ideas"
	sysAnalyze      = "Analyze the given story prompt"
)

type fakeCall struct {
	Provider core.Provider
	System   string
	User     string
	Opts     core.CallOptions
}

type fakeRule struct {
	match string
	reply string
	err   error
}

// scriptedLLM answers by matching the system prompt against its rules.
type scriptedLLM struct {
	mu    sync.Mutex
	rules []fakeRule
	calls []fakeCall
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{}
}

func (f *scriptedLLM) on(match, reply string) *scriptedLLM {
	f.rules = append(f.rules, fakeRule{match: match, reply: reply})
	return f
}

func (f *scriptedLLM) fail(match string, err error) *scriptedLLM {
	f.rules = append(f.rules, fakeRule{match: match, err: err})
	return f
}

func (f *scriptedLLM) Call(ctx context.Context, provider core.Provider, messages []core.Message, opts core.CallOptions) (*core.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	system, rest := core.SplitSystem(messages)
	var user string
	if len(rest) > 0 {
		user = rest[len(rest)-1].Content
	}

	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Provider: provider, System: system, User: user, Opts: opts})
	f.mu.Unlock()

	for _, r := range f.rules {
		if strings.Contains(system, r.match) {
			if r.err != nil {
				return nil, r.err
			}
			return &core.Completion{
				Content:  r.reply,
				Provider: provider,
				Model:    "model-" + string(provider),
				Usage:    core.Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10},
			}, nil
		}
	}
	return &core.Completion{
		Content:  "ok",
		Provider: provider,
		Model:    "model-" + string(provider),
		Usage:    core.Usage{TotalTokens: 10},
	}, nil
}

func (f *scriptedLLM) recorded() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func (f *scriptedLLM) callsMatching(match string) []fakeCall {
	var out []fakeCall
	for _, c := range f.recorded() {
		if strings.Contains(c.System, match) {
			out = append(out, c)
		}
	}
	return out
}

const sampleStory = "# Neon Requiem\n\nRain fell on the arcology as Kira jacked into the grid."

// ritualLLM scripts a full, successful ritual.
func ritualLLM() *scriptedLLM {
	return newScriptedLLM().
		on(sysOracle, "ACT I: a courier. ACT II: a betrayal. ACT III: a choice.").
		on(sysLumina, "Kira fears forgetting.").
		on(sysGemini, "Neo-Kyoto, layered in smog.").
		on(sysAgni, "The courier is the memory.").
		on(sysResearcher, "Memory implants are speculative.").
		on(sysSynthesis, sampleStory).
		on(sysClaude, "Overall score: 0.92").
		on(sysKavach, "APPROVED. No concerns.")
}

// memStore keeps stories in memory. Methods the service does not use are
// left to the embedded nil interface.
type memStore struct {
	core.StoryStore

	mu         sync.Mutex
	nextID     int64
	stories    map[int64]*core.Story
	trajectory map[string][]core.TrajectoryPoint
	outputs    map[string][]core.AgentOutput
}

func newMemStore() *memStore {
	return &memStore{
		stories:    make(map[int64]*core.Story),
		trajectory: make(map[string][]core.TrajectoryPoint),
		outputs:    make(map[string][]core.AgentOutput),
	}
}

func (m *memStore) SaveRitual(_ context.Context, s *core.Story, traj []core.TrajectoryPoint, outs []core.AgentOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.stories[s.ID] = &cp
	m.trajectory[s.RitualID] = traj
	m.outputs[s.RitualID] = outs
	return nil
}

func (m *memStore) GetStory(_ context.Context, id int64) (*core.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[id]
	if !ok {
		return nil, core.ErrStoryNotFound("x")
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) SeriesChapters(_ context.Context, seriesID string) ([]*core.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.Story
	for _, s := range m.stories {
		if s.SeriesID == seriesID && !s.Deleted() {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	return out, nil
}

func (m *memStore) SetSeries(_ context.Context, id int64, seriesID string, chapter int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stories[id]
	if !ok {
		return core.ErrStoryNotFound("x")
	}
	s.SeriesID = seriesID
	s.ChapterNumber = chapter
	return nil
}

func (m *memStore) put(s *core.Story) *core.Story {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	cp := *s
	m.stories[s.ID] = &cp
	return s
}
