package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/events"
	"github.com/helix-collective/z88/internal/logging"
)

// StoryContext is the continuity summary of a chapter.
type StoryContext struct {
	Characters  []string `json:"characters"`
	Locations   []string `json:"locations"`
	PlotThreads []string `json:"plotThreads"`
	Tone        string   `json:"tone"`
}

// ContinuationPlan is the model's proposal for the next chapter.
type ContinuationPlan struct {
	Prompt         string   `json:"prompt"`
	SuggestedTitle string   `json:"suggestedTitle"`
	KeyElements    []string `json:"keyElements"`
}

// GenerateResult pairs a ritual result with the stored story.
type GenerateResult struct {
	Ritual *RitualResult `json:"ritual"`
	Story  *core.Story   `json:"story"`
}

// ContinueResult adds the plan that seeded the new chapter.
type ContinueResult struct {
	GenerateResult
	Plan ContinuationPlan `json:"plan"`
}

// Stories runs rituals for users and persists their results.
type Stories struct {
	ritual   *Ritual
	store    core.StoryStore
	llm      core.LLM
	provider core.Provider
	bus      *events.EventBus
	logger   *logging.Logger
	now      func() time.Time
}

// NewStories wires the story workflows. provider serves continuation
// planning and context extraction.
func NewStories(ritual *Ritual, store core.StoryStore, llm core.LLM, provider core.Provider, bus *events.EventBus, logger *logging.Logger) *Stories {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stories{
		ritual:   ritual,
		store:    store,
		llm:      llm,
		provider: provider,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate runs a ritual for owner and stores the story with its
// trajectory and transcripts. An owner is required.
func (s *Stories) Generate(ctx context.Context, owner, prompt string, opts RitualOptions) (*GenerateResult, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, core.ErrMissingIdentity()
	}
	opts.OwnerID = owner

	res, err := s.ritual.Run(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}

	story := storyFromResult(owner, res)
	if err := s.save(ctx, story, res); err != nil {
		return nil, err
	}
	return &GenerateResult{Ritual: res, Story: story}, nil
}

func storyFromResult(owner string, res *RitualResult) *core.Story {
	m := res.Metadata
	return &core.Story{
		OwnerID:            owner,
		Title:              res.Title,
		Prompt:             m.Prompt,
		Content:            res.StoryText,
		RitualID:           res.RitualID,
		Preset:             m.Preset,
		WordCount:          m.WordCount,
		QualityScore:       m.QualityScore,
		EthicalApproval:    m.EthicalApproval,
		UCF:                m.UCFSnapshot,
		AgentContributions: m.AgentContributions,
		Tags:               []string{},
		ChapterNumber:      1,
	}
}

func (s *Stories) save(ctx context.Context, story *core.Story, res *RitualResult) error {
	if err := s.store.SaveRitual(ctx, story, res.Trajectory, res.Outputs); err != nil {
		return fmt.Errorf("saving ritual %s: %w", res.RitualID, err)
	}
	s.logger.WithRitual(res.RitualID).Info("story saved", "story_id", story.ID, "owner", story.OwnerID)
	if s.bus != nil {
		s.bus.PublishTerminal(events.NewStorySavedEvent(res.RitualID, story.OwnerID, story.ID))
	}
	return nil
}

// ownedStory loads a live story belonging to owner. Stories of other
// owners are reported as not found.
func (s *Stories) ownedStory(ctx context.Context, owner string, id int64) (*core.Story, error) {
	story, err := s.store.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	if story.Deleted() || (owner != "" && story.OwnerID != owner) {
		return nil, core.ErrStoryNotFound(strconv.FormatInt(id, 10))
	}
	return story, nil
}

// ExtractContext asks the model for the characters, locations, open
// threads and tone of a story.
func (s *Stories) ExtractContext(ctx context.Context, content string) (*StoryContext, error) {
	system, user, err := s.ritual.Prompts().RenderContextExtract(ContextParams{Content: content})
	if err != nil {
		return nil, err
	}
	resp, err := s.llm.Call(ctx, s.provider, []core.Message{
		core.SystemMessage(system),
		core.UserMessage(user),
	}, core.CallOptions{Temperature: core.DefaultTemperature, MaxTokens: utilityMaxTokens})
	if err != nil {
		return nil, fmt.Errorf("extracting story context: %w", err)
	}
	var out StoryContext
	if err := decodeJSONReply(resp.Content, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PlanContinuation asks the model for the next chapter's prompt.
func (s *Stories) PlanContinuation(ctx context.Context, p ContinuationParams) (*ContinuationPlan, error) {
	system, user, err := s.ritual.Prompts().RenderContinuation(p)
	if err != nil {
		return nil, err
	}
	resp, err := s.llm.Call(ctx, s.provider, []core.Message{
		core.SystemMessage(system),
		core.UserMessage(user),
	}, core.CallOptions{Temperature: core.DefaultTemperature, MaxTokens: utilityMaxTokens})
	if err != nil {
		return nil, fmt.Errorf("planning continuation: %w", err)
	}
	var plan ContinuationPlan
	if err := decodeJSONReply(resp.Content, &plan); err != nil {
		return nil, err
	}
	if strings.TrimSpace(plan.Prompt) == "" {
		return nil, core.ErrExecution(core.CodeParseFailed, "continuation plan has no prompt")
	}
	return &plan, nil
}

// Continue writes the next chapter of the series that story id belongs
// to, starting a series when it has none. Context extraction failures are
// logged and the plan is made without it.
func (s *Stories) Continue(ctx context.Context, owner string, id int64, direction string) (*ContinueResult, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, core.ErrMissingIdentity()
	}
	prev, err := s.ownedStory(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	log := s.logger.With("story_id", prev.ID)

	seriesID := prev.SeriesID
	chapter := prev.ChapterNumber
	seriesTitle := prev.Title
	if seriesID == "" {
		seriesID = NewSeriesID(s.now())
		chapter = 1
		if err := s.store.SetSeries(ctx, prev.ID, seriesID, chapter); err != nil {
			return nil, fmt.Errorf("starting series: %w", err)
		}
		log.Info("series started", "series_id", seriesID)
	} else {
		chapters, err := s.store.SeriesChapters(ctx, seriesID)
		if err != nil {
			return nil, err
		}
		if len(chapters) > 0 {
			seriesTitle = chapters[0].Title
			for _, c := range chapters {
				if c.ChapterNumber > chapter {
					chapter = c.ChapterNumber
				}
			}
		}
	}

	storyCtx, err := s.ExtractContext(ctx, prev.Content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Warn("context extraction failed", "error", err)
		storyCtx = nil
	}

	plan, err := s.PlanContinuation(ctx, ContinuationParams{
		SeriesTitle:   seriesTitle,
		Title:         prev.Title,
		Content:       prev.Content,
		ChapterNumber: chapter,
		Direction:     strings.TrimSpace(direction),
		Context:       storyCtx,
	})
	if err != nil {
		return nil, err
	}

	preset := prev.Preset
	if preset == CustomPreset {
		preset = ""
	}
	res, err := s.ritual.Run(ctx, excerpt(core.MaxPromptLength, plan.Prompt), RitualOptions{
		Preset:  preset,
		OwnerID: owner,
	})
	if err != nil {
		return nil, err
	}

	story := storyFromResult(owner, res)
	story.SeriesID = seriesID
	story.ChapterNumber = chapter + 1
	if story.Title == UntitledStory && plan.SuggestedTitle != "" {
		story.Title = plan.SuggestedTitle
	}
	if err := s.save(ctx, story, res); err != nil {
		return nil, err
	}
	log.Info("chapter written", "series_id", seriesID, "chapter", story.ChapterNumber)

	return &ContinueResult{
		GenerateResult: GenerateResult{Ritual: res, Story: story},
		Plan:           *plan,
	}, nil
}
