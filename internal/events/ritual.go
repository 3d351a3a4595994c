package events

import "github.com/helix-collective/z88/internal/core"

// Ritual event types.
const (
	TypeRitualStarted   = "ritual_started"
	TypeRitualProgress  = "ritual_progress"
	TypeAgentCompleted  = "agent_completed"
	TypeRitualCompleted = "ritual_completed"
	TypeRitualFailed    = "ritual_failed"
	TypeStorySaved      = "story_saved"
)

// RitualStartedEvent is emitted once the agent setup is resolved.
type RitualStartedEvent struct {
	BaseEvent
	Prompt string   `json:"prompt"`
	Preset string   `json:"preset,omitempty"`
	Agents []string `json:"agents"`
}

// NewRitualStartedEvent creates a ritual started event.
func NewRitualStartedEvent(ritualID, ownerID, prompt, preset string, agents []string) RitualStartedEvent {
	return RitualStartedEvent{
		BaseEvent: NewBaseEvent(TypeRitualStarted, ritualID, ownerID),
		Prompt:    prompt,
		Preset:    preset,
		Agents:    agents,
	}
}

// RitualProgressEvent reports a pipeline phase and its percentage.
type RitualProgressEvent struct {
	BaseEvent
	Message string         `json:"message"`
	Percent int            `json:"percent"`
	UCF     *core.UCFState `json:"ucf,omitempty"`
}

// NewRitualProgressEvent creates a progress event.
func NewRitualProgressEvent(ritualID, ownerID, message string, percent int, ucf *core.UCFState) RitualProgressEvent {
	return RitualProgressEvent{
		BaseEvent: NewBaseEvent(TypeRitualProgress, ritualID, ownerID),
		Message:   message,
		Percent:   percent,
		UCF:       ucf,
	}
}

// AgentCompletedEvent is emitted after each agent call returns.
type AgentCompletedEvent struct {
	BaseEvent
	AgentKey string        `json:"agent_key"`
	Name     string        `json:"name"`
	Provider core.Provider `json:"provider"`
	Model    string        `json:"model"`
	Tokens   int           `json:"tokens"`
}

// NewAgentCompletedEvent creates an agent completed event.
func NewAgentCompletedEvent(ritualID, ownerID string, out core.AgentOutput) AgentCompletedEvent {
	return AgentCompletedEvent{
		BaseEvent: NewBaseEvent(TypeAgentCompleted, ritualID, ownerID),
		AgentKey:  out.AgentKey,
		Name:      out.Name,
		Provider:  out.Provider,
		Model:     out.Model,
		Tokens:    out.Tokens,
	}
}

// RitualCompletedEvent carries the outcome of a successful ritual.
type RitualCompletedEvent struct {
	BaseEvent
	Title           string  `json:"title"`
	WordCount       int     `json:"word_count"`
	QualityScore    float64 `json:"quality_score"`
	EthicalApproval bool    `json:"ethical_approval"`
}

// NewRitualCompletedEvent creates a ritual completed event.
func NewRitualCompletedEvent(ritualID, ownerID string, meta core.StoryMetadata) RitualCompletedEvent {
	return RitualCompletedEvent{
		BaseEvent:       NewBaseEvent(TypeRitualCompleted, ritualID, ownerID),
		Title:           meta.Title,
		WordCount:       meta.WordCount,
		QualityScore:    meta.QualityScore,
		EthicalApproval: meta.EthicalApproval,
	}
}

// RitualFailedEvent reports the error that aborted a ritual.
type RitualFailedEvent struct {
	BaseEvent
	Error string `json:"error"`
}

// NewRitualFailedEvent creates a ritual failed event.
func NewRitualFailedEvent(ritualID, ownerID string, err error) RitualFailedEvent {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return RitualFailedEvent{
		BaseEvent: NewBaseEvent(TypeRitualFailed, ritualID, ownerID),
		Error:     msg,
	}
}

// StorySavedEvent is emitted after a generated story is persisted.
type StorySavedEvent struct {
	BaseEvent
	StoryID int64 `json:"story_id"`
}

// NewStorySavedEvent creates a story saved event.
func NewStorySavedEvent(ritualID, ownerID string, storyID int64) StorySavedEvent {
	return StorySavedEvent{
		BaseEvent: NewBaseEvent(TypeStorySaved, ritualID, ownerID),
		StoryID:   storyID,
	}
}
