package core

import (
	"context"
	"time"
)

// AgentContribution summarizes one agent's part in a ritual.
type AgentContribution struct {
	Provider Provider `json:"provider"`
	Role     string   `json:"role"`
	Tokens   int      `json:"tokens"`
	Model    string   `json:"model,omitempty"`
}

// AgentOutput is the transcript of one LLM call in a ritual.
type AgentOutput struct {
	AgentKey  string    `json:"agent_key"`
	Name      string    `json:"agent_name"`
	Symbol    string    `json:"agent_symbol"`
	Role      string    `json:"role"`
	Provider  Provider  `json:"provider"`
	Model     string    `json:"model"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	UCF       UCFState  `json:"ucf_state"`
	Timestamp time.Time `json:"timestamp"`
}

// StoryMetadata is assembled at the end of a ritual.
type StoryMetadata struct {
	RitualID           string                       `json:"ritual_id"`
	Title              string                       `json:"title"`
	Prompt             string                       `json:"prompt"`
	Genre              string                       `json:"genre"`
	Preset             string                       `json:"preset,omitempty"`
	WordCount          int                          `json:"word_count"`
	QualityScore       float64                      `json:"quality_score"`
	EthicalApproval    bool                         `json:"ethical_approval"`
	AgentContributions map[string]AgentContribution `json:"agent_contributions"`
	UCFSnapshot        UCFState                     `json:"ucf_snapshot"`
	Timestamp          time.Time                    `json:"timestamp"`
}

// Story is a persisted ritual result.
type Story struct {
	ID                 int64                        `json:"id"`
	OwnerID            string                       `json:"owner_id"`
	Title              string                       `json:"title"`
	Prompt             string                       `json:"prompt"`
	Content            string                       `json:"content,omitempty"`
	RitualID           string                       `json:"ritual_id"`
	Preset             string                       `json:"preset,omitempty"`
	WordCount          int                          `json:"word_count"`
	QualityScore       float64                      `json:"quality_score"`
	EthicalApproval    bool                         `json:"ethical_approval"`
	UCF                UCFState                     `json:"ucf"`
	AgentContributions map[string]AgentContribution `json:"agent_contributions,omitempty"`
	Tags               []string                     `json:"tags"`
	IsFavorite         bool                         `json:"is_favorite"`
	CollectionID       *int64                       `json:"collection_id,omitempty"`
	SeriesID           string                       `json:"series_id,omitempty"`
	ChapterNumber      int                          `json:"chapter_number"`
	CreatedAt          time.Time                    `json:"created_at"`
	UpdatedAt          time.Time                    `json:"updated_at"`
	DeletedAt          *time.Time                   `json:"deleted_at,omitempty"`
}

// Deleted reports whether the story is in the trash.
func (s *Story) Deleted() bool {
	return s.DeletedAt != nil
}

// AgentLog is a persisted AgentOutput.
type AgentLog struct {
	ID          int64     `json:"id"`
	RitualID    string    `json:"ritual_id"`
	AgentName   string    `json:"agent_name"`
	AgentSymbol string    `json:"agent_symbol"`
	Role        string    `json:"role"`
	Provider    Provider  `json:"provider"`
	Model       string    `json:"model"`
	Tokens      int       `json:"tokens"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// Collection groups a user's stories.
type Collection struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StoryFilter narrows story listings.
type StoryFilter struct {
	Since         *time.Time
	FavoritesOnly bool
	Limit         int
}

// StoryStore persists stories and their ritual artifacts.
type StoryStore interface {
	// SaveRitual stores a story together with its trajectory and transcripts.
	SaveRitual(ctx context.Context, story *Story, trajectory []TrajectoryPoint, outputs []AgentOutput) error

	GetStory(ctx context.Context, id int64) (*Story, error)
	GetStoryByRitualID(ctx context.Context, ritualID string) (*Story, error)
	ListStories(ctx context.Context, ownerID string, filter StoryFilter) ([]*Story, error)
	SearchStories(ctx context.Context, ownerID, query string) ([]*Story, error)
	SeriesChapters(ctx context.Context, seriesID string) ([]*Story, error)
	SetSeries(ctx context.Context, id int64, seriesID string, chapter int) error

	Trajectory(ctx context.Context, ritualID string) ([]TrajectoryPoint, error)
	AgentLogs(ctx context.Context, ritualID string) ([]AgentLog, error)

	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
	Purge(ctx context.Context, id int64) error
	ListDeleted(ctx context.Context, ownerID string) ([]*Story, error)

	SetFavorite(ctx context.Context, id int64, favorite bool) error
	UpdateTags(ctx context.Context, id int64, tags []string) ([]string, error)
	StoriesByTag(ctx context.Context, ownerID, tag string) ([]*Story, error)
	AllTags(ctx context.Context, ownerID string) ([]string, error)

	CreateCollection(ctx context.Context, c *Collection) error
	GetCollection(ctx context.Context, id int64) (*Collection, error)
	ListCollections(ctx context.Context, ownerID string) ([]*Collection, error)
	UpdateCollection(ctx context.Context, c *Collection) error
	DeleteCollection(ctx context.Context, id int64) error
	MoveToCollection(ctx context.Context, storyID int64, collectionID *int64) error
	StoriesInCollection(ctx context.Context, collectionID int64) ([]*Story, error)

	Close() error
}
