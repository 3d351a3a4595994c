package service

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helix-collective/z88/internal/core"
)

func TestParseQualityScore(t *testing.T) {
	tests := []struct {
		reply string
		want  float64
	}{
		{"0.87", 0.87},
		{"Overall: 0.92 out of 1", 0.92},
		{"1.0", 1.0},
		{"I would rate this 0.5, maybe 0.7", 0.5},
		{"excellent", core.DefaultQualityScore},
		{"", core.DefaultQualityScore},
		{"score 7/10", core.DefaultQualityScore},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseQualityScore(tt.reply), 1e-9)
		})
	}
}

func TestParseEthicalApproval(t *testing.T) {
	assert.True(t, ParseEthicalApproval("APPROVED - thoughtful themes"))
	assert.True(t, ParseEthicalApproval("approved"))
	assert.False(t, ParseEthicalApproval("REJECTED: gratuitous harm"))
	assert.False(t, ParseEthicalApproval("Not APPROVED, REJECTED"))
	assert.False(t, ParseEthicalApproval("looks fine"))
	assert.False(t, ParseEthicalApproval("NOT APPROVED: the story glorifies harm."))
	assert.False(t, ParseEthicalApproval("DISAPPROVED"))
	assert.False(t, ParseEthicalApproval("Unapproved content"))
	assert.False(t, ParseEthicalApproval("not-approved"))
	assert.True(t, ParseEthicalApproval("APPROVED. Nothing here is unapproachable."))
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name  string
		story string
		want  string
	}{
		{"heading", "Intro line\n# Neon Requiem\nBody", "Neon Requiem"},
		{"bold first line", "\n\n**\"Glass Saints\"**\n\nBody", "Glass Saints"},
		{"h2 first line", "## Chrome Hearts\ntext", "Chrome Hearts"},
		{"empty", "  \n\n ", UntitledStory},
		{"long", strings.Repeat("a", 200), strings.Repeat("a", 120)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTitle(tt.story))
		})
	}
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 4, WordCount("  rain on\nneon\tglass "))
}

func TestIDs(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	ritual := NewRitualID(now)
	assert.Regexp(t, regexp.MustCompile(`^ritual_1700000000123_[0-9a-z]{9}$`), ritual)
	assert.NotEqual(t, ritual, NewRitualID(now))

	series := NewSeriesID(now)
	assert.Regexp(t, regexp.MustCompile(`^series_1700000000123_[0-9a-z]{7}$`), series)
}

func TestDecodeJSONReply(t *testing.T) {
	type reply struct {
		Prompt string `json:"prompt"`
	}
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"prompt":"a"}`, "a"},
		{"fenced", "```json\n{\"prompt\":\"b\"}\n```", "b"},
		{"prose", "Sure! Here it is: {\"prompt\":\"c\"} Enjoy.", "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r reply
			require.NoError(t, decodeJSONReply(tt.input, &r))
			assert.Equal(t, tt.want, r.Prompt)
		})
	}

	var r reply
	err := decodeJSONReply("no json here", &r)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatExecution))
}
