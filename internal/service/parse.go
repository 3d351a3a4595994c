package service

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/helix-collective/z88/internal/core"
)

var (
	scorePattern   = regexp.MustCompile(`0\.\d+|1\.0`)
	headingPattern = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	fencePattern   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	negatedPattern = regexp.MustCompile(`\b(?:NOT|DIS|UN)[\s-]*APPROVED\b`)
)

// UntitledStory is the title used when a story has no usable first line.
const UntitledStory = "Untitled Story"

const maxTitleLength = 120

// ParseQualityScore extracts the first score from an assessor reply.
// A reply without a score yields DefaultQualityScore.
func ParseQualityScore(reply string) float64 {
	m := scorePattern.FindString(reply)
	if m == "" {
		return core.DefaultQualityScore
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return core.DefaultQualityScore
	}
	return core.Clamp(v, 0, 1)
}

// ParseEthicalApproval reports whether a review approves the story.
// Any mention of REJECTED or a negated APPROVED is a rejection.
func ParseEthicalApproval(reply string) bool {
	up := strings.ToUpper(reply)
	if strings.Contains(up, "REJECTED") || negatedPattern.MatchString(up) {
		return false
	}
	return strings.Contains(up, "APPROVED")
}

// ExtractTitle returns the first markdown H1, else the first non-empty
// line with quotes and markup stripped, else UntitledStory.
func ExtractTitle(story string) string {
	if m := headingPattern.FindStringSubmatch(story); m != nil {
		if t := cleanTitle(m[1]); t != "" {
			return t
		}
	}
	for _, line := range strings.Split(story, "\n") {
		if t := cleanTitle(line); t != "" {
			return t
		}
	}
	return UntitledStory
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "#* ")
	s = strings.TrimRight(s, "* ")
	s = strings.Trim(s, "\"'“”")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxTitleLength {
		s = strings.TrimSpace(string([]rune(s)[:maxTitleLength]))
	}
	return s
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomBase36(n int) string {
	var b strings.Builder
	b.Grow(n)
	radix := big.NewInt(int64(len(base36)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, radix)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("reading random bytes: %v", err))
		}
		b.WriteByte(base36[idx.Int64()])
	}
	return b.String()
}

// NewRitualID returns ritual_<unix ms>_<9 base36 chars>.
func NewRitualID(now time.Time) string {
	return fmt.Sprintf("ritual_%d_%s", now.UnixMilli(), randomBase36(9))
}

// NewSeriesID returns series_<unix ms>_<7 base36 chars>.
func NewSeriesID(now time.Time) string {
	return fmt.Sprintf("series_%d_%s", now.UnixMilli(), randomBase36(7))
}

// decodeJSONReply decodes an LLM reply that should be a JSON object,
// accepting code fences and surrounding prose.
func decodeJSONReply(reply string, v any) error {
	s := strings.TrimSpace(reply)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return core.ErrExecution(core.CodeParseFailed, "model reply is not valid JSON").WithCause(err)
	}
	return nil
}
