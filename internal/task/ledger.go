package task

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	boarderrors "github.com/randalmurphal/taskboard/internal/errors"
)

// Author identifies who wrote a work note.
type Author string

const (
	AuthorAgent  Author = "agent"
	AuthorSystem Author = "system"
	AuthorHuman  Author = "human"
)

// ParseAuthor maps free-form author strings onto the known authors.
// Anything unrecognized is attributed to the system.
func ParseAuthor(s string) Author {
	switch Author(strings.ToLower(strings.TrimSpace(s))) {
	case AuthorAgent:
		return AuthorAgent
	case AuthorHuman, "user":
		return AuthorHuman
	default:
		return AuthorSystem
	}
}

// WorkNote is one immutable entry of a task's activity ledger.
type WorkNote struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizeNote backfills the id and timestamp, trims the content, and
// defaults the author to system.
func NormalizeNote(n WorkNote, now time.Time) WorkNote {
	n.Content = strings.TrimSpace(n.Content)
	if n.ID == "" {
		n.ID = NewID()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = now
	}
	n.Timestamp = n.Timestamp.UTC()
	n.Author = ParseAuthor(string(n.Author))
	return n
}

// PrepareAppend normalizes a note that is about to be written to a ledger.
// Notes without content are rejected rather than stored.
func PrepareAppend(n WorkNote, now time.Time) (WorkNote, error) {
	n = NormalizeNote(n, now)
	if n.Content == "" {
		return WorkNote{}, boarderrors.ErrValidation("work note", "note content must not be empty")
	}
	return n, nil
}

// Append normalizes the note, appends it to the task's in-memory ledger, and
// returns the normalized note.
func Append(t *Task, n WorkNote, now time.Time) (WorkNote, error) {
	n, err := PrepareAppend(n, now)
	if err != nil {
		return WorkNote{}, err
	}
	t.WorkNotes = append(t.WorkNotes, n)
	return n, nil
}

// Merge concatenates incoming notes onto existing ones and re-normalizes the
// result. Incoming notes whose id is already present are dropped so that a
// resubmitted batch does not duplicate history; empty notes are dropped.
func Merge(existing, incoming []WorkNote, now time.Time) []WorkNote {
	out := make([]WorkNote, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, group := range [][]WorkNote{existing, incoming} {
		for _, n := range group {
			n = NormalizeNote(n, now)
			if n.Content == "" || seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	return out
}

// Normalize converts raw ledger input into well-formed notes. It accepts a
// JSON array of notes or strings, a single JSON object or string, JSON null,
// and legacy plain text (one note). Malformed JSON and unusable elements
// degrade to an empty result; Normalize never fails.
func Normalize(raw string, now time.Time) []WorkNote {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []WorkNote{}
	}
	if !gjson.Valid(trimmed) {
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, `"`) {
			return []WorkNote{}
		}
		return []WorkNote{NormalizeNote(WorkNote{Content: trimmed}, now)}
	}

	result := gjson.Parse(trimmed)
	notes := []WorkNote{}
	if result.IsArray() {
		for _, elem := range result.Array() {
			if n, ok := noteFromResult(elem, now); ok {
				notes = append(notes, n)
			}
		}
		return notes
	}
	if n, ok := noteFromResult(result, now); ok {
		notes = append(notes, n)
	}
	return notes
}

// NormalizeBatch reports whether raw could be read without dropping anything.
// Callers that persist the result use it to log data-quality problems.
func NormalizeBatch(raw string, now time.Time) (notes []WorkNote, clean bool) {
	notes = Normalize(raw, now)
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "" || trimmed == "null":
		return notes, true
	case !gjson.Valid(trimmed):
		return notes, len(notes) == 1
	}
	result := gjson.Parse(trimmed)
	if result.IsArray() {
		return notes, len(notes) == len(result.Array())
	}
	return notes, len(notes) == 1
}

var (
	contentKeys   = []string{"content", "text", "note", "body", "message"}
	timestampKeys = []string{"timestamp", "created_at", "createdAt", "time"}
)

func noteFromResult(r gjson.Result, now time.Time) (WorkNote, bool) {
	switch r.Type {
	case gjson.String:
		n := NormalizeNote(WorkNote{Content: r.String()}, now)
		return n, n.Content != ""
	case gjson.JSON:
		if !r.IsObject() {
			return WorkNote{}, false
		}
	default:
		return WorkNote{}, false
	}

	n := WorkNote{
		ID:     firstString(r, "id"),
		Author: Author(firstString(r, "author")),
	}
	for _, key := range contentKeys {
		if v := r.Get(key); v.Exists() && v.Type == gjson.String {
			n.Content = v.String()
			break
		}
	}
	for _, key := range timestampKeys {
		if ts, ok := parseTimestamp(r.Get(key)); ok {
			n.Timestamp = ts
			break
		}
	}
	n = NormalizeNote(n, now)
	return n, n.Content != ""
}

func firstString(r gjson.Result, key string) string {
	v := r.Get(key)
	switch v.Type {
	case gjson.String:
		return v.String()
	case gjson.Number:
		return strconv.FormatInt(v.Int(), 10)
	default:
		return ""
	}
}

func parseTimestamp(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, v.String()); err == nil {
				return ts, true
			}
		}
	case gjson.Number:
		secs := v.Int()
		if secs > 1e12 {
			return time.UnixMilli(secs), true
		}
		if secs > 0 {
			return time.Unix(secs, 0), true
		}
	}
	return time.Time{}, false
}
