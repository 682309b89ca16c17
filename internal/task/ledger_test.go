package task

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAppendBackfillsFields(t *testing.T) {
	tk := &Task{Number: 1}

	n, err := Append(tk, WorkNote{Content: "  investigated the crash  "}, fixedNow)
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "investigated the crash", n.Content)
	assert.Equal(t, AuthorSystem, n.Author)
	assert.Equal(t, fixedNow, n.Timestamp)
	require.Len(t, tk.WorkNotes, 1)
	assert.Equal(t, n, tk.WorkNotes[0])
}

func TestAppendKeepsSuppliedFields(t *testing.T) {
	tk := &Task{Number: 1}
	ts := fixedNow.Add(-time.Hour)

	n, err := Append(tk, WorkNote{ID: "n-1", Content: "done", Author: AuthorAgent, Timestamp: ts}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "n-1", n.ID)
	assert.Equal(t, AuthorAgent, n.Author)
	assert.Equal(t, ts, n.Timestamp)
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	tk := &Task{Number: 1}
	_, err := Append(tk, WorkNote{Content: "   "}, fixedNow)
	require.Error(t, err)
	assert.Empty(t, tk.WorkNotes)
}

func TestNormalizeVariants(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		contents []string
	}{
		{"empty", "", nil},
		{"null", "null", nil},
		{"plain legacy text", "fixed the build", []string{"fixed the build"}},
		{"json string", `"fixed the build"`, []string{"fixed the build"}},
		{"single object", `{"content":"one"}`, []string{"one"}},
		{"array of mixed", `["a", {"text":"b"}, null, 42, {"author":"agent"}, {"note":"c"}]`, []string{"a", "b", "c"}},
		{"malformed array", `[{"content": "a"`, nil},
		{"malformed object", `{content: a}`, nil},
		{"number", `17`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notes := Normalize(tt.raw, fixedNow)
			require.NotNil(t, notes)
			var got []string
			for _, n := range notes {
				got = append(got, n.Content)
				assert.NotEmpty(t, n.ID)
				assert.False(t, n.Timestamp.IsZero())
			}
			assert.Equal(t, tt.contents, got)
		})
	}
}

func TestNormalizeReadsLegacyFields(t *testing.T) {
	raw := `[{"id": 7, "text": "legacy", "author": "user", "created_at": "2025-12-01T10:00:00Z"},
	         {"content": "epoch", "author": "robot", "timestamp": 1767225600}]`

	notes := Normalize(raw, fixedNow)
	require.Len(t, notes, 2)

	assert.Equal(t, "7", notes[0].ID)
	assert.Equal(t, AuthorHuman, notes[0].Author)
	assert.Equal(t, time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC), notes[0].Timestamp)

	assert.Equal(t, AuthorSystem, notes[1].Author, "unknown authors default to system")
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), notes[1].Timestamp)
}

func TestNormalizeBatchReportsDrops(t *testing.T) {
	_, clean := NormalizeBatch(`[{"content":"a"},{"content":"b"}]`, fixedNow)
	assert.True(t, clean)

	_, clean = NormalizeBatch(`[{"content":"a"}, 12]`, fixedNow)
	assert.False(t, clean)

	_, clean = NormalizeBatch(`[{"content"`, fixedNow)
	assert.False(t, clean)

	_, clean = NormalizeBatch(`null`, fixedNow)
	assert.True(t, clean)
}

func TestMergeDropsDuplicateIDs(t *testing.T) {
	existing := []WorkNote{{ID: "a", Content: "first", Author: AuthorAgent, Timestamp: fixedNow}}
	incoming := []WorkNote{
		{ID: "a", Content: "first again"},
		{Content: "second"},
		{Content: "  "},
	}

	merged := Merge(existing, incoming, fixedNow)

	want := []WorkNote{
		{ID: "a", Content: "first", Author: AuthorAgent, Timestamp: fixedNow},
		{Content: "second", Author: AuthorSystem, Timestamp: fixedNow},
	}
	if diff := cmp.Diff(want, merged, cmpopts.IgnoreFields(WorkNote{}, "ID")); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "a", merged[0].ID)
}

func TestNormalizeNeverPanicsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.OneOf(
			rapid.String(),
			rapid.StringMatching(`\[("[a-z ]{0,10}"|\{"content":"[a-z]{0,8}"\}|null|[0-9]{1,3})(,("[a-z ]{0,10}"|\{"author":"[a-z]{0,6}"\}))*\]`),
			rapid.StringMatching(`\{"(content|text|note)":"[a-z ]{0,12}"(,"author":"(agent|human|system|x)")?\}`),
		).Draw(rt, "raw")

		notes := Normalize(raw, fixedNow)
		if notes == nil {
			rt.Fatalf("Normalize(%q) returned nil", raw)
		}
		for _, n := range notes {
			if n.ID == "" || n.Content == "" || n.Timestamp.IsZero() {
				rt.Fatalf("malformed note %+v from %q", n, raw)
			}
			switch n.Author {
			case AuthorAgent, AuthorHuman, AuthorSystem:
			default:
				rt.Fatalf("unexpected author %q from %q", n.Author, raw)
			}
		}
	})
}
