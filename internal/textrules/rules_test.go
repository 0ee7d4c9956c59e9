package textrules

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"relaybot/pkg/relay"
)

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		rules Rules
		want  string
	}{
		{
			name: "no rules trims",
			text: "  hello \n",
			want: "hello",
		},
		{
			name:  "delete pattern removes matches",
			text:  "buy now at @spam today",
			rules: Rules{DeletePatterns: []string{`@\w+\s?`}},
			want:  "buy now at today",
		},
		{
			name:  "invalid pattern is skipped",
			text:  "keep (this)",
			rules: Rules{DeletePatterns: []string{"(", `\(this\)`}},
			want:  "keep",
		},
		{
			name: "replace runs after delete in configured order",
			text: "cat dog",
			rules: Rules{
				DeletePatterns: []string{"dog"},
				ReplaceRules: []ReplaceRule{
					{Old: "cat", New: "lion"},
					{Old: "lion", New: "tiger"},
				},
			},
			want: "tiger",
		},
		{
			name:  "append goes on a new line after right trim",
			text:  "body   \n\n",
			rules: Rules{AppendText: "via @relay"},
			want:  "body\nvia @relay",
		},
		{
			name:  "append trims unicode spaces before the new line",
			text:  "正文\u3000\u00a0\u3000",
			rules: Rules{AppendText: "来源"},
			want:  "正文\n来源",
		},
		{
			name:  "append on empty text",
			text:  "",
			rules: Rules{AppendText: "footer"},
			want:  "footer",
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := Apply(testCase.text, testCase.rules, logger); got != testCase.want {
				t.Fatalf("Apply = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestApplyIdempotentWithoutAppend(t *testing.T) {
	t.Parallel()

	rules := Rules{
		DeletePatterns: []string{`#ad\b`, `https?://\S+`},
		ReplaceRules:   []ReplaceRule{{Old: "colour", New: "color"}},
	}
	inputs := []string{
		"nice colour #ad https://x.example/a",
		"  plain  ",
		"colourcolour",
	}
	for _, input := range inputs {
		once := Apply(input, rules, nil)
		twice := Apply(once, rules, nil)
		if once != twice {
			t.Fatalf("Apply not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestIsAdGroup(t *testing.T) {
	t.Parallel()

	messages := []relay.RawMessage{
		{ID: 1, Text: "first part"},
		{ID: 2},
		{ID: 3, Text: "Limited OFFER inside"},
	}

	tests := []struct {
		name     string
		keywords []string
		want     bool
	}{
		{name: "empty keyword set", want: false},
		{name: "substring match", keywords: []string{"OFFER"}, want: true},
		{name: "case sensitive", keywords: []string{"offer"}, want: false},
		{name: "empty keyword ignored", keywords: []string{""}, want: false},
		{name: "any keyword matches", keywords: []string{"nope", "part"}, want: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := IsAdGroup(messages, testCase.keywords); got != testCase.want {
				t.Fatalf("IsAdGroup = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestRuleSetDelay(t *testing.T) {
	t.Parallel()

	set := New()
	if got := set.Delay(); got != time.Second {
		t.Fatalf("default delay = %s, want 1s", got)
	}

	set = New(WithRules(Rules{DelaySeconds: 0.5}))
	if got := set.Delay(); got != 500*time.Millisecond {
		t.Fatalf("delay = %s, want 500ms", got)
	}

	set = New(WithRules(Rules{}))
	if got := set.Delay(); got != 0 {
		t.Fatalf("zero delay = %s, want 0", got)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	t.Parallel()

	set := New(WithRules(Rules{AdKeywords: []string{"a"}}))
	snapshot := set.Snapshot()
	snapshot.AdKeywords[0] = "mutated"

	if got := set.AdKeywords(); got[0] != "a" {
		t.Fatalf("AdKeywords = %v, want [a]", got)
	}
}
