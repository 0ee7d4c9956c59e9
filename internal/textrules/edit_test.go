package textrules

import (
	"errors"
	"strings"
	"testing"
)

func TestRuleSetEdits(t *testing.T) {
	t.Parallel()

	set := New()
	if _, err := set.AddReplace("old:new:er"); err != nil {
		t.Fatalf("AddReplace failed: %v", err)
	}
	if _, err := set.AddReplace("broken"); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("AddReplace(broken) error = %v, want ErrInvalidRule", err)
	}
	if err := set.AddDelete("[a-z"); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("AddDelete(invalid) error = %v, want ErrInvalidRule", err)
	}
	if err := set.AddDelete(`\d+`); err != nil {
		t.Fatalf("AddDelete failed: %v", err)
	}
	if err := set.AddAdKeyword("promo"); err != nil {
		t.Fatalf("AddAdKeyword failed: %v", err)
	}
	set.SetAppend("tail")

	rules := set.Snapshot()
	if len(rules.ReplaceRules) != 1 || rules.ReplaceRules[0].New != "new:er" {
		t.Fatalf("replace rules = %+v, want old -> new:er", rules.ReplaceRules)
	}
	if got := set.Apply("old 123"); got != "new:er\ntail" {
		t.Fatalf("Apply = %q, want %q", got, "new:er\ntail")
	}

	removed, err := set.Remove(KindReplace, "old:new:er")
	if err != nil || removed != 1 {
		t.Fatalf("Remove(replace) = %d, %v, want 1, nil", removed, err)
	}
	if _, err := set.Remove(KindAd, "missing"); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("Remove(missing) error = %v, want ErrRuleNotFound", err)
	}
	if _, err := set.Remove(KindAppend, "tail"); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("Remove(append) error = %v, want ErrInvalidRule", err)
	}

	if err := set.Clear(KindDelete); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got := set.Snapshot().DeletePatterns; len(got) != 0 {
		t.Fatalf("delete patterns = %v, want empty", got)
	}

	if err := set.SetDelay(2.5); err != nil {
		t.Fatalf("SetDelay failed: %v", err)
	}
	set.Reset()
	rules = set.Snapshot()
	if len(rules.AdKeywords) != 0 || rules.AppendText != "" {
		t.Fatalf("after reset rules = %+v, want empty", rules)
	}
	if rules.DelaySeconds != 2.5 {
		t.Fatalf("after reset delay = %v, want 2.5", rules.DelaySeconds)
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"replace", "DELETE", " append ", "ad"} {
		if _, err := ParseKind(raw); err != nil {
			t.Fatalf("ParseKind(%q) failed: %v", raw, err)
		}
	}
	if _, err := ParseKind("other"); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("ParseKind(other) error = %v, want ErrInvalidRule", err)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	set := New(WithRules(Rules{
		ReplaceRules: []ReplaceRule{{Old: "a", New: "b"}, {Old: "c", New: ""}},
		DelaySeconds: 1,
	}))
	got := set.Describe()
	for _, want := range []string{"replace: a:b|c:", "delete: (none)", "delay_seconds: 1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Describe() = %q, missing %q", got, want)
		}
	}
}
