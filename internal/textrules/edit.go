package textrules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind names one editable rule category.
type Kind string

const (
	// KindReplace selects replace rules.
	KindReplace Kind = "replace"
	// KindDelete selects delete patterns.
	KindDelete Kind = "delete"
	// KindAppend selects the append text.
	KindAppend Kind = "append"
	// KindAd selects ad keywords.
	KindAd Kind = "ad"
)

var (
	// ErrInvalidRule indicates a malformed rule edit.
	ErrInvalidRule = errors.New("textrules: invalid rule")
	// ErrRuleNotFound indicates that a rule to remove does not exist.
	ErrRuleNotFound = errors.New("textrules: rule not found")
)

// ParseKind parses a rule category name.
func ParseKind(raw string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case KindReplace, KindDelete, KindAppend, KindAd:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, raw)
	}
}

// ParseReplaceRule parses old:new, splitting on the first colon.
func ParseReplaceRule(raw string) (ReplaceRule, error) {
	old, replacement, ok := strings.Cut(raw, ":")
	if !ok {
		return ReplaceRule{}, fmt.Errorf("%w: replace rule %q lacks ':'", ErrInvalidRule, raw)
	}
	if old == "" {
		return ReplaceRule{}, fmt.Errorf("%w: replace rule %q has empty source", ErrInvalidRule, raw)
	}

	return ReplaceRule{Old: old, New: replacement}, nil
}

// AddReplace appends one replace rule in old:new form.
func (s *RuleSet) AddReplace(raw string) (ReplaceRule, error) {
	rule, err := ParseReplaceRule(raw)
	if err != nil {
		return ReplaceRule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules.ReplaceRules = append(s.rules.ReplaceRules, rule)

	return rule, nil
}

// AddDelete appends one delete pattern after checking that it compiles.
func (s *RuleSet) AddDelete(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("%w: empty delete pattern", ErrInvalidRule)
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("%w: compile %q: %w", ErrInvalidRule, pattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules.DeletePatterns = append(s.rules.DeletePatterns, pattern)

	return nil
}

// SetAppend replaces the append text.
func (s *RuleSet) SetAppend(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules.AppendText = text
}

// AddAdKeyword appends one ad keyword.
func (s *RuleSet) AddAdKeyword(keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return fmt.Errorf("%w: empty ad keyword", ErrInvalidRule)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules.AdKeywords = append(s.rules.AdKeywords, keyword)

	return nil
}

// SetDelay replaces the pause between batch items.
func (s *RuleSet) SetDelay(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: negative delay %v", ErrInvalidRule, seconds)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules.DelaySeconds = seconds

	return nil
}

// Clear empties one rule category.
func (s *RuleSet) Clear(kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case KindReplace:
		s.rules.ReplaceRules = nil
	case KindDelete:
		s.rules.DeletePatterns = nil
	case KindAppend:
		s.rules.AppendText = ""
	case KindAd:
		s.rules.AdKeywords = nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, kind)
	}

	return nil
}

// Remove deletes every rule of kind equal to raw and returns how many were removed.
func (s *RuleSet) Remove(kind Kind, raw string) (int, error) {
	target := strings.TrimSpace(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	switch kind {
	case KindReplace:
		kept := s.rules.ReplaceRules[:0]
		for _, rule := range s.rules.ReplaceRules {
			if strings.TrimSpace(rule.String()) == target {
				removed++
				continue
			}
			kept = append(kept, rule)
		}
		s.rules.ReplaceRules = kept
	case KindDelete:
		s.rules.DeletePatterns, removed = removeString(s.rules.DeletePatterns, target)
	case KindAd:
		s.rules.AdKeywords, removed = removeString(s.rules.AdKeywords, target)
	default:
		return 0, fmt.Errorf("%w: kind %q does not support remove", ErrInvalidRule, kind)
	}
	if removed == 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrRuleNotFound, kind, raw)
	}

	return removed, nil
}

// Reset clears every rule category and keeps the delay.
func (s *RuleSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = Rules{DelaySeconds: s.rules.DelaySeconds}
}

// Describe renders the current rules for operators.
func (s *RuleSet) Describe() string {
	rules := s.Snapshot()

	replaceRules := make([]string, 0, len(rules.ReplaceRules))
	for _, rule := range rules.ReplaceRules {
		replaceRules = append(replaceRules, rule.String())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "replace: %s\n", orNone(strings.Join(replaceRules, "|")))
	fmt.Fprintf(&b, "delete: %s\n", orNone(strings.Join(rules.DeletePatterns, "|")))
	fmt.Fprintf(&b, "append: %s\n", orNone(rules.AppendText))
	fmt.Fprintf(&b, "ad: %s\n", orNone(strings.Join(rules.AdKeywords, "|")))
	fmt.Fprintf(&b, "delay_seconds: %g", rules.DelaySeconds)

	return b.String()
}

func removeString(values []string, target string) ([]string, int) {
	kept := values[:0]
	removed := 0
	for _, value := range values {
		if strings.TrimSpace(value) == target {
			removed++
			continue
		}
		kept = append(kept, value)
	}

	return kept, removed
}

func orNone(value string) string {
	if value == "" {
		return "(none)"
	}

	return value
}
