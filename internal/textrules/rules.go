// Package textrules owns the operator-editable text transformation rules
// applied to forwarded content and the ad-keyword filter for media groups.
package textrules

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"relaybot/pkg/relay"
)

// DefaultDelaySeconds is the default pause between batch items.
const DefaultDelaySeconds = 1.0

// ReplaceRule is one literal substring replacement.
type ReplaceRule struct {
	Old string
	New string
}

// String renders the rule in old:new form.
func (r ReplaceRule) String() string {
	return r.Old + ":" + r.New
}

// Rules is an immutable snapshot of a rule set.
type Rules struct {
	// DeletePatterns are regular expressions removed from text.
	DeletePatterns []string
	// ReplaceRules are applied in order after deletions.
	ReplaceRules []ReplaceRule
	// AppendText is added on a new line after the transformed text.
	AppendText string
	// AdKeywords mark a media group as an advertisement.
	AdKeywords []string
	// DelaySeconds is the pause between batch items.
	DelaySeconds float64
}

// DefaultRules returns an empty rule snapshot with the default delay.
func DefaultRules() Rules {
	return Rules{DelaySeconds: DefaultDelaySeconds}
}

func (r Rules) clone() Rules {
	return Rules{
		DeletePatterns: append([]string(nil), r.DeletePatterns...),
		ReplaceRules:   append([]ReplaceRule(nil), r.ReplaceRules...),
		AppendText:     r.AppendText,
		AdKeywords:     append([]string(nil), r.AdKeywords...),
		DelaySeconds:   r.DelaySeconds,
	}
}

// Option mutates rule set configuration.
type Option func(*RuleSet)

// WithLogger configures logging for skipped invalid patterns and reloads.
func WithLogger(logger *slog.Logger) Option {
	return func(s *RuleSet) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRules seeds the rule set with an initial snapshot.
func WithRules(rules Rules) Option {
	return func(s *RuleSet) {
		s.rules = rules.clone()
	}
}

// RuleSet is the process-wide, mutable rule configuration.
//
// Edits are last-writer-wins; readers always observe a consistent snapshot.
type RuleSet struct {
	mu     sync.RWMutex
	rules  Rules
	logger *slog.Logger
}

// New creates a rule set holding DefaultRules unless WithRules is given.
func New(options ...Option) *RuleSet {
	set := &RuleSet{
		rules:  DefaultRules(),
		logger: slog.Default(),
	}
	for _, option := range options {
		option(set)
	}

	return set
}

// Snapshot returns a copy of the current rules.
func (s *RuleSet) Snapshot() Rules {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rules.clone()
}

// Replace swaps in a full rule snapshot.
func (s *RuleSet) Replace(rules Rules) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = rules.clone()
}

// Apply transforms text with the current rules.
func (s *RuleSet) Apply(text string) string {
	return Apply(text, s.Snapshot(), s.logger)
}

// AdKeywords returns the configured ad keywords.
func (s *RuleSet) AdKeywords() []string {
	return s.Snapshot().AdKeywords
}

// Delay returns the configured pause between batch items.
func (s *RuleSet) Delay() time.Duration {
	seconds := s.Snapshot().DelaySeconds
	if seconds <= 0 {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// Apply runs delete patterns, replace rules and the append text over text, in
// that order, and trims the result.
//
// Applying twice yields the same text when the append text is empty and no
// replacement re-introduces a deleted or replaced pattern.
func Apply(text string, rules Rules, logger *slog.Logger) string {
	for _, pattern := range rules.DeletePatterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			if logger != nil {
				logger.Error("skip invalid delete pattern", "pattern", pattern, "error", err)
			}
			continue
		}
		text = compiled.ReplaceAllString(text, "")
	}

	for _, rule := range rules.ReplaceRules {
		if rule.Old == "" {
			continue
		}
		text = strings.ReplaceAll(text, rule.Old, rule.New)
	}

	if rules.AppendText != "" {
		text = strings.TrimRightFunc(text, unicode.IsSpace) + "\n" + rules.AppendText
	}

	return strings.TrimSpace(text)
}

// IsAdGroup reports whether any message text contains any keyword.
func IsAdGroup(messages []relay.RawMessage, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}

	for _, message := range messages {
		if message.Text == "" {
			continue
		}
		for _, keyword := range keywords {
			if keyword != "" && strings.Contains(message.Text, keyword) {
				return true
			}
		}
	}

	return false
}
