package textrules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const listSeparator = "|"

// document is the flat on-disk rule payload.
type document struct {
	ReplaceRules   string   `json:"replace_rules" yaml:"replace_rules"`
	DeletePatterns string   `json:"delete_patterns" yaml:"delete_patterns"`
	AppendText     string   `json:"append_text" yaml:"append_text"`
	AdKeywords     string   `json:"ad_keywords" yaml:"ad_keywords"`
	DelaySeconds   *float64 `json:"delay_seconds,omitempty" yaml:"delay_seconds,omitempty"`
}

// Format selects the rule file encoding.
type Format string

const (
	// FormatJSON encodes rules as JSON.
	FormatJSON Format = "json"
	// FormatYAML encodes rules as YAML.
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from the file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode renders rules in the flat pipe-separated document form.
func Encode(rules Rules, format Format) ([]byte, error) {
	replaceRules := make([]string, 0, len(rules.ReplaceRules))
	for _, rule := range rules.ReplaceRules {
		replaceRules = append(replaceRules, rule.String())
	}
	delay := rules.DelaySeconds
	doc := document{
		ReplaceRules:   strings.Join(replaceRules, listSeparator),
		DeletePatterns: strings.Join(rules.DeletePatterns, listSeparator),
		AppendText:     rules.AppendText,
		AdKeywords:     strings.Join(rules.AdKeywords, listSeparator),
		DelaySeconds:   &delay,
	}

	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("marshal yaml rules: %w", err)
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal json rules: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("encode rules: unsupported format %q", format)
	}
}

// Decode parses a flat rule document. Missing keys keep their defaults.
func Decode(data []byte, format Format) (Rules, error) {
	var doc document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Rules{}, fmt.Errorf("unmarshal yaml rules: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return Rules{}, fmt.Errorf("unmarshal json rules: %w", err)
		}
	default:
		return Rules{}, fmt.Errorf("decode rules: unsupported format %q", format)
	}

	rules := DefaultRules()
	rules.DeletePatterns = splitList(doc.DeletePatterns)
	for _, keyword := range splitList(doc.AdKeywords) {
		rules.AdKeywords = append(rules.AdKeywords, strings.TrimSpace(keyword))
	}
	rules.AppendText = doc.AppendText
	for _, raw := range splitList(doc.ReplaceRules) {
		rule, err := ParseReplaceRule(raw)
		if err != nil {
			continue
		}
		rules.ReplaceRules = append(rules.ReplaceRules, rule)
	}
	if doc.DelaySeconds != nil {
		if *doc.DelaySeconds < 0 {
			return Rules{}, fmt.Errorf("decode rules: delay_seconds must be >= 0")
		}
		rules.DelaySeconds = *doc.DelaySeconds
	}

	return rules, nil
}

// Load replaces the rule set with the contents of path.
//
// A missing file is not an error: found is false and the rules are unchanged.
func (s *RuleSet) Load(path string) (found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read rules file %s: %w", path, err)
	}

	rules, err := Decode(data, FormatForPath(path))
	if err != nil {
		return true, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	s.Replace(rules)

	return true, nil
}

// Save writes the current rules to path atomically.
func (s *RuleSet) Save(path string) error {
	data, err := Encode(s.Snapshot(), FormatForPath(path))
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create rules directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp rules file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp rules file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp rules file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace rules file %s: %w", path, err)
	}

	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, listSeparator)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil
	}

	return out
}
