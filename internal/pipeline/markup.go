package pipeline

import (
	"html"
	"sort"
	"strconv"
	"strings"

	"relaybot/pkg/relay"
)

// ToFallbackMarkup renders text with entities as Telegram HTML markup.
//
// Entities are sorted by offset and wrapped in inline tags; text outside tags
// is escaped. Entities starting at or past the end of text, or ending past
// it, are skipped. Kinds without an inline tag are rendered as plain text.
// Partly overlapping entities are split so the emitted tags always nest.
func ToFallbackMarkup(text string, entities []relay.TextEntity) string {
	units := relay.EncodeText(text)
	if len(entities) == 0 {
		return html.EscapeString(text)
	}

	spans := make([]markupSpan, 0, len(entities))
	for _, entity := range entities {
		if entity.Offset < 0 || entity.Length <= 0 {
			continue
		}
		if entity.Offset >= len(units) || entity.End() > len(units) {
			continue
		}
		open, closing, ok := markupTags(entity, relay.DecodeText(units[entity.Offset:entity.End()]))
		if !ok {
			continue
		}
		spans = append(spans, markupSpan{start: entity.Offset, end: entity.End(), open: open, closing: closing})
	}
	if len(spans) == 0 {
		return html.EscapeString(text)
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	boundaries := make([]int, 0, 2*len(spans)+1)
	seen := make(map[int]struct{})
	for _, span := range spans {
		boundaries = appendBoundary(boundaries, seen, span.start)
		boundaries = appendBoundary(boundaries, seen, span.end)
	}
	boundaries = appendBoundary(boundaries, seen, len(units))
	sort.Ints(boundaries)

	var (
		b        strings.Builder
		stack    []markupSpan
		next     int
		previous int
	)
	for _, position := range boundaries {
		if position > previous {
			b.WriteString(html.EscapeString(relay.DecodeText(units[previous:position])))
			previous = position
		}

		// Unwind down to the outermost span ending here; inner spans that
		// continue past this position are closed and reopened below.
		depth := len(stack)
		for i, span := range stack {
			if span.end == position {
				depth = i
				break
			}
		}
		var reopen []markupSpan
		for len(stack) > depth {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			b.WriteString(top.closing)
			if top.end > position {
				reopen = append(reopen, top)
			}
		}

		for next < len(spans) && spans[next].start == position {
			reopen = append(reopen, spans[next])
			next++
		}
		sort.SliceStable(reopen, func(i, j int) bool {
			return reopen[i].end > reopen[j].end
		})
		for _, span := range reopen {
			b.WriteString(span.open)
			stack = append(stack, span)
		}
	}

	return b.String()
}

type markupSpan struct {
	start   int
	end     int
	open    string
	closing string
}

func appendBoundary(boundaries []int, seen map[int]struct{}, position int) []int {
	if _, ok := seen[position]; ok {
		return boundaries
	}
	seen[position] = struct{}{}

	return append(boundaries, position)
}

func markupTags(entity relay.TextEntity, covered string) (string, string, bool) {
	switch entity.Type {
	case relay.TextEntityTypeBold:
		return "<b>", "</b>", true
	case relay.TextEntityTypeItalic:
		return "<i>", "</i>", true
	case relay.TextEntityTypeUnderline:
		return "<u>", "</u>", true
	case relay.TextEntityTypeStrike:
		return "<s>", "</s>", true
	case relay.TextEntityTypeSpoiler:
		return "<tg-spoiler>", "</tg-spoiler>", true
	case relay.TextEntityTypeCode:
		return "<code>", "</code>", true
	case relay.TextEntityTypePre:
		if entity.Language != "" {
			return `<pre><code class="language-` + html.EscapeString(entity.Language) + `">`, "</code></pre>", true
		}
		return "<pre>", "</pre>", true
	case relay.TextEntityTypeTextURL:
		return linkTag(entity.URL), "</a>", entity.URL != ""
	case relay.TextEntityTypeURL:
		return linkTag(covered), "</a>", true
	case relay.TextEntityTypeMention:
		handle := strings.TrimPrefix(covered, "@")
		return linkTag("https://t.me/" + handle), "</a>", handle != ""
	case relay.TextEntityTypeMentionName:
		return linkTag("tg://user?id=" + strconv.FormatInt(entity.MentionUserID, 10)), "</a>", entity.MentionUserID > 0
	default:
		return "", "", false
	}
}

func linkTag(target string) string {
	return `<a href="` + html.EscapeString(target) + `">`
}
