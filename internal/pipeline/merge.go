package pipeline

import (
	"strings"
	"unicode"

	"relaybot/pkg/relay"
)

const (
	mergeSeparator = "\n\n"
	boldMarker     = "**"
)

// MergeOptions tunes Merge for one delivery path.
type MergeOptions struct {
	// StripMarkers removes literal ** pairs from formatted message text.
	StripMarkers bool
}

// Merge concatenates the trimmed texts of sorted messages with blank-line
// separators and shifts every entity by the merged length preceding its text.
// Media is collected in the same order.
func Merge(messages []relay.RawMessage, options MergeOptions) relay.MergedContent {
	var (
		text     strings.Builder
		length   int
		entities []relay.TextEntity
		media    []relay.Media
	)

	for _, message := range messages {
		if message.Media != nil {
			media = append(media, *message.Media)
		}

		part, partEntities := trimText(message.Text, message.Entities)
		if options.StripMarkers {
			part, partEntities = StripMarkers(part, partEntities)
		}
		if part == "" {
			continue
		}

		if length > 0 {
			text.WriteString(mergeSeparator)
			length += relay.TextLength(mergeSeparator)
		}
		base := length
		text.WriteString(part)
		length += relay.TextLength(part)

		for _, entity := range partEntities {
			entities = append(entities, entity.WithOffset(entity.Offset+base))
		}
	}

	return relay.MergedContent{
		Text:     text.String(),
		Entities: entities,
		Media:    media,
	}
}

// StripMarkers removes ** pairs from text when it carries formatting
// entities, moving each entity left by the marker units before it and
// shrinking it by the marker units inside it. Entities left empty are dropped.
func StripMarkers(text string, entities []relay.TextEntity) (string, []relay.TextEntity) {
	if len(entities) == 0 || !strings.Contains(text, boldMarker) {
		return text, entities
	}

	units := relay.EncodeText(text)
	// removedBefore[i] counts marker units in units[:i].
	removedBefore := make([]int, len(units)+1)
	kept := make([]uint16, 0, len(units))
	for i := 0; i < len(units); {
		if i+1 < len(units) && units[i] == '*' && units[i+1] == '*' {
			removedBefore[i+1] = removedBefore[i] + 1
			removedBefore[i+2] = removedBefore[i] + 2
			i += 2
			continue
		}
		kept = append(kept, units[i])
		removedBefore[i+1] = removedBefore[i]
		i++
	}

	adjusted := make([]relay.TextEntity, 0, len(entities))
	for _, entity := range entities {
		start := entity.Offset
		end := entity.End()
		if start < 0 || start >= len(units) || end <= start {
			continue
		}
		if end > len(units) {
			end = len(units)
		}
		length := (end - start) - (removedBefore[end] - removedBefore[start])
		if length <= 0 {
			continue
		}
		adjusted = append(adjusted, entity.WithSpan(start-removedBefore[start], length))
	}
	if len(adjusted) == 0 {
		adjusted = nil
	}

	return relay.DecodeText(kept), adjusted
}

// trimText trims surrounding whitespace and rebases entities onto the
// trimmed text, truncating spans that reach into the removed whitespace.
func trimText(text string, entities []relay.TextEntity) (string, []relay.TextEntity) {
	leftTrimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	trimmed := strings.TrimRightFunc(leftTrimmed, unicode.IsSpace)
	if trimmed == "" {
		return "", nil
	}

	lead := relay.TextLength(text[:len(text)-len(leftTrimmed)])
	length := relay.TextLength(trimmed)
	if len(entities) == 0 {
		return trimmed, nil
	}

	out := make([]relay.TextEntity, 0, len(entities))
	for _, entity := range entities {
		start := entity.Offset - lead
		end := entity.End() - lead
		if start < 0 {
			start = 0
		}
		if end > length {
			end = length
		}
		if end <= start {
			continue
		}
		out = append(out, entity.WithSpan(start, end-start))
	}
	if len(out) == 0 {
		return trimmed, nil
	}

	return trimmed, out
}
