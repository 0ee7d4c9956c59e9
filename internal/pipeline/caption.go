package pipeline

import (
	"unicode/utf16"

	"relaybot/pkg/relay"
)

const (
	// DefaultCaptionLimit is the media caption length limit in UTF-16 units.
	DefaultCaptionLimit = 1024
	// DefaultOverflowHeader prefixes caption overflow sent as a follow-up message.
	DefaultOverflowHeader = "完整内容：\n"
)

// CaptionSplit is text divided into a media caption and a follow-up overflow.
type CaptionSplit struct {
	Caption          string
	CaptionEntities  []relay.TextEntity
	Overflow         string
	OverflowEntities []relay.TextEntity
}

// SplitForCaption puts the first limit units of text into the caption and the
// rest into the overflow.
//
// Entities inside the caption stay there; entities starting at or after the
// cut move to the overflow rebased to its start; entities crossing the cut are
// truncated and kept only in the caption. A surrogate pair is never split, so
// the cut may fall one unit before limit.
func SplitForCaption(text string, entities []relay.TextEntity, limit int) CaptionSplit {
	units := relay.EncodeText(text)
	if limit <= 0 {
		limit = DefaultCaptionLimit
	}
	if len(units) <= limit {
		return CaptionSplit{
			Caption:         text,
			CaptionEntities: relay.ClipEntities(entities, len(units)),
		}
	}

	cut := limit
	if utf16.IsSurrogate(rune(units[cut-1])) && units[cut-1] < 0xdc00 {
		cut--
	}

	split := CaptionSplit{
		Caption:  relay.DecodeText(units[:cut]),
		Overflow: relay.DecodeText(units[cut:]),
	}
	for _, entity := range entities {
		if entity.Offset < 0 || entity.Length <= 0 {
			continue
		}
		if entity.Offset >= cut {
			split.OverflowEntities = append(split.OverflowEntities, entity.WithOffset(entity.Offset-cut))
			continue
		}
		end := entity.End()
		if end > cut {
			end = cut
		}
		split.CaptionEntities = append(split.CaptionEntities, entity.WithSpan(entity.Offset, end-entity.Offset))
	}
	split.OverflowEntities = relay.ClipEntities(split.OverflowEntities, len(units)-cut)

	return split
}
