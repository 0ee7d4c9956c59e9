package relay

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// privateChannelBase is the offset separating private channel references
// from raw channel identifiers published in t.me/c/ links.
const privateChannelBase int64 = 1_000_000_000_000

// maxPrivateRawID is the largest raw identifier whose private reference
// still fits in an int64.
const maxPrivateRawID = math.MaxInt64 - privateChannelBase

var (
	messageLinkPattern = regexp.MustCompile(`^https?://t\.me/(?:c/(\d+)|([^/]+))/(\d+)`)
	unsafeNamePattern  = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)
)

// ChannelRef identifies a channel or chat either by public handle or by
// numeric private reference. Exactly one representation is populated.
type ChannelRef struct {
	// Handle is the public username without the leading @.
	Handle string
	// ID is the numeric reference, -10^12 - rawID for private channels.
	ID int64
}

// HandleChannel returns a reference to a public channel handle.
func HandleChannel(handle string) ChannelRef {
	return ChannelRef{Handle: strings.TrimPrefix(strings.TrimSpace(handle), "@")}
}

// PrivateChannel returns a reference to a private channel by its raw identifier.
func PrivateChannel(rawID int64) ChannelRef {
	return ChannelRef{ID: -privateChannelBase - rawID}
}

// IsNumeric reports whether the reference uses the numeric form.
func (r ChannelRef) IsNumeric() bool {
	return r.Handle == "" && r.ID != 0
}

// IsZero reports whether neither representation is populated.
func (r ChannelRef) IsZero() bool {
	return r.Handle == "" && r.ID == 0
}

// RawID recovers the raw channel identifier published in t.me/c/ links.
func (r ChannelRef) RawID() int64 {
	raw := r.ID + privateChannelBase
	if raw < 0 {
		return -raw
	}

	return raw
}

// String returns @handle or the numeric reference.
func (r ChannelRef) String() string {
	if r.Handle != "" {
		return "@" + r.Handle
	}

	return strconv.FormatInt(r.ID, 10)
}

// Validate checks that exactly one representation is populated.
func (r ChannelRef) Validate() error {
	if r.Handle != "" && r.ID != 0 {
		return fmt.Errorf("%w: both handle and id set", ErrInvalidChannel)
	}
	if r.IsZero() {
		return fmt.Errorf("%w: empty reference", ErrInvalidChannel)
	}

	return nil
}

// MessageRef addresses one message inside a channel.
type MessageRef struct {
	// Channel is the channel containing the message.
	Channel ChannelRef
	// ID is the message identifier, starting at 1.
	ID int
}

// ParseLink parses a t.me message permalink.
//
// Public links have the form https://t.me/<handle>/<id>; private channel
// links have the form https://t.me/c/<rawID>/<id>.
func ParseLink(link string) (MessageRef, error) {
	match := messageLinkPattern.FindStringSubmatch(strings.TrimSpace(link))
	if match == nil {
		return MessageRef{}, fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}

	messageID, err := strconv.Atoi(match[3])
	if err != nil || messageID < 1 {
		return MessageRef{}, fmt.Errorf("%w: message id %q", ErrInvalidLink, match[3])
	}

	if match[1] != "" {
		rawID, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil || rawID <= 0 || rawID > maxPrivateRawID {
			return MessageRef{}, fmt.Errorf("%w: channel id %q", ErrInvalidLink, match[1])
		}

		return MessageRef{Channel: PrivateChannel(rawID), ID: messageID}, nil
	}

	return MessageRef{Channel: ChannelRef{Handle: match[2]}, ID: messageID}, nil
}

// BuildLink builds the canonical permalink for ref.
func BuildLink(ref MessageRef) string {
	if ref.Channel.IsNumeric() {
		return fmt.Sprintf("https://t.me/c/%d/%d", ref.Channel.RawID(), ref.ID)
	}

	return fmt.Sprintf("https://t.me/%s/%d", ref.Channel.Handle, ref.ID)
}

// ParseChannelRef parses operator input naming a channel.
//
// Accepted forms are @handle, handle, https://t.me/handle, https://t.me/c/<rawID>
// and the numeric -100<rawID> chat identifier.
func ParseChannelRef(input string) (ChannelRef, error) {
	trimmed := strings.TrimSpace(input)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if rest, ok := strings.CutPrefix(trimmed, prefix); ok {
			trimmed = strings.TrimSuffix(rest, "/")
			break
		}
	}

	if rest, ok := strings.CutPrefix(trimmed, "c/"); ok {
		rawID, err := strconv.ParseInt(strings.SplitN(rest, "/", 2)[0], 10, 64)
		if err != nil || rawID <= 0 || rawID > maxPrivateRawID {
			return ChannelRef{}, fmt.Errorf("%w: %q", ErrInvalidChannel, input)
		}
		return PrivateChannel(rawID), nil
	}

	if strings.HasPrefix(trimmed, "-") {
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil || id > -privateChannelBase || id < -privateChannelBase-maxPrivateRawID {
			return ChannelRef{}, fmt.Errorf("%w: %q", ErrInvalidChannel, input)
		}
		return ChannelRef{ID: id}, nil
	}

	handle := strings.TrimPrefix(trimmed, "@")
	if handle == "" || strings.ContainsAny(handle, "/ ") {
		return ChannelRef{}, fmt.Errorf("%w: %q", ErrInvalidChannel, input)
	}

	return ChannelRef{Handle: handle}, nil
}

// SafeName returns a file-name-safe label for the channel containing only
// letters, digits, underscore and hyphen.
func SafeName(input string) string {
	trimmed := strings.TrimSpace(input)
	trimmed = strings.TrimPrefix(trimmed, "https://t.me/")
	trimmed = strings.TrimLeft(trimmed, "@")

	return unsafeNamePattern.ReplaceAllString(trimmed, "")
}

// SafeChannelName returns SafeName for a parsed channel reference.
func SafeChannelName(ref ChannelRef) string {
	if ref.Handle != "" {
		return SafeName(ref.Handle)
	}

	return "c" + strconv.FormatInt(ref.RawID(), 10)
}
