package relay

// MediaType identifies attachment media categories.
type MediaType string

const (
	// MediaTypePhoto identifies an image attachment.
	MediaTypePhoto MediaType = "photo"
	// MediaTypeVideo identifies a video attachment.
	MediaTypeVideo MediaType = "video"
	// MediaTypeDocument identifies a generic file attachment.
	MediaTypeDocument MediaType = "document"
	// MediaTypeAudio identifies an audio attachment.
	MediaTypeAudio MediaType = "audio"
	// MediaTypeAnimation identifies a GIF-like animation.
	MediaTypeAnimation MediaType = "animation"
	// MediaTypeOther identifies media the pipeline forwards opaquely.
	MediaTypeOther MediaType = "other"
)

// Media is one re-sendable attachment fetched from a source message.
type Media struct {
	// ID is the platform attachment identifier.
	ID string
	// Type is the normalized media category.
	Type MediaType
	// Handle carries the driver-specific payload needed to send the media again.
	Handle any
}

// RawMessage is a fetched platform message.
type RawMessage struct {
	// ID is monotonic within one channel.
	ID int
	// Text is the message text or media caption.
	Text string
	// Entities describes formatting spans inside Text.
	Entities []TextEntity
	// Media is the attached media payload when present.
	Media *Media
	// GroupID identifies sibling messages posted as one album; zero when absent.
	GroupID int64
	// Service reports whether the message is a service notice without content.
	Service bool
}

// HasGroup reports whether the message belongs to a media group.
func (m RawMessage) HasGroup() bool {
	return m.GroupID != 0
}

// MergedContent is the merged text, entities and media of one message group.
type MergedContent struct {
	// Text is the merged text.
	Text string
	// Entities are formatting spans over Text.
	Entities []TextEntity
	// Media lists attachments in id order.
	Media []Media
}

// Empty reports whether there is nothing to deliver.
func (c MergedContent) Empty() bool {
	return c.Text == "" && len(c.Media) == 0
}

// SendStatus classifies the result of one delivery.
type SendStatus string

const (
	// SendStatusSent marks a delivered message group.
	SendStatusSent SendStatus = "sent"
	// SendStatusNotFound marks a target absent from its fetch window.
	SendStatusNotFound SendStatus = "not_found"
	// SendStatusFiltered marks a group skipped by the ad filter.
	SendStatusFiltered SendStatus = "filtered"
	// SendStatusFailed marks a delivery failure.
	SendStatusFailed SendStatus = "failed"
)

// SendOutcome reports the result of delivering one message group.
type SendOutcome struct {
	// Status classifies the result.
	Status SendStatus
	// MessageIDs lists messages created at the destination.
	MessageIDs []int
	// Err carries the failure cause for non-sent outcomes.
	Err error
}

// OK reports whether the group was delivered.
func (o SendOutcome) OK() bool {
	return o.Status == SendStatusSent
}
