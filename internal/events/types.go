package events

// Event types follow the format: aggregate.action

// Room events
const (
	EventTypeRoomCreated  = "room.created"
	EventTypeRoomDeleted  = "room.deleted"
	EventTypeRoomResolved = "room.resolved"
)

// Participant events
const (
	EventTypeParticipantInvited = "participant.invited"
	EventTypeParticipantJoined  = "participant.joined"
	EventTypeParticipantRemoved = "participant.removed"
)

// Message and attachment events
const (
	EventTypeMessagePosted     = "message.posted"
	EventTypeAttachmentAdded   = "attachment.added"
	EventTypeAttachmentDeleted = "attachment.deleted"
)

const AggregateTypeRoom = "room"
