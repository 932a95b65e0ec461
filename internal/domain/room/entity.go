package room

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	StatusOpen     = "OPEN"
	StatusResolved = "RESOLVED"

	ParticipantPending = "PENDING"
	ParticipantJoined  = "JOINED"

	// TypePrivate is the remote channel type used for every room.
	TypePrivate = "P"
)

// Room represents the chat_rooms table. ID is assigned by the remote chat
// backend and never changes.
type Room struct {
	ID                string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TenantID          string         `gorm:"index;not null" json:"tenant_id"`
	Name              string         `gorm:"not null" json:"name"`
	RemoteName        string         `gorm:"type:varchar(64)" json:"remote_name"`
	TeamID            string         `json:"team_id"`
	EntityType        string         `gorm:"index" json:"entity_type"`
	Description       string         `json:"description"`
	Header            string         `json:"header"`
	RoomType          string         `gorm:"type:varchar(4)" json:"room_type"`
	SituationType     string         `json:"situation_type"`
	Status            string         `gorm:"index;not null" json:"status"`
	CreatedBy         string         `gorm:"not null" json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime:false" json:"updated_at"`
	LastPostAt        *time.Time     `json:"last_post_at,omitempty"`
	TotalMessageCount int64          `json:"total_message_count"`
	DomainObjectIDs   datatypes.JSON `gorm:"type:jsonb" json:"domain_object_ids"`
	Contexts          datatypes.JSON `gorm:"type:jsonb" json:"contexts"`
	Chats             datatypes.JSON `gorm:"type:jsonb" json:"chats"`
	Resolution        datatypes.JSON `gorm:"type:jsonb" json:"resolution,omitempty"`
	Attachments       datatypes.JSON `gorm:"type:jsonb" json:"attachments"`
	// Version increases with every save; writers must hold the latest one.
	Version int64 `gorm:"not null;default:1" json:"version"`

	Participants []Participant `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"participants"`
}

// Participant represents the chat_room_participants table.
type Participant struct {
	RoomID         string     `gorm:"primaryKey;type:varchar(64)" json:"room_id"`
	UserName       string     `gorm:"primaryKey" json:"user_name"`
	TenantID       string     `gorm:"index;not null" json:"tenant_id"`
	Status         string     `gorm:"not null" json:"status"`
	RoomStatus     string     `gorm:"index" json:"room_status"`
	InvitedAt      time.Time  `json:"invited_at"`
	JoinedAt       *time.Time `json:"joined_at,omitempty"`
	ResolutionRead bool       `json:"resolution_read"`
}

// Resolution closes a room. It is written once.
type Resolution struct {
	Types          []string  `json:"types"`
	Remark         string    `json:"remark"`
	ResolvedBy     string    `json:"resolved_by"`
	ResolvedByName string    `json:"resolved_by_name"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

type Attachment struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	UploadedBy     string             `json:"uploaded_by"`
	UploadedByName string             `json:"uploaded_by_name"`
	CreatedAt      time.Time          `json:"created_at"`
	Metadata       AttachmentMetadata `json:"metadata"`
}

type AttachmentMetadata struct {
	Path        string `json:"path"`
	Comment     string `json:"comment,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
}

func (Room) TableName() string {
	return "chat_rooms"
}

func (Participant) TableName() string {
	return "chat_room_participants"
}

func (r *Room) IsOpen() bool {
	return r.Status == StatusOpen
}

func (r *Room) IsResolved() bool {
	return r.Status == StatusResolved
}

func (r *Room) IsCreator(userName string) bool {
	return r.CreatedBy == userName
}

// Participant returns the membership record of userName, if any.
func (r *Room) Participant(userName string) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].UserName == userName {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

// AddParticipant appends a PENDING participant. Existing members are left untouched.
func (r *Room) AddParticipant(userName string, invitedAt time.Time) bool {
	if _, ok := r.Participant(userName); ok {
		return false
	}
	r.Participants = append(r.Participants, Participant{
		RoomID:     r.ID,
		UserName:   userName,
		TenantID:   r.TenantID,
		Status:     ParticipantPending,
		RoomStatus: r.Status,
		InvitedAt:  invitedAt,
	})
	return true
}

func (r *Room) RemoveParticipant(userName string) bool {
	for i := range r.Participants {
		if r.Participants[i].UserName == userName {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) ParticipantNames() []string {
	names := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		names = append(names, p.UserName)
	}
	return names
}

func (r *Room) ObjectIDs() []string {
	var ids []string
	if len(r.DomainObjectIDs) == 0 {
		return ids
	}
	if err := json.Unmarshal(r.DomainObjectIDs, &ids); err != nil {
		return nil
	}
	return ids
}

func (r *Room) SetObjectIDs(ids []string) {
	if ids == nil {
		ids = []string{}
	}
	data, _ := json.Marshal(ids)
	r.DomainObjectIDs = datatypes.JSON(data)
}

// GetResolution returns nil while the room is open.
func (r *Room) GetResolution() *Resolution {
	if len(r.Resolution) == 0 || string(r.Resolution) == "null" {
		return nil
	}
	var res Resolution
	if err := json.Unmarshal(r.Resolution, &res); err != nil {
		return nil
	}
	return &res
}

// Resolve moves the room to RESOLVED. The last-modified time becomes the
// resolution time and every participant row follows the new room status.
func (r *Room) Resolve(res Resolution) {
	data, _ := json.Marshal(res)
	r.Resolution = datatypes.JSON(data)
	r.Status = StatusResolved
	r.UpdatedAt = res.ResolvedAt
	for i := range r.Participants {
		r.Participants[i].RoomStatus = StatusResolved
		if r.Participants[i].UserName == res.ResolvedBy {
			r.Participants[i].ResolutionRead = true
		}
	}
}

func (r *Room) AttachmentList() []Attachment {
	var list []Attachment
	if len(r.Attachments) == 0 {
		return list
	}
	if err := json.Unmarshal(r.Attachments, &list); err != nil {
		return nil
	}
	return list
}

func (r *Room) SetAttachments(list []Attachment) {
	if list == nil {
		list = []Attachment{}
	}
	data, _ := json.Marshal(list)
	r.Attachments = datatypes.JSON(data)
}

func (r *Room) FindAttachment(id string) (Attachment, bool) {
	for _, a := range r.AttachmentList() {
		if a.ID == id {
			return a, true
		}
	}
	return Attachment{}, false
}
