package services

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"situation-room/internal/domain/room"
)

// ChatContext is the read model returned by listing, search and resolve.
// Timestamps are epoch milliseconds, zero when unset.
type ChatContext struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	DisplayName      string            `json:"display_name"`
	Type             string            `json:"type"`
	TeamID           string            `json:"team_id"`
	Header           string            `json:"header"`
	Purpose          string            `json:"purpose"`
	SituationType    string            `json:"situation_type"`
	EntityType       string            `json:"entity_type"`
	CreatorID        string            `json:"creator_id"`
	RoomStatus       string            `json:"room_status"`
	Resolution       []string          `json:"resolution"`
	ResolutionRemark string            `json:"resolution_remark"`
	ResolvedBy       string            `json:"resolved_by"`
	ResolutionRead   bool              `json:"resolution_read"`
	Status           string            `json:"status"`
	TotalMsgCount    int64             `json:"total_msg_count"`
	CreatedAt        int64             `json:"created_at"`
	UpdatedAt        int64             `json:"updated_at"`
	DeletedAt        int64             `json:"deleted_at"`
	LastPostAt       int64             `json:"last_post_at"`
	ExpiredAt        int64             `json:"expired_at"`
	ExtraUpdateAt    int64             `json:"extra_update_at"`
	ResolvedAt       int64             `json:"resolved_at"`
	ObjectIDs        []string          `json:"domain_object_ids"`
	Participants     []string          `json:"participants"`
	Attachments      []room.Attachment `json:"attachments"`
	Entity           []json.RawMessage `json:"entity"`
}

// Project builds the read model of r as seen by viewer.
func Project(r room.Room, viewer string) ChatContext {
	c := ChatContext{
		ID:            r.ID,
		Name:          r.RemoteName,
		DisplayName:   r.Name,
		Type:          r.RoomType,
		TeamID:        r.TeamID,
		Header:        r.Header,
		Purpose:       r.Description,
		SituationType: r.SituationType,
		EntityType:    r.EntityType,
		CreatorID:     r.CreatedBy,
		RoomStatus:    r.Status,
		TotalMsgCount: r.TotalMessageCount,
		CreatedAt:     millis(r.CreatedAt),
		UpdatedAt:     millis(r.UpdatedAt),
		ObjectIDs:     r.ObjectIDs(),
		Participants:  r.ParticipantNames(),
		Attachments:   r.AttachmentList(),
		Resolution:    []string{},
		Entity:        []json.RawMessage{},
	}
	if r.LastPostAt != nil {
		c.LastPostAt = millis(*r.LastPostAt)
	}
	if p, ok := r.Participant(viewer); ok {
		c.Status = p.Status
		c.ResolutionRead = p.ResolutionRead
	}
	if res := r.GetResolution(); res != nil {
		c.Resolution = res.Types
		c.ResolutionRemark = res.Remark
		c.ResolvedBy = res.ResolvedBy
		c.ResolvedAt = millis(res.ResolvedAt)
	}
	if a, err := r.ContextArchive(); err == nil {
		for _, rec := range a.Of(room.KindContext) {
			c.Entity = append(c.Entity, rec.Data)
		}
	}
	if c.ObjectIDs == nil {
		c.ObjectIDs = []string{}
	}
	if c.Attachments == nil {
		c.Attachments = []room.Attachment{}
	}
	return c
}

func ProjectAll(rooms []room.Room, viewer string) []ChatContext {
	out := make([]ChatContext, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, Project(r, viewer))
	}
	return out
}

// MatchesText reports whether text occurs, ignoring case, in any searchable
// field of r.
func MatchesText(r room.Room, text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return true
	}
	fields := []string{r.Name, r.Description, r.SituationType, r.EntityType}
	fields = append(fields, r.ObjectIDs()...)
	if res := r.GetResolution(); res != nil {
		fields = append(fields, res.Types...)
		fields = append(fields, res.Remark)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// ReferencesAny reports whether r carries any of the object ids.
func ReferencesAny(r room.Room, objectIDs []string) bool {
	for _, have := range r.ObjectIDs() {
		for _, want := range objectIDs {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// SortByUpdatedDesc orders rooms most recently modified first.
func SortByUpdatedDesc(rooms []room.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
