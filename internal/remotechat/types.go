package remotechat

import (
	"encoding/json"
	"fmt"
)

type NewUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type UserAccessToken struct {
	ID          string `json:"id"`
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	Description string `json:"description"`
}

type Channel struct {
	ID          string `json:"id,omitempty"`
	TeamID      string `json:"team_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Purpose     string `json:"purpose,omitempty"`
	Header      string `json:"header,omitempty"`
	Type        string `json:"type"`
	CreatorID   string `json:"creator_id,omitempty"`
	CreateAt    int64  `json:"create_at,omitempty"`
	UpdateAt    int64  `json:"update_at,omitempty"`
	LastPostAt  int64  `json:"last_post_at,omitempty"`

	// Payload is the backend's full creation response.
	Payload map[string]any `json:"-"`
}

type ChannelUnread struct {
	TeamID       string `json:"team_id"`
	ChannelID    string `json:"channel_id"`
	MsgCount     int64  `json:"msg_count"`
	MentionCount int64  `json:"mention_count"`
}

type PostList struct {
	Order      []string        `json:"order"`
	Posts      map[string]Post `json:"posts"`
	NextPostID string          `json:"next_post_id"`
	PrevPostID string          `json:"prev_post_id"`
}

// Ordered returns the posts following Order.
func (l PostList) Ordered() []Post {
	out := make([]Post, 0, len(l.Order))
	for _, id := range l.Order {
		if p, ok := l.Posts[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Post is a chat message. Known fields are typed; anything else the backend
// sends is kept in Extra and written back untouched.
type Post struct {
	ID        string
	ChannelID string
	Message   string
	RootID    string
	UserID    string
	CreateAt  int64
	FileIDs   []string
	Props     map[string]any
	Extra     map[string]json.RawMessage
}

var postKnownKeys = map[string]struct{}{
	"id": {}, "channel_id": {}, "message": {}, "root_id": {},
	"user_id": {}, "create_at": {}, "file_ids": {}, "props": {},
}

type postFields struct {
	ID        string         `json:"id,omitempty"`
	ChannelID string         `json:"channel_id"`
	Message   string         `json:"message"`
	RootID    string         `json:"root_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	CreateAt  int64          `json:"create_at,omitempty"`
	FileIDs   []string       `json:"file_ids,omitempty"`
	Props     map[string]any `json:"props,omitempty"`
}

func (p Post) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(postFields{
		ID:        p.ID,
		ChannelID: p.ChannelID,
		Message:   p.Message,
		RootID:    p.RootID,
		UserID:    p.UserID,
		CreateAt:  p.CreateAt,
		FileIDs:   p.FileIDs,
		Props:     p.Props,
	})
	if err != nil || len(p.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(p.Extra)+8)
	for k, v := range p.Extra {
		if _, isKnown := postKnownKeys[k]; !isKnown {
			merged[k] = v
		}
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (p *Post) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("remotechat: decode post: %w", err)
	}
	var known postFields
	if err := json.Unmarshal(data, &known); err != nil {
		return fmt.Errorf("remotechat: decode post: %w", err)
	}

	*p = Post{
		ID:        known.ID,
		ChannelID: known.ChannelID,
		Message:   known.Message,
		RootID:    known.RootID,
		UserID:    known.UserID,
		CreateAt:  known.CreateAt,
		FileIDs:   known.FileIDs,
		Props:     known.Props,
	}
	for k, v := range raw {
		if _, isKnown := postKnownKeys[k]; isKnown {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return nil
}

// Clone returns a deep copy, so the archived copy never aliases the caller's post.
func (p Post) Clone() Post {
	out := p
	if p.FileIDs != nil {
		out.FileIDs = append([]string(nil), p.FileIDs...)
	}
	if p.Props != nil {
		out.Props = cloneValue(p.Props).(map[string]any)
	}
	if p.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Prop returns the string value of a props key.
func (p Post) Prop(key string) string {
	if p.Props == nil {
		return ""
	}
	if v, ok := p.Props[key].(string); ok {
		return v
	}
	return ""
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}
