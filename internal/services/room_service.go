package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"situation-room/internal/cache"
	"situation-room/internal/domain/room"
	"situation-room/internal/domain/token"
	"situation-room/internal/entity"
	"situation-room/internal/events"
	"situation-room/internal/notification"
	"situation-room/internal/remotechat"
	"situation-room/internal/repository"
	situation_errors "situation-room/pkg/errors"
	"situation-room/pkg/logger"
)

const (
	remoteNameLength   = 22
	remoteNameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	resolutionPostType = "system_resolution"
)

type RequestValidator interface {
	Validate(i interface{}) error
}

type CreateRoomRequest struct {
	Name          string   `json:"name" validate:"notblank"`
	Purpose       string   `json:"purpose" validate:"notblank"`
	Header        string   `json:"header"`
	EntityType    string   `json:"entityType" validate:"notblank"`
	SituationType string   `json:"situationType" validate:"notblank"`
	Participants  []string `json:"participants" validate:"min=1,dive,notblank"`
	ObjectIDs     []string `json:"objectIds" validate:"min=1,dive,notblank"`
}

type ResolveRequest struct {
	Types  []string `json:"types" validate:"min=1,dive,notblank"`
	Remark string   `json:"remark"`
}

type SearchParams struct {
	Text     string
	ObjectID string
}

type ParticipantView struct {
	UserName  string     `json:"user_name"`
	Status    string     `json:"status"`
	InvitedAt time.Time  `json:"invited_at"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
}

// Membership is the participant list of one room.
type Membership struct {
	RoomID       string            `json:"room_id"`
	RoomStatus   string            `json:"room_status"`
	Participants []ParticipantView `json:"participants"`
}

type UnreadCount struct {
	ChannelID    string `json:"channel_id"`
	TeamID       string `json:"team_id"`
	MsgCount     int64  `json:"msg_count"`
	MentionCount int64  `json:"mention_count"`
}

type RoomServiceDeps struct {
	Rooms        repository.RoomRepository
	Provisioning *ProvisioningService
	Chat         ChatGateway
	Entities     EntityReader
	Directory    Directory
	Mailer       Notifier
	Events       events.Publisher
	Validator    RequestValidator
	Cache        cache.Cache
	RoomsTTL     time.Duration
	TeamID       string
	AppURL       string
	Logger       *logger.Logger
}

// RoomService runs the room lifecycle. Every mutation calls the chat
// backend first and writes locally only after it succeeds; the local
// transaction never spans a remote call.
type RoomService struct {
	rooms        repository.RoomRepository
	provisioning *ProvisioningService
	chat         ChatGateway
	entities     EntityReader
	directory    Directory
	mailer       Notifier
	events       events.Publisher
	validator    RequestValidator
	cache        cache.Cache
	roomsTTL     time.Duration
	teamID       string
	appURL       string
	logger       *logger.Logger
	now          func() time.Time
}

func NewRoomService(d RoomServiceDeps) *RoomService {
	s := &RoomService{
		rooms:        d.Rooms,
		provisioning: d.Provisioning,
		chat:         d.Chat,
		entities:     d.Entities,
		directory:    d.Directory,
		mailer:       d.Mailer,
		events:       d.Events,
		validator:    d.Validator,
		cache:        d.Cache,
		roomsTTL:     d.RoomsTTL,
		teamID:       d.TeamID,
		appURL:       d.AppURL,
		logger:       logger.OrGlobal(d.Logger),
		now:          func() time.Time { return time.Now().UTC() },
	}
	if s.directory == nil {
		s.directory = idDirectory{}
	}
	if s.mailer == nil {
		s.mailer = nopNotifier{}
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	return s
}

// CreateChannel opens a room on the backend and stores it locally with the
// creator joined and every invitee pending. It returns the backend payload.
func (s *RoomService) CreateChannel(ctx context.Context, req CreateRoomRequest) (map[string]any, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	entityType := strings.ToLower(strings.TrimSpace(req.EntityType))
	if _, err := s.entities.ClassFor(entityType); err != nil {
		return nil, situation_errors.Validation(CodeUnknownEntityType, "Unknown entity type {0}", req.EntityType)
	}

	objectIDs := uniqueTrimmed(req.ObjectIDs)
	snapshots := make([]any, 0, len(objectIDs))
	for _, objectID := range objectIDs {
		snap, err := s.entities.Get(ctx, id.TenantID, entityType, objectID)
		switch {
		case errors.Is(err, entity.ErrUnknownType):
			return nil, situation_errors.Validation(CodeUnknownEntityType, "Unknown entity type {0}", req.EntityType)
		case errors.Is(err, entity.ErrNotFound):
			return nil, situation_errors.NotFound(CodeEntityNotExists, "{0} {1} does not exist", entityType, objectID)
		case err != nil:
			return nil, fmt.Errorf("read entity %s/%s: %w", entityType, objectID, err)
		}
		snapshots = append(snapshots, snap)
	}

	creator, err := s.provisioning.EnsureProvisioned(ctx, id.TenantID, id.UserID, s.teamID)
	if err != nil {
		return nil, err
	}
	var invitees []string
	for _, user := range uniqueTrimmed(req.Participants) {
		if user == id.UserID {
			continue
		}
		if _, err := s.provisioning.EnsureProvisioned(ctx, id.TenantID, user, s.teamID); err != nil {
			return nil, err
		}
		invitees = append(invitees, user)
	}

	remoteName, err := newRemoteName()
	if err != nil {
		return nil, fmt.Errorf("generate channel name: %w", err)
	}
	ch, err := s.chat.CreateChannel(ctx, creator.ProxyToken, remotechat.Channel{
		TeamID:      s.teamID,
		Name:        remoteName,
		DisplayName: strings.TrimSpace(req.Name),
		Purpose:     req.Purpose,
		Header:      req.Header,
		Type:        room.TypePrivate,
	})
	if err != nil {
		return nil, situation_errors.RemoteSystem(err, CodeUnableToCreateChannel, "Unable to create chat room {0}", req.Name)
	}

	now := s.now()
	r := &room.Room{
		ID:            ch.ID,
		TenantID:      id.TenantID,
		Name:          strings.TrimSpace(req.Name),
		RemoteName:    remoteName,
		TeamID:        s.teamID,
		EntityType:    entityType,
		Description:   req.Purpose,
		Header:        req.Header,
		RoomType:      room.TypePrivate,
		SituationType: strings.TrimSpace(req.SituationType),
		Status:        room.StatusOpen,
		CreatedBy:     id.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.SetObjectIDs(objectIDs)
	r.SetAttachments(nil)
	if err := r.SetContexts(snapshots); err != nil {
		return nil, fmt.Errorf("encode room context: %w", err)
	}
	if r.Chats, err = room.NewArchive().Encode(); err != nil {
		return nil, fmt.Errorf("encode chat archive: %w", err)
	}
	r.Participants = append(r.Participants, room.Participant{
		RoomID:     r.ID,
		UserName:   id.UserID,
		TenantID:   id.TenantID,
		Status:     room.ParticipantJoined,
		RoomStatus: room.StatusOpen,
		InvitedAt:  now,
		JoinedAt:   &now,
	})
	for _, user := range invitees {
		r.AddParticipant(user, now)
	}

	if err := s.rooms.Create(ctx, r); err != nil {
		s.divergence(ctx, r.ID, "create channel", err)
		return nil, err
	}

	s.mailInvitees(ctx, r, id, invitees)
	s.publish(ctx, events.EventTypeRoomCreated, r.TenantID, r.ID, id.UserID, Project(*r, id.UserID))

	if ch.Payload == nil {
		return map[string]any{"id": ch.ID, "name": ch.Name, "display_name": ch.DisplayName}, nil
	}
	return ch.Payload, nil
}

// RemoveChannel deletes a room. Only its creator may do so.
func (s *RoomService) RemoveChannel(ctx context.Context, roomID string) error {
	id, r, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !r.IsCreator(id.UserID) {
		return situation_errors.Authorization(CodeNotRoomCreator, "Only the room creator can remove room {0}", roomID)
	}

	creator, err := s.tokenFor(ctx, id.TenantID, r.CreatedBy)
	if err != nil {
		return err
	}
	if err := s.chat.DeleteChannel(ctx, creator.ProxyToken, r.ID); err != nil {
		if !remotechat.IsNotFound(err) {
			return situation_errors.RemoteSystem(err, CodeUnableToDeleteChannel, "Unable to remove chat room {0}", roomID)
		}
		s.logger.WithContext(ctx).Warnf("channel %s already gone on the chat backend", r.ID)
	}

	if err := s.rooms.Delete(ctx, id.TenantID, r.ID); err != nil {
		s.divergence(ctx, r.ID, "remove channel", err)
		return err
	}
	s.publish(ctx, events.EventTypeRoomDeleted, r.TenantID, r.ID, id.UserID, nil)
	return nil
}

// InviteUsers adds users to an open room as pending participants.
func (s *RoomService) InviteUsers(ctx context.Context, roomID string, users []string) (Membership, error) {
	users = uniqueTrimmed(users)
	if len(users) == 0 {
		return Membership{}, situation_errors.Validation(CodeInvalidRequest, "Missing or invalid fields: {0}", "users")
	}
	id, r, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return Membership{}, err
	}
	if err := requireActive(r, id.UserID); err != nil {
		return Membership{}, err
	}
	if err := requireOpen(r); err != nil {
		return Membership{}, err
	}
	for _, user := range users {
		if _, ok := r.Participant(user); ok {
			return Membership{}, situation_errors.Conflict(CodeAlreadyParticipant, "{0} is already a participant of {1}", user, r.Name)
		}
	}

	for _, user := range users {
		if _, err := s.provisioning.EnsureProvisioned(ctx, id.TenantID, user, r.TeamID); err != nil {
			return Membership{}, err
		}
	}

	now := s.now()
	err = commitRoom(ctx, s.rooms, &r, func(r *room.Room) error {
		if err := requireActive(*r, id.UserID); err != nil {
			return err
		}
		if err := requireOpen(*r); err != nil {
			return err
		}
		for _, user := range users {
			if _, ok := r.Participant(user); ok {
				return situation_errors.Conflict(CodeAlreadyParticipant, "{0} is already a participant of {1}", user, r.Name)
			}
		}
		for _, user := range users {
			r.AddParticipant(user, now)
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Membership{}, err
	}

	s.mailInvitees(ctx, &r, id, users)
	s.publish(ctx, events.EventTypeParticipantInvited, r.TenantID, r.ID, id.UserID, map[string]any{"users": users})
	return membershipOf(r), nil
}

// AcceptInvitation joins the caller to a room they were invited to.
// Accepting twice is a no-op.
func (s *RoomService) AcceptInvitation(ctx context.Context, roomID string) (Membership, error) {
	id, r, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return Membership{}, err
	}
	p, ok := r.Participant(id.UserID)
	if !ok {
		return Membership{}, situation_errors.Authorization(CodeUserNotInvited, "{0} is not invited to {1}", id.UserID, r.Name)
	}
	if p.Status == room.ParticipantJoined {
		return membershipOf(r), nil
	}

	creator, err := s.tokenFor(ctx, id.TenantID, r.CreatedBy)
	if err != nil {
		return Membership{}, err
	}
	self, err := s.tokenFor(ctx, id.TenantID, id.UserID)
	if err != nil {
		return Membership{}, err
	}
	if err := s.chat.AddChannelMember(ctx, creator.ProxyToken, r.ID, self.RemoteUserID); err != nil {
		return Membership{}, situation_errors.RemoteSystem(err, CodeUnableToJoin, "Unable to join {0}", r.Name)
	}

	now := s.now()
	err = commitRoom(ctx, s.rooms, &r, func(r *room.Room) error {
		p, ok := r.Participant(id.UserID)
		if !ok {
			return situation_errors.Authorization(CodeUserNotInvited, "{0} is not invited to {1}", id.UserID, r.Name)
		}
		if p.Status == room.ParticipantJoined {
			return nil
		}
		p.Status = room.ParticipantJoined
		p.JoinedAt = &now
		r.TotalMessageCount++
		if r.IsOpen() {
			r.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		s.divergence(ctx, r.ID, "accept invitation", err)
		return Membership{}, err
	}
	s.publish(ctx, events.EventTypeParticipantJoined, r.TenantID, r.ID, id.UserID, nil)
	return membershipOf(r), nil
}

// RemoveParticipant takes target out of the room. The creator can never be removed.
func (s *RoomService) RemoveParticipant(ctx context.Context, roomID, target string) (Membership, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Membership{}, situation_errors.Validation(CodeInvalidRequest, "Missing or invalid fields: {0}", "user_id")
	}
	id, r, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return Membership{}, err
	}
	if r.IsCreator(target) {
		return Membership{}, situation_errors.Conflict(CodeCreatorNotRemovable, "The creator of {0} cannot be removed", r.Name)
	}
	if err := requireActive(r, id.UserID); err != nil {
		return Membership{}, err
	}
	if err := requireOpen(r); err != nil {
		return Membership{}, err
	}
	p, ok := r.Participant(target)
	if !ok {
		return Membership{}, situation_errors.NotFound(CodeParticipantNotExists, "{0} is not a participant of {1}", target, r.Name)
	}

	if p.Status == room.ParticipantJoined {
		creator, err := s.tokenFor(ctx, id.TenantID, r.CreatedBy)
		if err != nil {
			return Membership{}, err
		}
		member, err := s.provisioning.Mapping(ctx, id.TenantID, target)
		if err != nil {
			return Membership{}, fmt.Errorf("load mapping of %s: %w", target, err)
		}
		if err := s.chat.RemoveChannelMember(ctx, creator.ProxyToken, r.ID, member.RemoteUserID); err != nil {
			return Membership{}, situation_errors.RemoteSystem(err, CodeUnableToRemoveMember, "Unable to remove {0} from {1}", target, r.Name)
		}
	}

	now := s.now()
	err = commitRoom(ctx, s.rooms, &r, func(r *room.Room) error {
		if r.RemoveParticipant(target) && r.IsOpen() {
			r.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		s.divergence(ctx, r.ID, "remove participant", err)
		return Membership{}, err
	}
	s.publish(ctx, events.EventTypeParticipantRemoved, r.TenantID, r.ID, id.UserID, map[string]any{"user": target})
	return membershipOf(r), nil
}

// Resolve closes an open room with the given resolution tags.
func (s *RoomService) Resolve(ctx context.Context, roomID string, req ResolveRequest) (ChatContext, error) {
	if err := s.validator.Validate(req); err != nil {
		return ChatContext{}, err
	}
	id, r, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return ChatContext{}, err
	}
	if err := requireActive(r, id.UserID); err != nil {
		return ChatContext{}, err
	}
	if err := requireOpen(r); err != nil {
		return ChatContext{}, err
	}

	resolver, err := s.tokenFor(ctx, id.TenantID, id.UserID)
	if err != nil {
		return ChatContext{}, err
	}
	resolverName := s.directory.DisplayName(ctx, id.TenantID, id.UserID)
	types := uniqueTrimmed(req.Types)
	_, err = s.chat.CreatePost(ctx, resolver.ProxyToken, remotechat.Post{
		ChannelID: r.ID,
		Message:   fmt.Sprintf("%s resolved this situation: %s", resolverName, strings.Join(types, ", ")),
		Props: map[string]any{
			"type":             resolutionPostType,
			"resolution_types": types,
			"remark":           req.Remark,
			"resolved_by":      id.UserID,
		},
	})
	if err != nil {
		return ChatContext{}, situation_errors.RemoteSystem(err, CodeUnableToPostMessage, "Unable to post resolution to {0}", r.Name)
	}

	resolution := room.Resolution{
		Types:          types,
		Remark:         req.Remark,
		ResolvedBy:     id.UserID,
		ResolvedByName: resolverName,
		ResolvedAt:     s.now(),
	}
	err = commitRoom(ctx, s.rooms, &r, func(r *room.Room) error {
		if err := requireOpen(*r); err != nil {
			return err
		}
		r.Resolve(resolution)
		return nil
	})
	if err != nil {
		s.divergence(ctx, r.ID, "resolve", err)
		return ChatContext{}, err
	}

	s.mailer.Notify(notification.RoomMail{
		Template:         notification.TemplateResolvedRoom,
		RoomName:         r.Name,
		ResolverFullName: resolverName,
		AppURL:           s.appURL,
		Recipients:       s.recipients(ctx, id.TenantID, r.ParticipantNames()),
	})
	view := Project(r, id.UserID)
	s.publish(ctx, events.EventTypeRoomResolved, r.TenantID, r.ID, id.UserID, view)
	return view, nil
}

// PostMessage relays a message to the backend and archives a copy.
func (s *RoomService) PostMessage(ctx context.Context, post remotechat.Post) (remotechat.Post, error) {
	id, r, err := s.loadRoom(ctx, post.ChannelID)
	if err != nil {
		return remotechat.Post{}, err
	}
	if err := requireActive(r, id.UserID); err != nil {
		return remotechat.Post{}, err
	}
	if err := requireOpen(r); err != nil {
		return remotechat.Post{}, err
	}

	author, err := s.tokenFor(ctx, id.TenantID, id.UserID)
	if err != nil {
		return remotechat.Post{}, err
	}
	created, err := s.chat.CreatePost(ctx, author.ProxyToken, post)
	if err != nil {
		return remotechat.Post{}, situation_errors.RemoteSystem(err, CodeUnableToPostMessage, "Unable to post message to {0}", r.Name)
	}

	archived := created.Clone()
	if archived.ChannelID == "" {
		archived = post.Clone()
	}
	now := s.now()
	// The message already exists remotely, so it is archived even if the
	// room was resolved in the meantime. A resolved room keeps its
	// resolution time as last update.
	err = commitRoom(ctx, s.rooms, &r, func(r *room.Room) error {
		if err := r.AppendChat(archived); err != nil {
			return err
		}
		r.TotalMessageCount++
		r.LastPostAt = &now
		if r.IsOpen() {
			r.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		s.divergence(ctx, r.ID, "post message", err)
		return remotechat.Post{}, err
	}
	s.publish(ctx, events.EventTypeMessagePosted, r.TenantID, r.ID, id.UserID, map[string]any{"post_id": created.ID})
	return created, nil
}

// GetChannels lists the caller's rooms. Object ids take precedence; otherwise
// by="user" (or empty) filters on the caller's participant status and any
// other value filters on the room status. An empty typ keeps everything.
func (s *RoomService) GetChannels(ctx context.Context, by, typ, objectIDs string) ([]ChatContext, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	rooms, err := s.userRooms(ctx, id)
	if err != nil {
		return nil, err
	}

	var keep func(room.Room) bool
	switch ids := splitList(objectIDs); {
	case len(ids) > 0:
		keep = func(r room.Room) bool { return ReferencesAny(r, ids) }
	case typ == "":
		keep = func(room.Room) bool { return true }
	case by == "" || strings.EqualFold(by, "user"):
		keep = func(r room.Room) bool {
			p, ok := r.Participant(id.UserID)
			return ok && strings.EqualFold(p.Status, typ)
		}
	default:
		keep = func(r room.Room) bool { return strings.EqualFold(r.Status, typ) }
	}

	var out []room.Room
	for _, r := range rooms {
		if keep(r) {
			out = append(out, r)
		}
	}
	return ProjectAll(out, id.UserID), nil
}

// SearchChannels matches the caller's rooms against free text and an
// optional object id, most recently updated first.
func (s *RoomService) SearchChannels(ctx context.Context, params SearchParams) ([]ChatContext, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	rooms, err := s.userRooms(ctx, id)
	if err != nil {
		return nil, err
	}

	objectID := strings.TrimSpace(params.ObjectID)
	var out []room.Room
	for _, r := range rooms {
		if objectID != "" && !ReferencesAny(r, []string{objectID}) {
			continue
		}
		if !MatchesText(r, params.Text) {
			continue
		}
		out = append(out, r)
	}
	SortByUpdatedDesc(out)
	return ProjectAll(out, id.UserID), nil
}

// GetChannelContext returns one room. Pending participants may read it.
func (s *RoomService) GetChannelContext(ctx context.Context, roomID string) (ChatContext, error) {
	id, r, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return ChatContext{}, err
	}
	if _, ok := r.Participant(id.UserID); !ok {
		return ChatContext{}, situation_errors.Authorization(CodeParticipantNotBelong, "{0} does not belong to {1}", id.UserID, r.Name)
	}
	return Project(r, id.UserID), nil
}

// GetUnreadCount asks the backend for unread counts of every room the
// caller has joined. Rooms whose lookup fails are skipped.
func (s *RoomService) GetUnreadCount(ctx context.Context) ([]UnreadCount, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	rooms, err := s.rooms.ListForUser(ctx, id.TenantID, id.UserID)
	if err != nil {
		return nil, err
	}
	self, err := s.provisioning.Mapping(ctx, id.TenantID, id.UserID)
	if err != nil {
		if errors.Is(err, situation_errors.ErrNotFound) {
			return []UnreadCount{}, nil
		}
		return nil, err
	}

	counts := make([]UnreadCount, 0, len(rooms))
	for _, r := range rooms {
		if p, ok := r.Participant(id.UserID); !ok || p.Status != room.ParticipantJoined {
			continue
		}
		u, err := s.chat.GetChannelUnread(ctx, self.ProxyToken, self.RemoteUserID, r.ID)
		if err != nil {
			s.logger.WithContext(ctx).Warnf("unread count for %s failed: %v", r.ID, err)
			continue
		}
		counts = append(counts, UnreadCount{
			ChannelID:    r.ID,
			TeamID:       u.TeamID,
			MsgCount:     u.MsgCount,
			MentionCount: u.MentionCount,
		})
	}
	return counts, nil
}

// ReadResolvedChannels marks every resolved room of the caller as read.
func (s *RoomService) ReadResolvedChannels(ctx context.Context) (int64, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return 0, err
	}
	return s.rooms.MarkResolutionRead(ctx, id.TenantID, id.UserID)
}

func (s *RoomService) loadRoom(ctx context.Context, roomID string) (identity, room.Room, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return identity{}, room.Room{}, err
	}
	return loadRoomFor(ctx, s.rooms, id, roomID)
}

func loadRoomFor(ctx context.Context, rooms repository.RoomRepository, id identity, roomID string) (identity, room.Room, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return id, room.Room{}, situation_errors.Validation(CodeInvalidRoom, "Room id is required")
	}
	r, err := rooms.GetByID(ctx, id.TenantID, roomID)
	if err != nil {
		if errors.Is(err, situation_errors.ErrNotFound) {
			return id, room.Room{}, situation_errors.NotFound(CodeRoomNotExists, "Room {0} does not exist", roomID)
		}
		return id, room.Room{}, err
	}
	return id, r, nil
}

// maxCommitAttempts bounds how often a change is re-applied after another
// request saved the same room first.
const maxCommitAttempts = 5

// commitRoom applies change to r and saves it. When the save loses a race,
// r is reloaded and change runs again on the fresh copy, so change must
// re-check anything it relies on. r holds the saved state on success.
func commitRoom(ctx context.Context, rooms repository.RoomRepository, r *room.Room, change func(*room.Room) error) error {
	for attempt := 1; ; attempt++ {
		if err := change(r); err != nil {
			return err
		}
		err := rooms.Save(ctx, r)
		if !errors.Is(err, situation_errors.ErrStaleWrite) || attempt == maxCommitAttempts {
			return err
		}
		fresh, err := rooms.GetByID(ctx, r.TenantID, r.ID)
		if err != nil {
			return err
		}
		*r = fresh
	}
}

// userRooms serves the caller's room list from the cache for at most roomsTTL.
func (s *RoomService) userRooms(ctx context.Context, id identity) ([]room.Room, error) {
	return cache.ReadThrough(ctx, s.cache, cache.RoomsKey(id.TenantID, id.UserID), s.roomsTTL,
		func(ctx context.Context) ([]room.Room, error) {
			return s.rooms.ListForUser(ctx, id.TenantID, id.UserID)
		})
}

func (s *RoomService) tokenFor(ctx context.Context, tenantID, userID string) (token.ProxyTokenMapping, error) {
	return s.provisioning.EnsureProvisioned(ctx, tenantID, userID, s.teamID)
}

func (s *RoomService) mailInvitees(ctx context.Context, r *room.Room, id identity, invitees []string) {
	if len(invitees) == 0 {
		return
	}
	s.mailer.Notify(notification.RoomMail{
		Template:        notification.TemplateOpenRoom,
		RoomName:        r.Name,
		CreatorFullName: s.directory.DisplayName(ctx, id.TenantID, id.UserID),
		AppURL:          s.appURL,
		Recipients:      s.recipients(ctx, id.TenantID, invitees),
	})
}

func (s *RoomService) recipients(ctx context.Context, tenantID string, users []string) []notification.Recipient {
	out := make([]notification.Recipient, 0, len(users))
	for _, user := range users {
		out = append(out, notification.Recipient{
			Email:    s.directory.Email(ctx, tenantID, user),
			FullName: s.directory.DisplayName(ctx, tenantID, user),
		})
	}
	return out
}

func (s *RoomService) publish(ctx context.Context, eventType, tenantID, roomID, actor string, payload any) {
	env := events.NewRoomEnvelope(eventType, tenantID, roomID, actor, payload)
	if err := s.events.Publish(ctx, env); err != nil {
		s.logger.WithContext(ctx).Warnf("publish %s for %s failed: %v", eventType, roomID, err)
	}
}

func (s *RoomService) divergence(ctx context.Context, roomID, op string, err error) {
	logDivergence(s.logger, ctx, roomID, op, err)
}

func logDivergence(l *logger.Logger, ctx context.Context, roomID, op string, err error) {
	l.WithContext(ctx).Errorf("room %s diverged from chat backend: %s applied remotely, local write failed: %v", roomID, op, err)
}

// requireActive rejects callers that are not joined participants of r.
func requireActive(r room.Room, userID string) error {
	p, ok := r.Participant(userID)
	if !ok {
		return situation_errors.Authorization(CodeParticipantNotBelong, "{0} does not belong to {1}", userID, r.Name)
	}
	if p.Status == room.ParticipantPending {
		return situation_errors.Authorization(CodeParticipantPending, "{0} has not accepted the invitation to {1}", userID, r.Name)
	}
	return nil
}

func requireOpen(r room.Room) error {
	if !r.IsOpen() {
		return situation_errors.Conflict(CodeRoomNotOpen, "Room {0} is already resolved", r.Name)
	}
	return nil
}

func membershipOf(r room.Room) Membership {
	m := Membership{RoomID: r.ID, RoomStatus: r.Status, Participants: make([]ParticipantView, 0, len(r.Participants))}
	for _, p := range r.Participants {
		m.Participants = append(m.Participants, ParticipantView{
			UserName:  p.UserName,
			Status:    p.Status,
			InvitedAt: p.InvitedAt,
			JoinedAt:  p.JoinedAt,
		})
	}
	return m
}

// newRemoteName returns a random lowercase alphanumeric channel name.
func newRemoteName() (string, error) {
	out := make([]byte, 0, remoteNameLength)
	buf := make([]byte, remoteNameLength*2)
	for len(out) < remoteNameLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 252 is the largest multiple of 36 below 256
			if int(b) >= 252 {
				continue
			}
			out = append(out, remoteNameAlphabet[int(b)%len(remoteNameAlphabet)])
			if len(out) == remoteNameLength {
				break
			}
		}
	}
	return string(out), nil
}

func uniqueTrimmed(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func splitList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	return uniqueTrimmed(strings.Split(csv, ","))
}
