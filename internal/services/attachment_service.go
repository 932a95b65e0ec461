package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"situation-room/internal/domain/room"
	"situation-room/internal/events"
	"situation-room/internal/remotechat"
	"situation-room/internal/repository"
	"situation-room/internal/storage"
	situation_errors "situation-room/pkg/errors"
	"situation-room/pkg/logger"
)

const (
	attachmentPostType = "system_attachment"
	postScanPageSize   = 200
	postScanMaxPages   = 50
)

type FileUpload struct {
	Name    string
	Content []byte
}

// Document is a stored attachment together with its bytes.
type Document struct {
	Attachment room.Attachment
	Content    []byte
}

type AttachmentServiceDeps struct {
	Rooms        repository.RoomRepository
	Provisioning *ProvisioningService
	Chat         ChatGateway
	Store        DocumentStore
	Validator    AttachmentValidator
	Directory    Directory
	Events       events.Publisher
	TeamID       string
	Logger       *logger.Logger
}

// AttachmentService keeps the per-room attachment list in step with the
// document store and the room's chat history.
type AttachmentService struct {
	rooms        repository.RoomRepository
	provisioning *ProvisioningService
	chat         ChatGateway
	store        DocumentStore
	validator    AttachmentValidator
	directory    Directory
	events       events.Publisher
	teamID       string
	logger       *logger.Logger
	now          func() time.Time
	newID        func() string
}

func NewAttachmentService(d AttachmentServiceDeps) *AttachmentService {
	s := &AttachmentService{
		rooms:        d.Rooms,
		provisioning: d.Provisioning,
		chat:         d.Chat,
		store:        d.Store,
		validator:    d.Validator,
		directory:    d.Directory,
		events:       d.Events,
		teamID:       d.TeamID,
		logger:       logger.OrGlobal(d.Logger),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return uuid.NewString() },
	}
	if s.directory == nil {
		s.directory = idDirectory{}
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	return s
}

// Upload stores a file, announces it in the room and records its metadata.
// It returns the room's attachment list.
func (s *AttachmentService) Upload(ctx context.Context, roomID string, file FileUpload, comment string) ([]room.Attachment, error) {
	id, r, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(r, id.UserID); err != nil {
		return nil, err
	}
	if err := requireOpen(r); err != nil {
		return nil, err
	}
	contentType, err := s.validator.Validate(file.Name, file.Content)
	if err != nil {
		return nil, err
	}

	name := UniqueAttachmentName(r.AttachmentList(), path.Base(strings.TrimSpace(file.Name)))
	attachmentID := s.newID()
	dir := path.Join("rooms", r.ID, attachmentID)

	key, err := s.store.Store(ctx, dir, name, file.Content, contentType)
	if err != nil {
		return nil, situation_errors.Storage(err, CodeAttachmentStorage, "Unable to store attachment {0}", name)
	}

	uploaderName := s.directory.DisplayName(ctx, id.TenantID, id.UserID)
	author, err := s.provisioning.EnsureProvisioned(ctx, id.TenantID, id.UserID, s.teamID)
	if err != nil {
		s.discard(ctx, key)
		return nil, err
	}
	_, err = s.chat.CreatePost(ctx, author.ProxyToken, remotechat.Post{
		ChannelID: r.ID,
		Message:   fmt.Sprintf("%s attached %s", uploaderName, name),
		Props: map[string]any{
			"type":            attachmentPostType,
			"attachment_id":   attachmentID,
			"attachment_name": name,
			"comment":         comment,
		},
	})
	if err != nil {
		s.discard(ctx, key)
		return nil, situation_errors.RemoteSystem(err, CodeUnableToPostMessage, "Unable to announce attachment {0}", name)
	}

	now := s.now()
	added := room.Attachment{
		ID:             attachmentID,
		Name:           name,
		UploadedBy:     id.UserID,
		UploadedByName: uploaderName,
		CreatedAt:      now,
		Metadata: room.AttachmentMetadata{
			Path:        key,
			Comment:     comment,
			ContentType: contentType,
			SizeBytes:   int64(len(file.Content)),
		},
	}
	var list []room.Attachment
	err = commitRoom(ctx, s.rooms, &r, func(r *room.Room) error {
		list = r.AttachmentList()
		// a concurrent upload may have taken the name meanwhile
		added.Name = UniqueAttachmentName(list, name)
		list = append(list, added)
		r.SetAttachments(list)
		if r.IsOpen() {
			r.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		logDivergence(s.logger, ctx, r.ID, "upload attachment", err)
		return nil, err
	}

	s.publishEvent(ctx, events.EventTypeAttachmentAdded, r, id.UserID, map[string]any{"attachment_id": attachmentID, "name": added.Name})
	return list, nil
}

// GetDocument returns an attachment's bytes. Pending participants may read.
func (s *AttachmentService) GetDocument(ctx context.Context, roomID, attachmentID string) (Document, error) {
	id, r, err := s.load(ctx, roomID)
	if err != nil {
		return Document{}, err
	}
	if _, ok := r.Participant(id.UserID); !ok {
		return Document{}, situation_errors.Authorization(CodeParticipantNotBelong, "{0} does not belong to {1}", id.UserID, r.Name)
	}
	a, ok := r.FindAttachment(attachmentID)
	if !ok {
		return Document{}, situation_errors.NotFound(CodeAttachmentNotExists, "Attachment {0} does not exist", attachmentID)
	}

	content, err := s.store.Retrieve(ctx, a.Metadata.Path)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Document{}, situation_errors.NotFound(CodeAttachmentNotExists, "Attachment {0} does not exist", attachmentID)
		}
		return Document{}, situation_errors.Storage(err, CodeAttachmentStorage, "Unable to read attachment {0}", a.Name)
	}
	return Document{Attachment: a, Content: content}, nil
}

// DeleteAttachment removes the announcing post (best effort), the stored
// bytes and the metadata, in that order. It returns the remaining list.
func (s *AttachmentService) DeleteAttachment(ctx context.Context, roomID, attachmentID string) ([]room.Attachment, error) {
	id, r, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(r, id.UserID); err != nil {
		return nil, err
	}
	a, ok := r.FindAttachment(attachmentID)
	if !ok {
		return nil, situation_errors.NotFound(CodeAttachmentNotExists, "Attachment {0} does not exist", attachmentID)
	}

	s.deleteAnnouncement(ctx, id, r, attachmentID)

	if err := s.store.Delete(ctx, a.Metadata.Path); err != nil {
		return nil, situation_errors.Storage(err, CodeAttachmentStorage, "Unable to delete attachment {0}", a.Name)
	}

	now := s.now()
	var remaining []room.Attachment
	err = commitRoom(ctx, s.rooms, &r, func(r *room.Room) error {
		remaining = make([]room.Attachment, 0)
		for _, existing := range r.AttachmentList() {
			if existing.ID != attachmentID {
				remaining = append(remaining, existing)
			}
		}
		r.SetAttachments(remaining)
		r.UpdatedAt = now
		if r.IsResolved() {
			if res := r.GetResolution(); res != nil {
				r.UpdatedAt = res.ResolvedAt
			}
		}
		return nil
	})
	if err != nil {
		logDivergence(s.logger, ctx, r.ID, "delete attachment", err)
		return nil, err
	}

	s.publishEvent(ctx, events.EventTypeAttachmentDeleted, r, id.UserID, map[string]any{"attachment_id": attachmentID})
	return remaining, nil
}

// deleteAnnouncement walks the channel history for the post carrying
// attachmentID. Failures are logged and never block the deletion.
func (s *AttachmentService) deleteAnnouncement(ctx context.Context, id identity, r room.Room, attachmentID string) {
	log := s.logger.WithContext(ctx)
	owner, err := s.provisioning.EnsureProvisioned(ctx, id.TenantID, r.CreatedBy, s.teamID)
	if err != nil {
		log.Warnf("attachment %s: no creator token for %s: %v", attachmentID, r.ID, err)
		return
	}

	for page := 0; page < postScanMaxPages; page++ {
		list, err := s.chat.GetChannelPosts(ctx, owner.ProxyToken, r.ID, page, postScanPageSize)
		if err != nil {
			fault := situation_errors.RemoteSystem(err, CodeUnableToGetChannelPost, "Unable to list posts of {0}", r.ID)
			log.Warnf("attachment %s: %v", attachmentID, fault)
			return
		}
		posts := list.Ordered()
		for _, p := range posts {
			if p.Prop("attachment_id") != attachmentID {
				continue
			}
			if err := s.chat.DeletePost(ctx, owner.ProxyToken, p.ID); err != nil {
				log.Warnf("attachment %s: delete post %s failed: %v", attachmentID, p.ID, err)
			}
			return
		}
		if len(posts) < postScanPageSize {
			break
		}
	}
	log.Warnf("attachment %s: announcing post not found in %s", attachmentID, r.ID)
}

func (s *AttachmentService) load(ctx context.Context, roomID string) (identity, room.Room, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return identity{}, room.Room{}, err
	}
	return loadRoomFor(ctx, s.rooms, id, roomID)
}

func (s *AttachmentService) discard(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.WithContext(ctx).Warnf("orphaned attachment object %s: %v", key, err)
	}
}

func (s *AttachmentService) publishEvent(ctx context.Context, eventType string, r room.Room, actor string, payload any) {
	env := events.NewRoomEnvelope(eventType, r.TenantID, r.ID, actor, payload)
	if err := s.events.Publish(ctx, env); err != nil {
		s.logger.WithContext(ctx).Warnf("publish %s for %s failed: %v", eventType, r.ID, err)
	}
}

// UniqueAttachmentName suffixes name with (1), (2), ... until no existing
// attachment carries it. Names compare case-insensitively; the caller's
// casing is kept.
func UniqueAttachmentName(existing []room.Attachment, name string) string {
	taken := func(candidate string) bool {
		for _, a := range existing {
			if strings.EqualFold(a.Name, candidate) {
				return true
			}
		}
		return false
	}
	if !taken(name) {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}
