package services

import (
	"context"
	"io"
	"net/http"

	"situation-room/internal/entity"
	"situation-room/internal/notification"
	"situation-room/internal/remotechat"
)

// ChatGateway is the subset of the remote chat backend the services use.
// *remotechat.Client implements it.
type ChatGateway interface {
	CreateUser(ctx context.Context, in remotechat.NewUser) (remotechat.User, error)
	UpdateRoles(ctx context.Context, userID, roles string) error
	CreateAccessToken(ctx context.Context, userID, description string) (remotechat.UserAccessToken, error)
	RevokeAccessToken(ctx context.Context, tokenID string) error
	AddTeamMember(ctx context.Context, teamID, userID string) error

	CreateChannel(ctx context.Context, token string, in remotechat.Channel) (remotechat.Channel, error)
	DeleteChannel(ctx context.Context, token, channelID string) error
	AddChannelMember(ctx context.Context, token, channelID, remoteUserID string) error
	RemoveChannelMember(ctx context.Context, token, channelID, remoteUserID string) error
	GetChannelUnread(ctx context.Context, token, remoteUserID, channelID string) (remotechat.ChannelUnread, error)

	CreatePost(ctx context.Context, token string, in remotechat.Post) (remotechat.Post, error)
	DeletePost(ctx context.Context, token, postID string) error
	GetChannelPosts(ctx context.Context, token, channelID string, page, perPage int) (remotechat.PostList, error)

	Forward(ctx context.Context, token, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error)
}

type EntityReader interface {
	Get(ctx context.Context, tenantID, entityType, id string) (entity.Snapshot, error)
	ClassFor(entityType string) (string, error)
}

type Directory interface {
	DisplayName(ctx context.Context, tenantID, userID string) string
	Email(ctx context.Context, tenantID, userID string) string
}

type Notifier interface {
	Notify(m notification.RoomMail)
}

type DocumentStore interface {
	Store(ctx context.Context, dir, name string, content []byte, contentType string) (string, error)
	Retrieve(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type AttachmentValidator interface {
	Validate(name string, content []byte) (string, error)
}

type nopNotifier struct{}

func (nopNotifier) Notify(notification.RoomMail) {}

type idDirectory struct{}

func (idDirectory) DisplayName(_ context.Context, _, userID string) string { return userID }
func (idDirectory) Email(context.Context, string, string) string           { return "" }
