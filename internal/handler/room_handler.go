// Package handler provides HTTP handlers for the situation room API.
package handler

import (
	"context"
	"net/http"

	"situation-room/internal/remotechat"
	"situation-room/internal/services"
	"situation-room/internal/transport/httpdto"
	situation_errors "situation-room/pkg/errors"

	"github.com/gin-gonic/gin"
)

// RoomAPI is the room lifecycle as the handlers see it.
type RoomAPI interface {
	CreateChannel(ctx context.Context, req services.CreateRoomRequest) (map[string]any, error)
	RemoveChannel(ctx context.Context, roomID string) error
	InviteUsers(ctx context.Context, roomID string, users []string) (services.Membership, error)
	AcceptInvitation(ctx context.Context, roomID string) (services.Membership, error)
	RemoveParticipant(ctx context.Context, roomID, target string) (services.Membership, error)
	Resolve(ctx context.Context, roomID string, req services.ResolveRequest) (services.ChatContext, error)
	PostMessage(ctx context.Context, post remotechat.Post) (remotechat.Post, error)
	GetChannels(ctx context.Context, by, typ, objectIDs string) ([]services.ChatContext, error)
	SearchChannels(ctx context.Context, params services.SearchParams) ([]services.ChatContext, error)
	GetChannelContext(ctx context.Context, roomID string) (services.ChatContext, error)
	GetUnreadCount(ctx context.Context) ([]services.UnreadCount, error)
	ReadResolvedChannels(ctx context.Context) (int64, error)
}

type RoomHandler struct {
	service RoomAPI
}

func NewRoomHandler(service RoomAPI) *RoomHandler {
	return &RoomHandler{service: service}
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req httpdto.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	payload, err := h.service.CreateChannel(c.Request.Context(), services.CreateRoomRequest{
		Name:          req.Name,
		Purpose:       req.Purpose,
		Header:        req.Header,
		EntityType:    req.EntityType,
		SituationType: req.SituationType,
		Participants:  req.Participants,
		ObjectIDs:     req.ObjectIDs,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(payload))
}

func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.service.GetChannels(c.Request.Context(), c.Query("by"), c.Query("type"), c.Query("objectIds"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(rooms))
}

func (h *RoomHandler) Search(c *gin.Context) {
	rooms, err := h.service.SearchChannels(c.Request.Context(), services.SearchParams{
		Text:     c.Query("searchText"),
		ObjectID: c.Query("objectId"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(rooms))
}

func (h *RoomHandler) UnreadCount(c *gin.Context) {
	counts, err := h.service.GetUnreadCount(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(counts))
}

func (h *RoomHandler) ReadResolved(c *gin.Context) {
	n, err := h.service.ReadResolvedChannels(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReadResolvedResponse{Updated: n}))
}

func (h *RoomHandler) Delete(c *gin.Context) {
	if err := h.service.RemoveChannel(c.Request.Context(), c.Param("channel_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *RoomHandler) Context(c *gin.Context) {
	view, err := h.service.GetChannelContext(c.Request.Context(), c.Param("channel_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *RoomHandler) Invite(c *gin.Context) {
	var req httpdto.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	m, err := h.service.InviteUsers(c.Request.Context(), c.Param("channel_id"), req.Users)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(m))
}

func (h *RoomHandler) RemoveMember(c *gin.Context) {
	m, err := h.service.RemoveParticipant(c.Request.Context(), c.Param("channel_id"), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(m))
}

func (h *RoomHandler) Join(c *gin.Context) {
	m, err := h.service.AcceptInvitation(c.Request.Context(), c.Param("channel_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(m))
}

func (h *RoomHandler) Resolve(c *gin.Context) {
	var req httpdto.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	view, err := h.service.Resolve(c.Request.Context(), c.Param("channel_id"), services.ResolveRequest{
		Types:  req.Types,
		Remark: req.Remark,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

// Post takes a backend post object as-is so unknown fields survive.
func (h *RoomHandler) Post(c *gin.Context) {
	var post remotechat.Post
	if err := c.ShouldBindJSON(&post); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	created, err := h.service.PostMessage(c.Request.Context(), post)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(created))
}

func writeError(c *gin.Context, err error) {
	status := situation_errors.HTTPStatus(err)
	_ = c.Error(err)
	c.JSON(status, httpdto.NewFaultResponse(err, errorCode(status)))
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusServiceUnavailable:
		return "REMOTE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
