package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"situation-room/internal/domain/room"
	"situation-room/internal/services"
	"situation-room/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type AttachmentAPI interface {
	Upload(ctx context.Context, roomID string, file services.FileUpload, comment string) ([]room.Attachment, error)
	GetDocument(ctx context.Context, roomID, attachmentID string) (services.Document, error)
	DeleteAttachment(ctx context.Context, roomID, attachmentID string) ([]room.Attachment, error)
}

type AttachmentHandler struct {
	service AttachmentAPI
	maxSize int64
}

// NewAttachmentHandler reads at most maxSize+1 bytes per upload so oversized
// files reach the validator without being buffered whole.
func NewAttachmentHandler(service AttachmentAPI, maxSize int64) *AttachmentHandler {
	return &AttachmentHandler{service: service, maxSize: maxSize}
}

func (h *AttachmentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("file is required", "INVALID_REQUEST"))
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable file", "INVALID_REQUEST"))
		return
	}
	defer f.Close()

	var reader io.Reader = f
	if h.maxSize > 0 {
		reader = io.LimitReader(f, h.maxSize+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable file", "INVALID_REQUEST"))
		return
	}

	list, err := h.service.Upload(c.Request.Context(), c.Param("channel_id"),
		services.FileUpload{Name: header.Filename, Content: content}, c.PostForm("comment"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(list))
}

func (h *AttachmentHandler) Get(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("channel_id"), c.Param("attachment_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	contentType := doc.Attachment.Metadata.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Attachment.Name))
	c.Data(http.StatusOK, contentType, doc.Content)
}

func (h *AttachmentHandler) Delete(c *gin.Context) {
	list, err := h.service.DeleteAttachment(c.Request.Context(), c.Param("channel_id"), c.Param("attachment_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(list))
}
