package handler

import (
	"context"
	"io"
	"net/http"

	"situation-room/internal/services"
	"situation-room/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type TokenAPI interface {
	SessionToken(ctx context.Context) (services.TokenInfo, error)
}

type ForwardAPI interface {
	Forward(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error)
}

// ChatHandler serves direct access to the chat backend: the caller's
// session token and a raw passthrough.
type ChatHandler struct {
	tokens  TokenAPI
	forward ForwardAPI
}

func NewChatHandler(tokens TokenAPI, forward ForwardAPI) *ChatHandler {
	return &ChatHandler{tokens: tokens, forward: forward}
}

func (h *ChatHandler) Token(c *gin.Context) {
	info, err := h.tokens.SessionToken(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(info))
}

// Passthrough relays the request and copies the backend answer back,
// error statuses included.
func (h *ChatHandler) Passthrough(c *gin.Context) {
	resp, err := h.forward.Forward(c.Request.Context(), c.Request.Method, c.Param("path"),
		c.Request.URL.RawQuery, c.Request.Header, c.Request.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	defer resp.Body.Close()

	c.DataFromReader(resp.StatusCode, resp.ContentLength, resp.Header.Get("Content-Type"), resp.Body, nil)
}
