package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"situation-room/config"
	"situation-room/internal/domain/room"
	"situation-room/internal/handler"
	"situation-room/internal/remotechat"
	"situation-room/internal/services"
	"situation-room/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityRooms answers every call with the identity found in ctx.
type identityRooms struct {
	handler.RoomAPI
}

func (identityRooms) GetChannels(ctx context.Context, by, typ, objectIDs string) ([]services.ChatContext, error) {
	user, _ := services.UserIDFromContext(ctx)
	tenant, _ := services.TenantIDFromContext(ctx)
	return []services.ChatContext{{ID: tenant + "/" + user, Status: by + ":" + typ}}, nil
}

func (identityRooms) SearchChannels(_ context.Context, p services.SearchParams) ([]services.ChatContext, error) {
	return []services.ChatContext{{ID: "search:" + p.Text}}, nil
}

func (identityRooms) GetChannelContext(_ context.Context, roomID string) (services.ChatContext, error) {
	return services.ChatContext{ID: roomID}, nil
}

func (identityRooms) PostMessage(_ context.Context, p remotechat.Post) (remotechat.Post, error) {
	return p, nil
}

type noAttachments struct{}

func (noAttachments) Upload(context.Context, string, services.FileUpload, string) ([]room.Attachment, error) {
	return nil, nil
}
func (noAttachments) GetDocument(context.Context, string, string) (services.Document, error) {
	return services.Document{}, nil
}
func (noAttachments) DeleteAttachment(context.Context, string, string) ([]room.Attachment, error) {
	return nil, nil
}

type noChat struct{}

func (noChat) SessionToken(context.Context) (services.TokenInfo, error) {
	return services.TokenInfo{}, nil
}
func (noChat) Forward(context.Context, string, string, string, http.Header, io.Reader) (*http.Response, error) {
	return nil, errors.New("unused")
}

func newTestServer(t *testing.T, health map[string]HealthFunc) (*Server, *services.AuthService) {
	t.Helper()
	cfg := &config.Config{AppPort: "0", AppMode: TestMode}
	s := New(cfg, logger.NewNop())
	auth := services.NewAuthService("test-secret")
	s.SetupRoutes(&Handlers{
		Rooms:       handler.NewRoomHandler(identityRooms{}),
		Attachments: handler.NewAttachmentHandler(noAttachments{}, 0),
		Chat:        handler.NewChatHandler(noChat{}, noChat{}),
	}, auth, health)
	return s, auth
}

func TestRoutes_RequireBearerToken(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/channels", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRoutes_IdentityFlowsFromClaims(t *testing.T) {
	s, auth := newTestServer(t, nil)
	tok, err := auth.IssueAccessToken("alice", "acme", time.Minute)
	require.NoError(t, err)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		s.Engine().ServeHTTP(w, req)
		return w
	}

	w := get("/chat/channels?by=room&type=OPEN")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"acme/alice"`)
	assert.Contains(t, w.Body.String(), `"status":"room:OPEN"`)

	w = get("/chat/channels/search?searchText=late")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"search:late"`)

	w = get("/chat/channels/ch-9/context")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"ch-9"`)
}

func TestRoutes_PingAndHealth(t *testing.T) {
	s, _ := newTestServer(t, map[string]HealthFunc{
		"database": func(context.Context) error { return errors.New("down") },
	})

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database: down")
}

func TestRoutes_CORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/chat/channels", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
