package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"situation-room/internal/domain/room"
	"situation-room/internal/remotechat"
	"situation-room/internal/services"
	situation_errors "situation-room/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRooms struct {
	RoomAPI
	lastCreate services.CreateRoomRequest
	lastPost   remotechat.Post
	err        error
}

func (s *stubRooms) CreateChannel(_ context.Context, req services.CreateRoomRequest) (map[string]any, error) {
	s.lastCreate = req
	if s.err != nil {
		return nil, s.err
	}
	return map[string]any{"id": "ch-1", "type": "P"}, nil
}

func (s *stubRooms) PostMessage(_ context.Context, post remotechat.Post) (remotechat.Post, error) {
	s.lastPost = post
	post.ID = "post-1"
	return post, s.err
}

func (s *stubRooms) RemoveParticipant(_ context.Context, roomID, target string) (services.Membership, error) {
	return services.Membership{}, situation_errors.Conflict("creatornotremovable", "The creator of {0} cannot be removed", roomID)
}

type stubAttachments struct {
	uploaded services.FileUpload
	comment  string
}

func (s *stubAttachments) Upload(_ context.Context, _ string, file services.FileUpload, comment string) ([]room.Attachment, error) {
	s.uploaded = file
	s.comment = comment
	return []room.Attachment{{ID: "a-1", Name: file.Name}}, nil
}

func (s *stubAttachments) GetDocument(_ context.Context, _, attachmentID string) (services.Document, error) {
	if attachmentID != "a-1" {
		return services.Document{}, situation_errors.NotFound("attachmentnotexists", "Attachment {0} does not exist", attachmentID)
	}
	return services.Document{
		Attachment: room.Attachment{ID: "a-1", Name: "pod.txt", Metadata: room.AttachmentMetadata{ContentType: "text/plain"}},
		Content:    []byte("signed"),
	}, nil
}

func (s *stubAttachments) DeleteAttachment(context.Context, string, string) ([]room.Attachment, error) {
	return []room.Attachment{}, nil
}

type stubForward struct {
	status int
	path   string
	query  string
}

func (s *stubForward) Forward(_ context.Context, _, path, rawQuery string, _ http.Header, _ io.Reader) (*http.Response, error) {
	s.path, s.query = path, rawQuery
	return &http.Response{
		StatusCode:    s.status,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(strings.NewReader(`{"message":"nope"}`)),
		ContentLength: -1,
	}, nil
}

type stubTokens struct{}

func (stubTokens) SessionToken(context.Context) (services.TokenInfo, error) {
	return services.TokenInfo{Token: "tok", TeamID: "team-1"}, nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRoomHandler_CreateMapsRequest(t *testing.T) {
	rooms := &stubRooms{}
	r := gin.New()
	r.POST("/channels", NewRoomHandler(rooms).Create)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/channels", strings.NewReader(
		`{"name":"Late","purpose":"p","entityType":"shipment","situationType":"delay","participants":["bob"],"objectIds":["SHP-1"]}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "shipment", rooms.lastCreate.EntityType)
	assert.Equal(t, []string{"SHP-1"}, rooms.lastCreate.ObjectIDs)
	body := decode(t, w)
	assert.Equal(t, "ch-1", body["data"].(map[string]any)["id"])
}

func TestRoomHandler_FaultRendering(t *testing.T) {
	rooms := &stubRooms{err: situation_errors.Validation("invalidrequest", "Missing or invalid fields: {0}", "name")}
	r := gin.New()
	r.POST("/channels", NewRoomHandler(rooms).Create)
	r.POST("/channels/:channel_id/members/:user_id/delete", NewRoomHandler(rooms).RemoveMember)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/channels", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "invalidrequest", body["code"])
	assert.Equal(t, "Missing or invalid fields: name", body["error"])
	assert.Equal(t, []any{"name"}, body["args"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/channels/ch-1/members/alice/delete", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/channels", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomHandler_PostKeepsUnknownFields(t *testing.T) {
	rooms := &stubRooms{}
	r := gin.New()
	r.POST("/posts", NewRoomHandler(rooms).Post)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/posts",
		strings.NewReader(`{"channel_id":"ch-1","message":"hi","pending_post_id":"p-1"}`)))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ch-1", rooms.lastPost.ChannelID)
	assert.JSONEq(t, `"p-1"`, string(rooms.lastPost.Extra["pending_post_id"]))
}

func TestAttachmentHandler_UploadMultipart(t *testing.T) {
	attachments := &stubAttachments{}
	r := gin.New()
	r.POST("/channels/:channel_id/attachments", NewAttachmentHandler(attachments, 4).Upload)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "report.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("a,b,c,d,e"))
	require.NoError(t, mw.WriteField("comment", "weekly"))
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/channels/ch-1/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "report.csv", attachments.uploaded.Name)
	assert.Len(t, attachments.uploaded.Content, 5, "reads one byte past the limit")
	assert.Equal(t, "weekly", attachments.comment)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/channels/ch-1/attachments", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachmentHandler_Download(t *testing.T) {
	r := gin.New()
	h := NewAttachmentHandler(&stubAttachments{}, 0)
	r.GET("/channels/:channel_id/attachments/:attachment_id", h.Get)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/channels/ch-1/attachments/a-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "signed", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="pod.txt"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/channels/ch-1/attachments/zzz", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatHandler_PassthroughRelaysStatus(t *testing.T) {
	forward := &stubForward{status: http.StatusForbidden}
	r := gin.New()
	h := NewChatHandler(stubTokens{}, forward)
	r.Any("/passthrough/*path", h.Passthrough)
	r.GET("/token", h.Token)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/passthrough/users/me?x=1", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"message":"nope"}`, w.Body.String())
	assert.Equal(t, "/users/me", forward.path)
	assert.Equal(t, "x=1", forward.query)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/token", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", decode(t, w)["data"].(map[string]any)["token"])
}
