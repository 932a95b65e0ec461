package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"situation-room/internal/domain/room"
	"situation-room/internal/domain/token"
	"situation-room/internal/entity"
	"situation-room/internal/events"
	"situation-room/internal/notification"
	"situation-room/internal/remotechat"
	"situation-room/internal/validation"
	situation_errors "situation-room/pkg/errors"
	"situation-room/pkg/logger"

	"github.com/stretchr/testify/require"
)

const testTenant = "t1"
const testTeam = "team-1"

// --- fake chat backend ---

type backendCall struct {
	Method string
	Path   string
	Token  string
	Body   map[string]any
}

type fakeBackend struct {
	mu     sync.Mutex
	calls  []backendCall
	fail   map[string]int
	nextID int
	posts  map[string][]remotechat.Post
	server *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{fail: map[string]int{}, posts: map[string][]remotechat.Post{}}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.server.Close)
	return b
}

// failOn makes every request whose "METHOD /path" starts with prefix answer status.
func (b *fakeBackend) failOn(prefix string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[prefix] = status
}

func (b *fakeBackend) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

func (b *fakeBackend) callsMatching(method, prefix string) []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backendCall
	for _, c := range b.calls {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBackend) callsTo(method, path string) []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backendCall
	for _, c := range b.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) id(prefix string) string {
	b.nextID++
	return fmt.Sprintf("%s-%d", prefix, b.nextID)
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.calls = append(b.calls, backendCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Token:  strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		Body:   body,
	})

	key := r.Method + " " + r.URL.Path
	for prefix, status := range b.fail {
		if strings.HasPrefix(key, prefix) {
			writeJSON(w, status, map[string]any{"id": "fake.failure", "message": "injected failure", "status_code": status})
			return
		}
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "users":
		writeJSON(w, http.StatusCreated, map[string]any{"id": b.id("ru"), "username": body["username"], "email": body["email"]})
	case r.Method == http.MethodPut && len(parts) == 3 && parts[2] == "roles":
		writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
	case r.Method == http.MethodPost && r.URL.Path == "/users/tokens/revoke":
		writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "tokens":
		writeJSON(w, http.StatusOK, map[string]any{"id": b.id("tk"), "token": "tok-" + parts[1], "user_id": parts[1]})
	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "teams":
		writeJSON(w, http.StatusCreated, map[string]any{"team_id": parts[1]})
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "channels":
		body["id"] = b.id("ch")
		body["create_at"] = time.Now().UnixMilli()
		writeJSON(w, http.StatusCreated, body)
	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "channels":
		writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "members":
		writeJSON(w, http.StatusCreated, map[string]any{"channel_id": parts[1]})
	case r.Method == http.MethodDelete && len(parts) == 4 && parts[2] == "members":
		writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
	case r.Method == http.MethodGet && len(parts) == 5 && parts[4] == "unread":
		writeJSON(w, http.StatusOK, map[string]any{"team_id": testTeam, "channel_id": parts[3], "msg_count": 3, "mention_count": 1})
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "posts":
		raw, _ := json.Marshal(body)
		var p remotechat.Post
		_ = json.Unmarshal(raw, &p)
		p.ID = b.id("post")
		p.CreateAt = time.Now().UnixMilli()
		b.posts[p.ChannelID] = append(b.posts[p.ChannelID], p)
		writeJSON(w, http.StatusCreated, p)
	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "posts":
		for ch, list := range b.posts {
			for i, p := range list {
				if p.ID == parts[1] {
					b.posts[ch] = append(list[:i], list[i+1:]...)
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
	case r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "posts":
		list := remotechat.PostList{Order: []string{}, Posts: map[string]remotechat.Post{}}
		if r.URL.Query().Get("page") == "0" {
			for _, p := range b.posts[parts[1]] {
				list.Order = append(list.Order, p.ID)
				list.Posts[p.ID] = p
			}
		}
		writeJSON(w, http.StatusOK, list)
	case len(parts) > 0 && parts[0] == "teapot":
		writeJSON(w, http.StatusTeapot, map[string]any{"message": "short and stout"})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"id": "api.not_found", "message": "not found"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- in-memory stores ---

type memRooms struct {
	mu    sync.Mutex
	rooms map[string]room.Room
	saves int
}

func newMemRooms() *memRooms {
	return &memRooms{rooms: map[string]room.Room{}}
}

func cloneRoom(r room.Room) room.Room {
	raw, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	var out room.Room
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func (m *memRooms) key(tenantID, roomID string) string { return tenantID + "|" + roomID }

func (m *memRooms) Create(_ context.Context, r *room.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(r.TenantID, r.ID)
	if _, ok := m.rooms[k]; ok {
		return situation_errors.ErrAlreadyExists
	}
	if r.Version == 0 {
		r.Version = 1
	}
	m.rooms[k] = cloneRoom(*r)
	return nil
}

func (m *memRooms) GetByID(_ context.Context, tenantID, roomID string) (room.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[m.key(tenantID, roomID)]
	if !ok {
		return room.Room{}, situation_errors.ErrNotFound
	}
	return cloneRoom(r), nil
}

func (m *memRooms) Save(_ context.Context, r *room.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(r.TenantID, r.ID)
	stored, ok := m.rooms[k]
	if !ok {
		return situation_errors.ErrNotFound
	}
	if stored.Version != r.Version {
		return situation_errors.ErrStaleWrite
	}
	r.Version++
	m.rooms[k] = cloneRoom(*r)
	m.saves++
	return nil
}

func (m *memRooms) Delete(_ context.Context, tenantID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(tenantID, roomID)
	if _, ok := m.rooms[k]; !ok {
		return situation_errors.ErrNotFound
	}
	delete(m.rooms, k)
	return nil
}

func (m *memRooms) ListForUser(_ context.Context, tenantID, userName string) ([]room.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []room.Room
	for _, r := range m.rooms {
		if r.TenantID != tenantID {
			continue
		}
		if _, ok := r.Participant(userName); ok {
			out = append(out, cloneRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRooms) MarkResolutionRead(_ context.Context, tenantID, userName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.rooms {
		if r.TenantID != tenantID || !r.IsResolved() {
			continue
		}
		if p, ok := r.Participant(userName); ok && !p.ResolutionRead {
			p.ResolutionRead = true
			r.Version++
			n++
			m.rooms[k] = r
		}
	}
	return n, nil
}

func (m *memRooms) get(t *testing.T, roomID string) *room.Room {
	t.Helper()
	r, err := m.GetByID(context.Background(), testTenant, roomID)
	require.NoError(t, err)
	return &r
}

func (m *memRooms) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type memTokens struct {
	mu       sync.Mutex
	mappings map[string]token.ProxyTokenMapping
	// beforeCreate lets a test slip in a competing insert.
	beforeCreate func(m *token.ProxyTokenMapping)
	// beforeUpdate runs once ahead of the next UpdateToken.
	beforeUpdate func(id uuid.UUID)
}

func newMemTokens() *memTokens {
	return &memTokens{mappings: map[string]token.ProxyTokenMapping{}}
}

func (s *memTokens) GetByUser(_ context.Context, tenantID, appUserID string) (token.ProxyTokenMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[tenantID+"|"+appUserID]
	if !ok {
		return token.ProxyTokenMapping{}, situation_errors.ErrNotFound
	}
	return m, nil
}

func (s *memTokens) Create(_ context.Context, m *token.ProxyTokenMapping) error {
	if s.beforeCreate != nil {
		s.beforeCreate(m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := m.TenantID + "|" + m.AppUserID
	if _, ok := s.mappings[k]; ok {
		return situation_errors.ErrAlreadyExists
	}
	s.mappings[k] = *m
	return nil
}

func (s *memTokens) UpdateToken(_ context.Context, id uuid.UUID, proxyToken string) error {
	if hook := s.beforeUpdate; hook != nil {
		s.beforeUpdate = nil
		hook(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, m := range s.mappings {
		if m.ID == id {
			if m.HasToken() {
				return situation_errors.ErrStaleWrite
			}
			m.ProxyToken = proxyToken
			s.mappings[k] = m
			return nil
		}
	}
	return situation_errors.ErrNotFound
}

func (s *memTokens) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mappings)
}

type fakeEntities struct {
	known map[string]bool
}

func (f fakeEntities) ClassFor(entityType string) (string, error) {
	return entity.ClassFor(entityType)
}

func (f fakeEntities) Get(_ context.Context, _, entityType, id string) (entity.Snapshot, error) {
	class, err := entity.ClassFor(entityType)
	if err != nil {
		return entity.Snapshot{}, err
	}
	if !f.known[id] {
		return entity.Snapshot{}, entity.ErrNotFound
	}
	return entity.Snapshot{
		Type:       entityType,
		Class:      class,
		ID:         id,
		Data:       []byte(`{"carrier":"ACME"}`),
		CapturedAt: time.Now().UTC(),
	}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	mails []notification.RoomMail
}

func (n *recordingNotifier) Notify(m notification.RoomMail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mails = append(n.mails, m)
}

func (n *recordingNotifier) sent() []notification.RoomMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.RoomMail(nil), n.mails...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type memStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failStore  bool
	failDelete bool
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Store(_ context.Context, dir, name string, content []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStore {
		return "", errors.New("bucket unavailable")
	}
	key := dir + "/" + name
	s.objects[key] = append([]byte(nil), content...)
	return key, nil
}

func (s *memStore) Retrieve(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return errors.New("bucket unavailable")
	}
	delete(s.objects, key)
	return nil
}

type stubAttachmentValidator struct{}

func (stubAttachmentValidator) Validate(name string, content []byte) (string, error) {
	if strings.TrimSpace(name) == "" || len(content) == 0 {
		return "", situation_errors.Validation("invalidattachment", "Attachment is empty")
	}
	return "text/csv", nil
}

// racingGateway runs race once, right after the first successful backend
// write, so a competing request commits between an operation's remote call
// and its local save.
type racingGateway struct {
	ChatGateway
	mu   sync.Mutex
	race func()
}

func (g *racingGateway) fire() {
	g.mu.Lock()
	race := g.race
	g.race = nil
	g.mu.Unlock()
	if race != nil {
		race()
	}
}

func (g *racingGateway) CreatePost(ctx context.Context, token string, in remotechat.Post) (remotechat.Post, error) {
	p, err := g.ChatGateway.CreatePost(ctx, token, in)
	if err == nil {
		g.fire()
	}
	return p, err
}

func (g *racingGateway) AddChannelMember(ctx context.Context, token, channelID, remoteUserID string) error {
	err := g.ChatGateway.AddChannelMember(ctx, token, channelID, remoteUserID)
	if err == nil {
		g.fire()
	}
	return err
}

func (g *racingGateway) RemoveChannelMember(ctx context.Context, token, channelID, remoteUserID string) error {
	err := g.ChatGateway.RemoveChannelMember(ctx, token, channelID, remoteUserID)
	if err == nil {
		g.fire()
	}
	return err
}

// --- harness ---

type harness struct {
	backend     *fakeBackend
	rooms       *memRooms
	tokens      *memTokens
	store       *memStore
	mail        *recordingNotifier
	events      *recordingPublisher
	prov        *ProvisioningService
	svc         *RoomService
	attachments *AttachmentService
	passthrough *PassthroughService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: newFakeBackend(t),
		rooms:   newMemRooms(),
		tokens:  newMemTokens(),
		store:   newMemStore(),
		mail:    &recordingNotifier{},
		events:  &recordingPublisher{},
	}
	chat := remotechat.NewClient(h.backend.server.URL, "admin-token", 5*time.Second)
	log := logger.NewNop()

	h.prov = NewProvisioningService(h.tokens, chat, testTeam, "chat.example.com", log)
	h.svc = NewRoomService(RoomServiceDeps{
		Rooms:        h.rooms,
		Provisioning: h.prov,
		Chat:         chat,
		Entities:     fakeEntities{known: map[string]bool{"SHP-1": true, "SHP-2": true, "SHP-3": true}},
		Mailer:       h.mail,
		Events:       h.events,
		Validator:    validation.New(),
		TeamID:       testTeam,
		AppURL:       "https://app.example.com",
		Logger:       log,
	})
	h.attachments = NewAttachmentService(AttachmentServiceDeps{
		Rooms:        h.rooms,
		Provisioning: h.prov,
		Chat:         chat,
		Store:        h.store,
		Validator:    stubAttachmentValidator{},
		Events:       h.events,
		TeamID:       testTeam,
		Logger:       log,
	})
	h.passthrough = NewPassthroughService(h.prov, chat)
	return h
}

// raceNextRemoteWrite makes race run right after the next successful
// backend write of either service.
func (h *harness) raceNextRemoteWrite(race func()) {
	g := &racingGateway{ChatGateway: h.svc.chat, race: race}
	h.svc.chat = g
	h.attachments.chat = g
}

func ctxFor(user string) context.Context {
	return WithUserContext(context.Background(), user, testTenant)
}

func (h *harness) provision(t *testing.T, user string) token.ProxyTokenMapping {
	t.Helper()
	m, err := h.prov.EnsureProvisioned(context.Background(), testTenant, user, testTeam)
	require.NoError(t, err)
	return m
}

func (h *harness) mapping(t *testing.T, user string) token.ProxyTokenMapping {
	t.Helper()
	m, err := h.tokens.GetByUser(context.Background(), testTenant, user)
	require.NoError(t, err)
	return m
}

// createRoom opens a room as creator with the given invitees and returns its id.
func (h *harness) createRoom(t *testing.T, creator, name string, invitees ...string) string {
	t.Helper()
	payload, err := h.svc.CreateChannel(ctxFor(creator), CreateRoomRequest{
		Name:          name,
		Purpose:       "Investigate " + name,
		EntityType:    "shipment",
		SituationType: "delay",
		Participants:  append([]string{creator}, invitees...),
		ObjectIDs:     []string{"SHP-1"},
	})
	require.NoError(t, err)
	roomID, _ := payload["id"].(string)
	require.NotEmpty(t, roomID)
	return roomID
}

func (h *harness) join(t *testing.T, roomID, user string) {
	t.Helper()
	_, err := h.svc.AcceptInvitation(ctxFor(user), roomID)
	require.NoError(t, err)
}
