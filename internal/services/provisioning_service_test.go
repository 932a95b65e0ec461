package services

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"situation-room/internal/domain/token"
	situation_errors "situation-room/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteUsername(t *testing.T) {
	assert.Equal(t, "alicecorp.com", RemoteUsername("alice@corp.com"))
	assert.Equal(t, "averyveryverylongus", RemoteUsername("averyveryverylongusername@corp.com"))
	assert.Len(t, RemoteUsername(strings.Repeat("x", 40)), remoteUsernameMaxLen)

	long := RemoteUsername(strings.Repeat("é", 25) + "@corp.com")
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, remoteUsernameMaxLen, utf8.RuneCountInString(long))
	assert.Equal(t, "zoë", RemoteUsername("zoë"))
}

func TestEnsureProvisioned_FirstCallRunsFullSequence(t *testing.T) {
	h := newHarness(t)

	m, err := h.prov.EnsureProvisioned(context.Background(), testTenant, "alice@corp.com", testTeam)
	require.NoError(t, err)
	assert.True(t, m.HasToken())
	assert.Equal(t, "tok-"+m.RemoteUserID, m.ProxyToken)

	users := h.backend.callsTo(http.MethodPost, "/users")
	require.Len(t, users, 1)
	assert.Equal(t, "admin-token", users[0].Token)
	assert.Equal(t, "alicecorp.com", users[0].Body["username"])
	assert.Equal(t, "alicecorp.com@chat.example.com", users[0].Body["email"])

	roles := h.backend.callsTo(http.MethodPut, "/users/"+m.RemoteUserID+"/roles")
	require.Len(t, roles, 1)
	assert.Equal(t, remoteUserRoles, roles[0].Body["roles"])

	assert.Len(t, h.backend.callsTo(http.MethodPost, "/users/"+m.RemoteUserID+"/tokens"), 1)
	team := h.backend.callsTo(http.MethodPost, "/teams/"+testTeam+"/members")
	require.Len(t, team, 1)
	assert.Equal(t, m.RemoteUserID, team[0].Body["user_id"])

	stored := h.mapping(t, "alice@corp.com")
	assert.Equal(t, m.ProxyToken, stored.ProxyToken)
}

func TestEnsureProvisioned_ExistingMappingMakesNoRemoteCalls(t *testing.T) {
	h := newHarness(t)
	first := h.provision(t, "alice")
	h.backend.reset()

	again, err := h.prov.EnsureProvisioned(context.Background(), testTenant, "alice", testTeam)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Zero(t, h.backend.callCount())
	assert.Equal(t, 1, h.tokens.count())
}

func TestEnsureProvisioned_TenantsAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "alice")

	_, err := h.prov.EnsureProvisioned(context.Background(), "t2", "alice", testTeam)
	require.NoError(t, err)
	assert.Equal(t, 2, h.tokens.count())
}

func TestEnsureProvisioned_CreateFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.backend.failOn("POST /users", http.StatusBadRequest)

	_, err := h.prov.EnsureProvisioned(context.Background(), testTenant, "alice", testTeam)
	require.ErrorIs(t, err, situation_errors.ErrServiceUnavailable)
	f, _ := situation_errors.AsFault(err)
	assert.Equal(t, CodeUnableToCreateUser, f.Code)
	assert.Zero(t, h.tokens.count())
}

func TestEnsureProvisioned_TokenFailureResumesWithoutNewAccount(t *testing.T) {
	h := newHarness(t)
	h.backend.failOn("POST /users/ru-1/tokens", http.StatusInternalServerError)

	_, err := h.prov.EnsureProvisioned(context.Background(), testTenant, "alice", testTeam)
	require.ErrorIs(t, err, situation_errors.ErrServiceUnavailable)
	stored := h.mapping(t, "alice")
	assert.Equal(t, token.PlaceholderToken, stored.ProxyToken)

	h.backend.fail = map[string]int{}
	h.backend.reset()

	m, err := h.prov.EnsureProvisioned(context.Background(), testTenant, "alice", testTeam)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, m.ID, "the row is updated, not duplicated")
	assert.True(t, m.HasToken())
	assert.Empty(t, h.backend.callsTo(http.MethodPost, "/users"))
	assert.Equal(t, 1, h.tokens.count())
}

func TestEnsureProvisioned_ConcurrentInsertReadsWinner(t *testing.T) {
	h := newHarness(t)
	winner := token.ProxyTokenMapping{
		ID:           uuid.New(),
		TenantID:     testTenant,
		AppUserID:    "alice",
		RemoteUserID: "ru-winner",
		ProxyToken:   "tok-winner",
	}
	h.tokens.beforeCreate = func(*token.ProxyTokenMapping) {
		h.tokens.mu.Lock()
		h.tokens.mappings[testTenant+"|alice"] = winner
		h.tokens.mu.Unlock()
	}

	m, err := h.prov.EnsureProvisioned(context.Background(), testTenant, "alice", testTeam)
	require.NoError(t, err)
	assert.Equal(t, winner, m)
	assert.Equal(t, 1, h.tokens.count())
}

func TestEnsureProvisioned_ConcurrentFinishKeepsFirstToken(t *testing.T) {
	h := newHarness(t)
	h.backend.failOn("POST /users/ru-1/tokens", http.StatusInternalServerError)
	_, err := h.prov.EnsureProvisioned(context.Background(), testTenant, "alice", testTeam)
	require.Error(t, err)
	h.backend.fail = map[string]int{}
	h.backend.reset()

	// Another request stores its token between our mint and our write.
	h.tokens.beforeUpdate = func(id uuid.UUID) {
		require.NoError(t, h.tokens.UpdateToken(context.Background(), id, "tok-first"))
	}

	m, err := h.prov.EnsureProvisioned(context.Background(), testTenant, "alice", testTeam)
	require.NoError(t, err)
	assert.Equal(t, "tok-first", m.ProxyToken)
	assert.Equal(t, "tok-first", h.mapping(t, "alice").ProxyToken)

	minted := h.backend.callsTo(http.MethodPost, "/users/ru-1/tokens")
	require.Len(t, minted, 1)
	revoked := h.backend.callsTo(http.MethodPost, "/users/tokens/revoke")
	require.Len(t, revoked, 1)
	assert.Equal(t, "admin-token", revoked[0].Token)
	assert.NotEmpty(t, revoked[0].Body["token_id"])
	assert.Empty(t, h.backend.callsTo(http.MethodPost, "/teams/"+testTeam+"/members"), "the winner joins the team")
}

func TestSessionToken(t *testing.T) {
	h := newHarness(t)

	info, err := h.prov.SessionToken(ctxFor("alice"))
	require.NoError(t, err)
	assert.Equal(t, testTeam, info.TeamID)
	assert.Equal(t, h.mapping(t, "alice").ProxyToken, info.Token)

	_, err = h.prov.SessionToken(context.Background())
	assert.ErrorIs(t, err, situation_errors.ErrUnauthorized)
}
