package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"situation-room/internal/domain/token"
	"situation-room/internal/remotechat"
	"situation-room/internal/repository"
	situation_errors "situation-room/pkg/errors"
	"situation-room/pkg/logger"
)

const (
	remoteUsernameMaxLen = 19
	remoteUserRoles      = "system_user system_user_access_token"
	remoteTokenLabel     = "situation room proxy token"
)

// TokenInfo is what a client needs to talk to the chat backend directly.
type TokenInfo struct {
	Token  string `json:"token"`
	TeamID string `json:"team_id"`
}

// ProvisioningService keeps exactly one remote account and one access token
// per application user and tenant.
type ProvisioningService struct {
	tokens     repository.TokenRepository
	chat       ChatGateway
	teamID     string
	mailDomain string
	logger     *logger.Logger
}

func NewProvisioningService(tokens repository.TokenRepository, chat ChatGateway, teamID, mailDomain string, l *logger.Logger) *ProvisioningService {
	return &ProvisioningService{
		tokens:     tokens,
		chat:       chat,
		teamID:     teamID,
		mailDomain: mailDomain,
		logger:     logger.OrGlobal(l),
	}
}

// RemoteUsername derives the backend username from an application user id.
// The limit counts characters, not bytes.
func RemoteUsername(userID string) string {
	name := []rune(strings.ReplaceAll(userID, "@", ""))
	if len(name) > remoteUsernameMaxLen {
		name = name[:remoteUsernameMaxLen]
	}
	return string(name)
}

// Mapping looks up an existing mapping without provisioning anything.
func (s *ProvisioningService) Mapping(ctx context.Context, tenantID, userID string) (token.ProxyTokenMapping, error) {
	return s.tokens.GetByUser(ctx, tenantID, userID)
}

// EnsureProvisioned returns the caller's mapping, creating the remote account,
// token and team membership the first time a user is seen. A mapping left
// with the placeholder token by an interrupted run is resumed, not recreated.
func (s *ProvisioningService) EnsureProvisioned(ctx context.Context, tenantID, userID, teamID string) (token.ProxyTokenMapping, error) {
	if teamID == "" {
		teamID = s.teamID
	}

	m, err := s.tokens.GetByUser(ctx, tenantID, userID)
	switch {
	case err == nil && m.HasToken():
		return m, nil
	case err == nil:
		return s.finish(ctx, m, teamID)
	case !errors.Is(err, situation_errors.ErrNotFound):
		return token.ProxyTokenMapping{}, fmt.Errorf("load proxy token mapping: %w", err)
	}

	username := RemoteUsername(userID)
	user, err := s.chat.CreateUser(ctx, remotechat.NewUser{
		Username: username,
		Email:    username + "@" + s.mailDomain,
		Password: randomPassword(),
	})
	if err != nil {
		return token.ProxyTokenMapping{}, situation_errors.RemoteSystem(err, CodeUnableToCreateUser,
			"Unable to create chat user for {0}", userID)
	}

	if err := s.chat.UpdateRoles(ctx, user.ID, remoteUserRoles); err != nil {
		return token.ProxyTokenMapping{}, situation_errors.RemoteSystem(err, CodeUnableToUpdateRole,
			"Unable to update chat roles for {0}", userID)
	}

	m = token.ProxyTokenMapping{
		ID:           uuid.New(),
		TenantID:     tenantID,
		AppUserID:    userID,
		RemoteUserID: user.ID,
		ProxyToken:   token.PlaceholderToken,
	}
	if err := s.tokens.Create(ctx, &m); err != nil {
		if !errors.Is(err, situation_errors.ErrAlreadyExists) {
			return token.ProxyTokenMapping{}, fmt.Errorf("create proxy token mapping: %w", err)
		}
		// Another request provisioned the same user first.
		winner, getErr := s.tokens.GetByUser(ctx, tenantID, userID)
		if getErr != nil {
			return token.ProxyTokenMapping{}, fmt.Errorf("reload proxy token mapping: %w", getErr)
		}
		s.logger.WithContext(ctx).Warnf("concurrent provisioning of %s, remote user %s left unused", userID, user.ID)
		if winner.HasToken() {
			return winner, nil
		}
		return s.finish(ctx, winner, teamID)
	}

	return s.finish(ctx, m, teamID)
}

// finish mints the access token for a mapping and joins the team. When two
// requests finish the same mapping, the first stored token wins and the
// other one is revoked. A failed team join is not retried later; the mapping
// already carries its token by then.
func (s *ProvisioningService) finish(ctx context.Context, m token.ProxyTokenMapping, teamID string) (token.ProxyTokenMapping, error) {
	tok, err := s.chat.CreateAccessToken(ctx, m.RemoteUserID, remoteTokenLabel)
	if err != nil {
		return token.ProxyTokenMapping{}, situation_errors.RemoteSystem(err, CodeUnableToCreateToken,
			"Unable to create chat token for {0}", m.AppUserID)
	}

	err = s.tokens.UpdateToken(ctx, m.ID, tok.Token)
	if errors.Is(err, situation_errors.ErrStaleWrite) {
		return s.yield(ctx, m, tok)
	}
	if err != nil {
		return token.ProxyTokenMapping{}, fmt.Errorf("store proxy token: %w", err)
	}
	m.ProxyToken = tok.Token

	if err := s.chat.AddTeamMember(ctx, teamID, m.RemoteUserID); err != nil {
		return token.ProxyTokenMapping{}, situation_errors.RemoteSystem(err, CodeUnableToJoinTeam,
			"Unable to add {0} to the chat team", m.AppUserID)
	}

	s.logger.WithContext(ctx).Infof("provisioned chat user %s for %s", m.RemoteUserID, m.AppUserID)
	return m, nil
}

// yield drops a token minted by a request that lost the race to store one
// and returns the mapping the winner stored.
func (s *ProvisioningService) yield(ctx context.Context, m token.ProxyTokenMapping, extra remotechat.UserAccessToken) (token.ProxyTokenMapping, error) {
	if err := s.chat.RevokeAccessToken(ctx, extra.ID); err != nil {
		s.logger.WithContext(ctx).Warnf("unable to revoke surplus chat token %s of %s: %v", extra.ID, m.AppUserID, err)
	}
	winner, err := s.tokens.GetByUser(ctx, m.TenantID, m.AppUserID)
	if err != nil {
		return token.ProxyTokenMapping{}, fmt.Errorf("reload proxy token mapping: %w", err)
	}
	return winner, nil
}

// SessionToken provisions the caller on the configured team and returns the
// token a client uses against the backend.
func (s *ProvisioningService) SessionToken(ctx context.Context) (TokenInfo, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return TokenInfo{}, err
	}
	m, err := s.EnsureProvisioned(ctx, id.TenantID, id.UserID, s.teamID)
	if err != nil {
		return TokenInfo{}, err
	}
	return TokenInfo{Token: m.ProxyToken, TeamID: s.teamID}, nil
}

// randomPassword satisfies the backend's default complexity rules.
func randomPassword() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf) + "Aa1!"
}
