package services

import (
	"context"
	"errors"
	"io"
	"net/http"

	situation_errors "situation-room/pkg/errors"
)

// PassthroughService relays arbitrary calls to the chat backend under the
// caller's own proxy token. It never provisions.
type PassthroughService struct {
	provisioning *ProvisioningService
	chat         ChatGateway
}

func NewPassthroughService(provisioning *ProvisioningService, chat ChatGateway) *PassthroughService {
	return &PassthroughService{provisioning: provisioning, chat: chat}
}

func (s *PassthroughService) Forward(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.provisioning.Mapping(ctx, id.TenantID, id.UserID)
	if err != nil {
		if errors.Is(err, situation_errors.ErrNotFound) {
			return nil, notAuthorizedForRooms()
		}
		return nil, err
	}
	if !m.HasToken() {
		return nil, notAuthorizedForRooms()
	}
	return s.chat.Forward(ctx, m.ProxyToken, method, path, rawQuery, header, body)
}

func notAuthorizedForRooms() error {
	return situation_errors.Validation(CodeNotAuthorizedForRooms, "You are not authorize for situation room")
}
