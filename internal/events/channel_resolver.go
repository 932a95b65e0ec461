package events

import (
	"fmt"
)

// ChannelResolver determines which Redis channels to publish to
type ChannelResolver interface {
	ResolveChannels(env Envelope) []string
}

// TenantRoomResolver fans every event out to its tenant channel and to the
// channel of the room it concerns.
type TenantRoomResolver struct{}

func NewTenantRoomResolver() *TenantRoomResolver {
	return &TenantRoomResolver{}
}

func (r *TenantRoomResolver) ResolveChannels(env Envelope) []string {
	var channels []string
	if env.TenantID != "" {
		channels = append(channels, fmt.Sprintf("situation:tenant:%s", env.TenantID))
	}
	if env.AggregateType == AggregateTypeRoom && env.AggregateID != "" {
		channels = append(channels, fmt.Sprintf("situation:room:%s", env.AggregateID))
	}
	return channels
}
