package realtime

import (
	"github.com/johnyarcher2100/chatwithyou-sync/internal/baas"
)

// ParticipantChange describes a membership change in a subscribed chat.
// Profile is filled on joins when the directory lookup succeeds.
type ParticipantChange struct {
	ChatID  string
	UserID  string
	Joined  bool
	Profile *baas.ProfileRow
}

// FriendEvent is a friend-request row change concerning the local user.
// Incoming is true when the local user is the receiver.
type FriendEvent struct {
	Request  baas.FriendRequestRow
	Incoming bool
}
