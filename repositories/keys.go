// Package repositories persists circle state in BadgerDB.
//
// Key layout (prefixes are also the change-feed match filters):
//
//	session:{group}                     one facilitator connection record
//	turn:{group}                        one turn-arbitration record
//	participant:{group}:{user}          one row per member
//	msg:{group}:{ts19}:{uuid}           append-only messages
//	audiocast:{group}:{ts19}:{seq}      TTL'd facilitator audio chunks
//	audiocast-owner:{group}             unique-insert broadcast claim
//
// Timestamps use 19-digit zero padding so lexicographic order is
// chronological order, with a UUID/sequence suffix as a collision
// disconnector inside the same nanosecond.
package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/dsgolman/supportai-bot-sub000/domain"
)

const (
	PrefixSession        = "session:"
	PrefixTurn           = "turn:"
	PrefixParticipant    = "participant:"
	PrefixMessage        = "msg:"
	PrefixAudioBroadcast = "audiocast:"
	PrefixBroadcastOwner = "audiocast-owner:"
)

func sessionKey(groupID domain.GroupID) []byte {
	return []byte(PrefixSession + string(groupID))
}

func turnKey(groupID domain.GroupID) []byte {
	return []byte(PrefixTurn + string(groupID))
}

func participantKey(groupID domain.GroupID, userID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", PrefixParticipant, groupID, userID))
}

func participantPrefix(groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("%s%s:", PrefixParticipant, groupID))
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		PrefixMessage, m.GroupID, m.CreatedAt.UnixNano(), m.ID))
}

func messagePrefix(groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("%s%s:", PrefixMessage, groupID))
}

func audioChunkKey(c domain.AudioChunk) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%d",
		PrefixAudioBroadcast, c.GroupID, c.At.UnixNano(), c.Seq))
}

func broadcastOwnerKey(groupID domain.GroupID) []byte {
	return []byte(PrefixBroadcastOwner + string(groupID))
}

// GroupFromKey extracts the group id from any of the known key layouts.
// Used by the change feed to route raw row changes.
func GroupFromKey(key string) (domain.GroupID, bool) {
	for _, prefix := range []string{
		PrefixSession, PrefixTurn, PrefixParticipant,
		PrefixMessage, PrefixAudioBroadcast, PrefixBroadcastOwner,
	} {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			if i := strings.IndexByte(rest, ':'); i >= 0 {
				return domain.GroupID(rest[:i]), true
			}
			return domain.GroupID(rest), true
		}
	}
	return "", false
}

func pad19(t time.Time) string {
	return fmt.Sprintf("%019d", t.UnixNano())
}
