package chat

import (
	"sort"

	"github.com/youuungh/sns-chat-go/internal/domain"
)

// Timeline is the displayed window of messages for the active room,
// newest first. It is a value: every operation returns a new Timeline, so
// merging is order-independent and idempotent under any interleaving of
// live messages and history pages.
type Timeline struct {
	ActiveRoom  string
	Messages    []domain.ChatMessage
	CurrentPage int
	HasMore     bool
}

// NewTimeline returns an empty timeline with no room bound yet.
func NewTimeline() Timeline {
	return Timeline{HasMore: true}
}

// LatchRoom binds the room of interest. The room latches once: a bound
// room is never replaced by an incoming message for another room.
func LatchRoom(current string, incoming domain.ChatMessage) string {
	if current != "" {
		return current
	}
	return incoming.RoomID
}

// ApplyLive merges one live message. When no room is bound yet the room is
// latched from the message and backfill reports true, signalling that
// history for the latched room should be fetched. Messages for other rooms
// are ignored.
func (t Timeline) ApplyLive(msg domain.ChatMessage) (next Timeline, backfill bool) {
	room := LatchRoom(t.ActiveRoom, msg)
	if msg.RoomID != room {
		return t, false
	}

	backfill = t.ActiveRoom == "" && room != ""
	next = t
	next.ActiveRoom = room
	next.Messages = merge(t.Messages, []domain.ChatMessage{msg})
	return next, backfill
}

// ApplyPage merges one history page. The page cursor advances only on a
// non-empty page; an empty page halts further paging.
func (t Timeline) ApplyPage(msgs []domain.ChatMessage) Timeline {
	next := t
	if len(msgs) == 0 {
		next.HasMore = false
		return next
	}
	if next.ActiveRoom == "" {
		next.ActiveRoom = msgs[0].RoomID
	}
	next.Messages = merge(t.Messages, msgs)
	next.CurrentPage++
	return next
}

// WithRoom binds a known room up front, before any message has arrived.
func (t Timeline) WithRoom(roomID string) Timeline {
	next := t
	next.ActiveRoom = roomID
	return next
}

// NextPage is the 1-indexed page to fetch next.
func (t Timeline) NextPage() int {
	return t.CurrentPage + 1
}

// merge unions two message sets, deduplicates by id and re-sorts newest
// first. Ties on CreatedAt order by id so the result is deterministic.
func merge(a, b []domain.ChatMessage) []domain.ChatMessage {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]domain.ChatMessage, 0, len(a)+len(b))
	for _, set := range [][]domain.ChatMessage{a, b} {
		for _, m := range set {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt.Time, out[j].CreatedAt.Time
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
