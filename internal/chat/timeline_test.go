package chat

import (
	"math/rand"
	"testing"
	"time"

	"github.com/youuungh/sns-chat-go/internal/domain"
)

func msg(id, roomID string, at time.Time) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		RoomID:    roomID,
		SenderID:  "u1",
		Content:   "msg " + id,
		CreatedAt: domain.Timestamp{Time: at},
	}
}

func ids(msgs []domain.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApplyLiveLatchesRoom(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tl := NewTimeline()
	next, backfill := tl.ApplyLive(msg("m1", "r1", base))

	if next.ActiveRoom != "r1" {
		t.Errorf("ActiveRoom = %q, want r1", next.ActiveRoom)
	}
	if !backfill {
		t.Error("expected backfill request on first latch")
	}
	if len(next.Messages) != 1 || next.Messages[0].ID != "m1" {
		t.Errorf("Messages = %v, want [m1]", ids(next.Messages))
	}

	// A second live message for the same room must not request backfill.
	next2, backfill := next.ApplyLive(msg("m2", "r1", base.Add(time.Minute)))
	if backfill {
		t.Error("unexpected backfill request for already-latched room")
	}
	if !equalIDs(ids(next2.Messages), []string{"m2", "m1"}) {
		t.Errorf("Messages = %v, want [m2 m1]", ids(next2.Messages))
	}
}

func TestApplyLiveIgnoresOtherRooms(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tl := NewTimeline().WithRoom("r1")
	next, backfill := tl.ApplyLive(msg("m9", "r2", base))

	if backfill {
		t.Error("message for another room must not trigger backfill")
	}
	if len(next.Messages) != 0 {
		t.Errorf("message for another room must be ignored, got %v", ids(next.Messages))
	}
	if next.ActiveRoom != "r1" {
		t.Errorf("ActiveRoom = %q, want r1 (latched room never replaced)", next.ActiveRoom)
	}
}

func TestLatchRoom(t *testing.T) {
	m := msg("m1", "r2", time.Now())

	if got := LatchRoom("", m); got != "r2" {
		t.Errorf("LatchRoom(\"\") = %q, want r2", got)
	}
	if got := LatchRoom("r1", m); got != "r1" {
		t.Errorf("LatchRoom(\"r1\") = %q, want r1", got)
	}
}

func TestDedupAcrossLiveAndPages(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	page := make([]domain.ChatMessage, 0, 30)
	for i := 0; i < 30; i++ {
		page = append(page, msg(string(rune('a'+i)), "r1", base.Add(-time.Duration(i)*time.Minute)))
	}

	tl := NewTimeline().WithRoom("r1").ApplyPage(page)

	// A live message whose id is already on the page must not duplicate.
	next, _ := tl.ApplyLive(page[3])
	if len(next.Messages) != 30 {
		t.Fatalf("len(Messages) = %d, want 30 unique", len(next.Messages))
	}

	seen := make(map[string]bool)
	for _, m := range next.Messages {
		if seen[m.ID] {
			t.Fatalf("duplicate id %q in merged list", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	var all []domain.ChatMessage
	for i := 0; i < 20; i++ {
		all = append(all, msg(string(rune('a'+i)), "r1", base.Add(time.Duration(i)*time.Second)))
	}

	// Reference: one page with everything.
	want := ids(NewTimeline().WithRoom("r1").ApplyPage(all).Messages)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := append([]domain.ChatMessage(nil), all...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		// Interleave: half arrives live, half in two pages.
		tl := NewTimeline().WithRoom("r1")
		tl, _ = tl.ApplyLive(shuffled[0])
		tl = tl.ApplyPage(shuffled[1:8])
		tl, _ = tl.ApplyLive(shuffled[8])
		tl = tl.ApplyPage(shuffled[9:])
		tl, _ = tl.ApplyLive(shuffled[2]) // replay a duplicate

		if !equalIDs(ids(tl.Messages), want) {
			t.Fatalf("trial %d: merged order %v, want %v", trial, ids(tl.Messages), want)
		}
	}
}

func TestMessagesSortedNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tl := NewTimeline().WithRoom("r1")
	tl = tl.ApplyPage([]domain.ChatMessage{
		msg("m2", "r1", base.Add(2*time.Minute)),
		msg("m1", "r1", base.Add(1*time.Minute)),
	})
	tl, _ = tl.ApplyLive(msg("m3", "r1", base.Add(3*time.Minute)))
	tl, _ = tl.ApplyLive(msg("m0", "r1", base))

	if !equalIDs(ids(tl.Messages), []string{"m3", "m2", "m1", "m0"}) {
		t.Errorf("Messages = %v, want newest first [m3 m2 m1 m0]", ids(tl.Messages))
	}
}

func TestPaginationCursor(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tl := NewTimeline().WithRoom("r1")
	if tl.NextPage() != 1 {
		t.Fatalf("NextPage = %d, want 1", tl.NextPage())
	}

	tl = tl.ApplyPage([]domain.ChatMessage{msg("m1", "r1", base)})
	if tl.NextPage() != 2 {
		t.Errorf("NextPage after non-empty page = %d, want 2", tl.NextPage())
	}
	if !tl.HasMore {
		t.Error("HasMore must stay true after a non-empty page")
	}

	tl = tl.ApplyPage(nil)
	if tl.HasMore {
		t.Error("empty page must set HasMore = false")
	}
	if tl.NextPage() != 2 {
		t.Errorf("empty page must not advance cursor, NextPage = %d", tl.NextPage())
	}
}
