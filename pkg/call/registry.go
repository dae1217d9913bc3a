package call

import (
	"sync"
	"time"
)

// Kind distinguishes audio-only from video calls.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ParseKind maps a wire string to a Kind, defaulting to audio for anything
// unrecognized, matching the announcement payload's lenient handling.
func ParseKind(s string) Kind {
	if s == string(KindVideo) {
		return KindVideo
	}
	return KindAudio
}

// CallRecord describes an in-progress call announced to a room. Late
// joiners read it to render a "join call" affordance.
type CallRecord struct {
	RoomID        string
	RoomName      string
	InitiatorID   string
	InitiatorName string
	Kind          Kind
	InvitationID  string
	StartedAt     time.Time
}

// DefaultCallTTL is how long an announced call record stays visible without
// explicit termination. Staleness is evaluated lazily on lookup; there is
// no background sweep.
const DefaultCallTTL = 2 * time.Hour

// CallRegistry holds at most one announced call record per room, plus the
// invitation ids already acted on so a redundant announcement is not
// processed twice. Consumed ids are forgotten together with the record they
// belong to.
type CallRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	records  map[string]CallRecord
	consumed map[string]string // invitation id -> room id
}

// NewCallRegistry creates a registry with the given record TTL. ttl <= 0
// selects DefaultCallTTL; now may be nil for the wall clock.
func NewCallRegistry(ttl time.Duration, now func() time.Time) *CallRegistry {
	if ttl <= 0 {
		ttl = DefaultCallTTL
	}
	if now == nil {
		now = time.Now
	}
	return &CallRegistry{
		ttl:      ttl,
		now:      now,
		records:  make(map[string]CallRecord),
		consumed: make(map[string]string),
	}
}

// Announce overwrites the room's current call record. Records are replaced,
// never merged.
func (r *CallRegistry) Announce(record CallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.forgetInvitationsLocked(record.RoomID, record.InvitationID)
	r.records[record.RoomID] = record
}

// Lookup returns the room's active call record if one exists and is fresh.
// Stale records (now - start >= ttl) are evicted here.
func (r *CallRegistry) Lookup(roomID string) (CallRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[roomID]
	if !ok {
		return CallRecord{}, false
	}
	if r.now().Sub(record.StartedAt) >= r.ttl {
		r.evictLocked(roomID)
		return CallRecord{}, false
	}
	return record, true
}

// Clear removes the room's call record regardless of age, along with the
// invitation ids it owned.
func (r *CallRegistry) Clear(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(roomID)
}

// ConsumeInvitation records that an invitation id has been acted on.
// Returns false when the id was already consumed, so the caller can skip
// double-processing a redundant announcement.
func (r *CallRegistry) ConsumeInvitation(invitationID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.consumed[invitationID]; seen {
		return false
	}
	r.consumed[invitationID] = roomID
	return true
}

func (r *CallRegistry) evictLocked(roomID string) {
	delete(r.records, roomID)
	r.forgetInvitationsLocked(roomID, "")
}

// forgetInvitationsLocked drops consumed invitation ids belonging to roomID,
// keeping the one named by except (the id of a record that stays live).
func (r *CallRegistry) forgetInvitationsLocked(roomID, except string) {
	for id, room := range r.consumed {
		if room == roomID && id != except {
			delete(r.consumed, id)
		}
	}
}
