// Package presence maintains the observed membership of a proctoring room.
// The membership set is exactly what the relay last reported: the tracker
// never infers membership beyond relay events.
package presence

import (
	"sync"

	"github.com/lenconda/exampro-agent/internal/domain"
)

// Tracker holds a role-filtered snapshot of room membership. Updates replace
// the snapshot atomically so concurrent readers never observe a partially
// updated set.
type Tracker struct {
	mu      sync.RWMutex
	members []domain.RoomMember
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Update replaces the membership snapshot with the relay's raw list, keeping
// only participants. Invigilators never appear in any roster: participants
// see only selectable call targets, and invigilators are hidden from each
// other. Returns the filtered snapshot.
func (t *Tracker) Update(raw []domain.RoomMember) []domain.RoomMember {
	filtered := make([]domain.RoomMember, 0, len(raw))
	for _, m := range raw {
		if m.Role == domain.RoleInvigilator {
			continue
		}
		filtered = append(filtered, m)
	}

	t.mu.Lock()
	t.members = filtered
	t.mu.Unlock()
	return filtered
}

// Remove deletes the member with the given connection id, if present.
// Removing an unknown id is a no-op, not an error.
func (t *Tracker) Remove(connectionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, m := range t.members {
		if m.ConnectionID == connectionID {
			next := make([]domain.RoomMember, 0, len(t.members)-1)
			next = append(next, t.members[:i]...)
			next = append(next, t.members[i+1:]...)
			t.members = next
			return
		}
	}
}

// Members returns a copy of the current snapshot.
func (t *Tracker) Members() []domain.RoomMember {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.RoomMember(nil), t.members...)
}
