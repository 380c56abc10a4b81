// Package client mirrors the Mini App's record cache: every subscription
// carries an explicit sync state instead of an implicit dirty flag. It
// models the app side of the sync protocol and is not imported by the
// server.
package client

import (
	"sort"
	"sync"
	"time"

	"subtrack/m/v2/app/models"
)

type RecordState string

const (
	// StateLocal marks an edit not yet pushed to the server.
	StateLocal RecordState = "local"
	// StateSyncing marks a record included in an in-flight sync request.
	StateSyncing RecordState = "syncing"
	// StateSynced marks a record that matches the server copy.
	StateSynced RecordState = "synced"
	// StateConflict marks a record edited on both sides since the last
	// sync; Resolve picks the survivor.
	StateConflict RecordState = "conflict"
)

type Record struct {
	Subscription models.Subscription
	// ServerCopy is only set while State is StateConflict.
	ServerCopy *models.Subscription
	State      RecordState
}

// Store is the in-memory record cache. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]Record),
	}
}

// Put applies an optimistic local write: the record renders immediately
// and is pushed on the next sync.
func (s *Store) Put(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.UpdatedAt == "" {
		sub.UpdatedAt = time.Now().UTC().Format(models.TimestampLayout)
	}
	s.records[sub.ID] = Record{
		Subscription: sub,
		State:        StateLocal,
	}
}

func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	return record, ok
}

// MarkSyncing flips every local record to syncing and returns the
// snapshot to send to the server. Conflicted records stay put until
// resolved.
func (s *Store) MarkSyncing() []models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := []models.Subscription{}
	for id, record := range s.records {
		if record.State != StateLocal {
			continue
		}
		record.State = StateSyncing
		s.records[id] = record
		snapshot = append(snapshot, record.Subscription)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// Reconcile applies the server's merged list. Last-writer-wins by
// updatedAt, except when both sides changed since the last sync: a local
// re-edit racing a newer server copy surfaces as a conflict instead of
// silently losing one side.
func (s *Store) Reconcile(serverList []models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(serverList))
	for _, server := range serverList {
		seen[server.ID] = true
		local, ok := s.records[server.ID]
		if !ok {
			// server-only record, created by the bot or another device
			s.records[server.ID] = Record{Subscription: server, State: StateSynced}
			continue
		}

		switch local.State {
		case StateLocal:
			if stampOf(server.UpdatedAt).After(stampOf(local.Subscription.UpdatedAt)) {
				serverCopy := server
				local.ServerCopy = &serverCopy
				local.State = StateConflict
				s.records[server.ID] = local
				continue
			}
			// local edit is the newer one, keep pushing it
		case StateConflict:
			// still waiting on Resolve
		default:
			// no unpushed edits, adopt whatever the merge decided
			s.records[server.ID] = Record{Subscription: server, State: StateSynced}
		}
	}

	// records the server never answered for go back to local and ride
	// the next sync
	for id, record := range s.records {
		if !seen[id] && record.State == StateSyncing {
			record.State = StateLocal
			s.records[id] = record
		}
	}
}

// Resolve settles a conflict: keep the local edit (to be pushed again) or
// adopt the server copy.
func (s *Store) Resolve(id string, keepLocal bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok || record.State != StateConflict {
		return false
	}
	if keepLocal {
		record.Subscription.UpdatedAt = time.Now().UTC().Format(models.TimestampLayout)
		record.State = StateLocal
	} else {
		record.Subscription = *record.ServerCopy
		record.State = StateSynced
	}
	record.ServerCopy = nil
	s.records[id] = record
	return true
}

// List returns a stable snapshot for rendering.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		list = append(list, record)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Subscription.ID < list[j].Subscription.ID
	})
	return list
}

func stampOf(stamp string) time.Time {
	t, err := time.Parse(models.TimestampLayout, stamp)
	if err != nil {
		// an unparseable stamp never wins
		return time.Time{}
	}
	return t
}
