// Package presence tracks which users currently hold at least one live
// session. State is process-local and not persisted.
package presence

import (
	"hash/fnv"
	"sync"
)

// DefaultShards is used when NewRegistry is given a non-positive count.
const DefaultShards = 64

type shard struct {
	mu    sync.Mutex
	users map[string]map[string]struct{} // userID -> set of session handles
}

// Registry maps users to their live session handles. Operations on one user
// are serialised by the mutex of the shard the user hashes to.
type Registry struct {
	shards []*shard

	closeMu sync.RWMutex
	closed  bool
}

func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{shards: make([]*shard, shards)}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[string]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Connect adds handle to the user's session set. It reports true when this
// was the user's first live session. Connects after Close are ignored.
func (r *Registry) Connect(userID, handle string) bool {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return false
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		set = make(map[string]struct{}, 1)
		s.users[userID] = set
	}
	set[handle] = struct{}{}
	return !ok
}

// Disconnect removes handle from the user's session set and evicts the user
// when the set becomes empty. It reports true when the user went offline.
// Unknown users and handles are a no-op.
func (r *Registry) Disconnect(userID, handle string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		return false
	}
	if _, ok := set[handle]; !ok {
		return false
	}
	delete(set, handle)
	if len(set) == 0 {
		delete(s.users, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[userID]
	return ok
}

// OnlineSubset returns the candidates that are online, in input order.
// Duplicates in candidates are reported once.
func (r *Registry) OnlineSubset(candidates []string) []string {
	res := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if r.IsOnline(id) {
			res = append(res, id)
		}
	}
	return res
}

// Handles returns a snapshot of the user's live session handles.
func (r *Registry) Handles(userID string) []string {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.users[userID]
	res := make([]string, 0, len(set))
	for h := range set {
		res = append(res, h)
	}
	return res
}

// OnlineCount returns the number of users with at least one session.
func (r *Registry) OnlineCount() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.users)
		s.mu.Unlock()
	}
	return n
}

// Close clears all state. Subsequent Connect calls are ignored.
func (r *Registry) Close() {
	r.closeMu.Lock()
	r.closed = true
	r.closeMu.Unlock()

	for _, s := range r.shards {
		s.mu.Lock()
		s.users = make(map[string]map[string]struct{})
		s.mu.Unlock()
	}
}
