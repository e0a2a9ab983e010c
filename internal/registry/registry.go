// Package registry tracks launched processes in two independently locked
// maps: metadata records and the handles that own the OS processes.
//
// A method holds at most one of the two locks unless stated otherwise, and
// no lock is ever held across a blocking call.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/loykin/llamactl/internal/process"
)

type Registry struct {
	recMu   sync.Mutex
	records map[string]*process.Record

	hMu     sync.Mutex
	handles map[string]*process.Handle

	sealed atomic.Bool
}

func New() *Registry {
	return &Registry{
		records: make(map[string]*process.Record),
		handles: make(map[string]*process.Handle),
	}
}

// NewID returns a fresh process id. IDs are random UUIDs and are never
// reused within a registry.
func NewID() string { return uuid.NewString() }

// Insert adds both the record and its handle under both locks, handles
// first. It returns false, leaving the maps untouched, once the registry
// is sealed.
func (r *Registry) Insert(rec *process.Record, h *process.Handle) bool {
	r.hMu.Lock()
	defer r.hMu.Unlock()
	r.recMu.Lock()
	defer r.recMu.Unlock()
	if r.sealed.Load() {
		return false
	}
	r.records[rec.ID] = rec
	r.handles[rec.ID] = h
	return true
}

// Seal makes every later Insert fail. It never blocks, so it is safe on
// the emergency path. An Insert that already passed the check completes
// before the next DrainAll can take the locks.
func (r *Registry) Seal() { r.sealed.Store(true) }

func (r *Registry) Sealed() bool { return r.sealed.Load() }

// Update runs fn on the record under the record lock. fn must not block.
func (r *Registry) Update(id string, fn func(*process.Record)) bool {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	fn(rec)
	return true
}

// Get returns a copy of the record.
func (r *Registry) Get(id string) (process.Info, bool) {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return process.Info{}, false
	}
	return rec.Info(), true
}

// List returns copies of all records, oldest first.
func (r *Registry) List() []process.Info {
	r.recMu.Lock()
	out := make([]process.Info, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Info())
	}
	r.recMu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Poll returns the lines appended since the previous Poll of id, together
// with the current status and exit code.
func (r *Registry) Poll(id string) (lines []string, status process.Status, exitCode *int, ok bool) {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, 0, nil, false
	}
	lines = rec.Poll()
	if rec.ExitCode != nil {
		c := *rec.ExitCode
		exitCode = &c
	}
	return lines, rec.Status, exitCode, true
}

// RemoveRecord deletes the record and returns it.
func (r *Registry) RemoveRecord(id string) (*process.Record, bool) {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	rec, ok := r.records[id]
	if ok {
		delete(r.records, id)
	}
	return rec, ok
}

// TakeHandle removes and returns the handle for id.
func (r *Registry) TakeHandle(id string) (*process.Handle, bool) {
	r.hMu.Lock()
	defer r.hMu.Unlock()
	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
	}
	return h, ok
}

// TakeHandleOf removes and returns the handle for id only if it still owns
// c. A handle that was already detached, or replaced, is left alone.
func (r *Registry) TakeHandleOf(id string, c *process.Child) (*process.Handle, bool) {
	r.hMu.Lock()
	defer r.hMu.Unlock()
	h, ok := r.handles[id]
	if !ok || h.Child() != c {
		return nil, false
	}
	delete(r.handles, id)
	return h, true
}

// HandleCount returns the number of live handles.
func (r *Registry) HandleCount() int {
	r.hMu.Lock()
	defer r.hMu.Unlock()
	return len(r.handles)
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.recMu.Lock()
	defer r.recMu.Unlock()
	return len(r.records)
}

// DrainAll takes both locks, handles first, and empties both maps. The
// drained handles are returned for the caller to kill and reap.
func (r *Registry) DrainAll() map[string]*process.Handle {
	r.hMu.Lock()
	defer r.hMu.Unlock()
	r.recMu.Lock()
	defer r.recMu.Unlock()
	return r.drainLocked()
}

// TryDrainAll is DrainAll without waiting: if either lock is held it
// returns false and leaves both maps untouched.
func (r *Registry) TryDrainAll() (map[string]*process.Handle, bool) {
	if !r.hMu.TryLock() {
		return nil, false
	}
	defer r.hMu.Unlock()
	if !r.recMu.TryLock() {
		return nil, false
	}
	defer r.recMu.Unlock()
	return r.drainLocked(), true
}

func (r *Registry) drainLocked() map[string]*process.Handle {
	hs := r.handles
	r.handles = make(map[string]*process.Handle)
	clear(r.records)
	return hs
}
