package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/llamactl/internal/process"
)

func newRecord(id string) *process.Record {
	return process.NewRecord(id, "/models/"+id+".gguf", "127.0.0.1", 8080, []string{"llama-server"})
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestInsertGetListRemove(t *testing.T) {
	r := New()
	a, b := newRecord("a"), newRecord("b")
	b.CreatedAt = a.CreatedAt.Add(time.Second)
	r.Insert(a, &process.Handle{})
	r.Insert(b, &process.Handle{})

	info, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", info.ModelName)
	assert.Equal(t, process.StatusStarting, info.Status)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	_, ok = r.RemoveRecord("a")
	assert.True(t, ok)
	_, ok = r.Get("a")
	assert.False(t, ok)
	_, ok = r.RemoveRecord("a")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	r := New()
	r.Insert(newRecord("a"), &process.Handle{})
	info, _ := r.Get("a")
	info.Command[0] = "mutated"
	again, _ := r.Get("a")
	assert.Equal(t, "llama-server", again.Command[0])
}

func TestPollIsIncremental(t *testing.T) {
	r := New()
	r.Insert(newRecord("a"), &process.Handle{})
	r.Update("a", func(rec *process.Record) {
		rec.Output.Append("[OUT] one")
		rec.Output.Append("[INFO] two")
	})

	lines, st, code, ok := r.Poll("a")
	require.True(t, ok)
	assert.Len(t, lines, 2)
	assert.Equal(t, process.StatusStarting, st)
	assert.Nil(t, code)

	lines, _, _, _ = r.Poll("a")
	assert.Empty(t, lines)

	_, _, _, ok = r.Poll("missing")
	assert.False(t, ok)
}

func TestTakeHandle(t *testing.T) {
	r := New()
	h := &process.Handle{}
	r.Insert(newRecord("a"), h)

	got, ok := r.TakeHandle("a")
	require.True(t, ok)
	assert.Same(t, h, got)
	_, ok = r.TakeHandle("a")
	assert.False(t, ok)
}

func TestTakeHandleOfChecksOwner(t *testing.T) {
	r := New()
	// a detached handle owns no child, so only a nil child matches
	r.Insert(newRecord("a"), &process.Handle{})

	_, ok := r.TakeHandleOf("a", &process.Child{})
	assert.False(t, ok, "handle owning a different child must stay")
	assert.Equal(t, 1, r.HandleCount())

	_, ok = r.TakeHandleOf("a", nil)
	assert.True(t, ok)
	assert.Zero(t, r.HandleCount())
	_, ok = r.TakeHandleOf("a", nil)
	assert.False(t, ok)
}

func TestDrainAll(t *testing.T) {
	r := New()
	for i := 0; i < 3; i++ {
		r.Insert(newRecord(fmt.Sprint(i)), &process.Handle{})
	}
	hs := r.DrainAll()
	assert.Len(t, hs, 3)
	assert.Zero(t, r.Len())
	assert.Zero(t, r.HandleCount())
}

func TestTryDrainAllFailsUnderContention(t *testing.T) {
	r := New()
	r.Insert(newRecord("a"), &process.Handle{})

	r.hMu.Lock()
	_, ok := r.TryDrainAll()
	r.hMu.Unlock()
	assert.False(t, ok)

	r.recMu.Lock()
	_, ok = r.TryDrainAll()
	r.recMu.Unlock()
	assert.False(t, ok)
	assert.Equal(t, 1, r.HandleCount(), "failed try must leave maps untouched")
	assert.Equal(t, 1, r.Len())

	hs, ok := r.TryDrainAll()
	assert.True(t, ok)
	assert.Len(t, hs, 1)
}

func TestSealRejectsInsert(t *testing.T) {
	r := New()
	require.True(t, r.Insert(newRecord("a"), &process.Handle{}))
	assert.False(t, r.Sealed())

	r.Seal()
	assert.True(t, r.Sealed())
	assert.False(t, r.Insert(newRecord("b"), &process.Handle{}))
	_, ok := r.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 1, r.HandleCount())
	assert.Len(t, r.DrainAll(), 1)
}

func TestInsertNeverRacesDrain(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Insert(newRecord(fmt.Sprint(i)), &process.Handle{})
		}(i)
	}
	drained := 0
	for i := 0; i < 10; i++ {
		drained += len(r.DrainAll())
	}
	wg.Wait()
	assert.Equal(t, r.Len(), r.HandleCount())
	assert.Equal(t, 50, drained+r.HandleCount())
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprint(i)
			r.Insert(newRecord(id), &process.Handle{})
			for j := 0; j < 50; j++ {
				r.Update(id, func(rec *process.Record) { rec.Output.Append("x") })
				_, _, _, _ = r.Poll(id)
				_ = r.List()
			}
			_, _ = r.TakeHandle(id)
			_, _ = r.RemoveRecord(id)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, r.Len())
	assert.Zero(t, r.HandleCount())
}
