package lookup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetPutInvariant(t *testing.T) {
	capacity := 8
	p := NewPool(capacity)
	assert.Equal(t, capacity, p.FreeCount())

	var got []*Record
	for i := 0; i < capacity; i++ {
		r, ok := p.Get()
		require.True(t, ok)
		got = append(got, r)
	}
	assert.Equal(t, 0, p.FreeCount())

	_, ok := p.Get()
	assert.False(t, ok, "pool exhausted beyond capacity must report !ok, never panic")

	for _, r := range got {
		p.Put(r)
	}
	assert.Equal(t, capacity, p.FreeCount())
}

func TestPoolGetResetsRecord(t *testing.T) {
	p := NewPool(1)
	r, ok := p.Get()
	require.True(t, ok)
	r.Key = Key{Name: "example.com.", Type: 1}
	r.Retries = 3
	p.Put(r)

	r2, ok := p.Get()
	require.True(t, ok)
	assert.Same(t, r, r2)
	assert.Equal(t, Key{}, r2.Key)
	assert.Equal(t, 0, r2.Retries)
}

func TestPoolSizeEqualsCapacityInvariant(t *testing.T) {
	capacity := 10
	p := NewPool(capacity)
	tbl := NewTable(capacity)

	held := make([]*Record, 0, capacity)
	for i := 0; i < capacity; i++ {
		r, ok := p.Get()
		require.True(t, ok)
		held = append(held, r)
	}
	// Emulate the engine inserting every held record into the table.
	for i, r := range held {
		k := Key{Name: string(rune('a' + i)), Type: 1}
		r.Key = k
		require.True(t, tbl.InsertIfAbsent(k, r))
	}
	assert.Equal(t, capacity, tbl.Size()+p.FreeCount())

	tbl.Remove(held[0].Key)
	p.Put(held[0])
	assert.Equal(t, capacity, tbl.Size()+p.FreeCount())
}
