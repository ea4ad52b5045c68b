package lookup

// Pool is a fixed-capacity slab of *Record plus a free-index stack. It
// replaces sync.Pool for this role because sync.Pool gives no guarantee
// that a put-back item survives until the next Get — the GC is free to
// drop it between a GC cycle, which would silently violate the
// invariant that table.Size()+Pool.FreeCount() always equals capacity.
// A slab with an explicit free list makes that invariant mechanical.
type Pool struct {
	slab []Record
	free []int32 // stack of free slot indices
}

// NewPool preallocates capacity records and marks all of them free.
func NewPool(capacity int) *Pool {
	p := &Pool{
		slab: make([]Record, capacity),
		free: make([]int32, capacity),
	}
	for i := range p.slab {
		p.slab[i].slot = i
		p.free[i] = int32(capacity - 1 - i) // stack top holds slot 0, so Get hands out slot 0 first; order is irrelevant
	}
	return p
}

// Get removes a record from the free list, resets it, and returns it.
// It reports ok=false if the pool is exhausted — this should never
// happen given the table.Size()+Pool.FreeCount()=capacity invariant,
// since the engine never admits more lookups than the table can hold.
func (p *Pool) Get() (*Record, bool) {
	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	r := &p.slab[idx]
	r.Reset()
	return r, true
}

// Put returns r to the free list. r must have been obtained from this
// Pool via Get.
func (p *Pool) Put(r *Record) {
	p.free = append(p.free, int32(r.slot))
}

// FreeCount reports how many records are currently available.
func (p *Pool) FreeCount() int {
	return len(p.free)
}

// Capacity reports the total number of records the pool was created with.
func (p *Pool) Capacity() int {
	return len(p.slab)
}
