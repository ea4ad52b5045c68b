package lookup

import (
	"github.com/rahmiy/massdns-go/internal/resolvers"
	"github.com/rahmiy/massdns-go/internal/wheel"
)

// Record is the per-lookup state tracked while a query is in flight.
// Records are never allocated individually; they live in a Pool's slab
// and are reused across the lifetime of a run.
type Record struct {
	Key       Key
	Resolver  resolvers.Resolver
	SocketIdx int
	XID       uint16
	Retries   int
	Handle    wheel.Handle

	slot int // index into the owning Pool's slab; set once, never reused
}

// Reset clears a record's lookup-specific state before it is handed out
// by Pool.Get. It does not touch slot, which is fixed for the record's
// lifetime.
func (r *Record) Reset() {
	r.Key = Key{}
	r.Resolver = resolvers.Resolver{}
	r.SocketIdx = 0
	r.XID = 0
	r.Retries = 0
	r.Handle = wheel.Handle{}
}
