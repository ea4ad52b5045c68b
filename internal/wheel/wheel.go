// Package wheel implements a timing wheel used to schedule per-lookup
// retry timeouts and periodic progress ticks.
//
// A timing wheel trades away the log(n) insert/remove cost of a heap for
// O(1) schedule and cancel, at the price of a fixed resolution: it can
// only say "fire sometime in this bucket's window", not "fire at this
// exact instant". That tradeoff fits a query engine with tens of
// thousands of timers in flight and a single fixed retry interval.
package wheel

import "container/list"

// entry is the payload stored at each wheel position, along with enough
// bookkeeping to support O(1) removal.
type entry struct {
	bucket  int
	elem    *list.Element
	payload any
}

// Handle lets a caller cancel a scheduled entry in O(1) without knowing
// which bucket it landed in.
type Handle struct {
	e *entry
}

// Wheel is a circular array of buckets, each a doubly-linked list of
// entries. Entries are not safe for concurrent use; a Wheel is owned by
// a single worker goroutine.
type Wheel struct {
	resolution int // milliseconds per bucket
	span       int // number of buckets
	cursor     int // current bucket index
	lastMS     int64
	started    bool // lastMS has been set by a first Handle call
	buckets    []*list.List
}

// New creates a Wheel with the given resolution (milliseconds per
// bucket) and span (bucket count). span should be sized so that
// resolution*span comfortably exceeds the longest delay ever scheduled;
// longer delays are clamped rather than rejected.
func New(resolutionMS, span int) *Wheel {
	if resolutionMS <= 0 {
		resolutionMS = 1
	}
	if span <= 1 {
		span = 2
	}
	buckets := make([]*list.List, span)
	for i := range buckets {
		buckets[i] = list.New()
	}
	return &Wheel{
		resolution: resolutionMS,
		span:       span,
		buckets:    buckets,
	}
}

// Add schedules payload to fire after delayMS milliseconds and returns a
// handle for O(1) cancellation. Delays beyond the wheel's span are
// clamped to the furthest bucket rather than rejected; a delay of zero
// or less lands in the next bucket.
func (w *Wheel) Add(delayMS int64, payload any) Handle {
	steps := ceilDiv(delayMS, int64(w.resolution))
	maxSteps := int64(w.span - 1)
	if steps > maxSteps {
		steps = maxSteps
	}
	if steps < 1 {
		steps = 1
	}
	bucket := (w.cursor + int(steps)) % w.span

	e := &entry{bucket: bucket, payload: payload}
	e.elem = w.buckets[bucket].PushBack(e)
	return Handle{e: e}
}

// Remove unlinks the entry referenced by h. It is safe to call on any
// live handle; calling it twice on the same handle is a no-op the
// second time since the element is already unlinked.
func (w *Wheel) Remove(h Handle) {
	if h.e == nil || h.e.elem == nil {
		return
	}
	w.buckets[h.e.bucket].Remove(h.e.elem)
	h.e.elem = nil
}

// Handle advances the cursor from its last position up to the bucket
// corresponding to nowMS, invoking callback once for every entry in
// every bucket it passes through (including the destination bucket).
// Entries scheduled during callback execution land in a future bucket,
// never the one currently being drained, since Add always places an
// entry at least one bucket past the wheel's current cursor and callback-triggered Add
// calls happen while cursor already points at the bucket being drained.
func (w *Wheel) Handle(nowMS int64, callback func(payload any)) {
	if !w.started {
		w.started = true
		w.lastMS = nowMS
	}
	elapsed := nowMS - w.lastMS
	if elapsed <= 0 {
		return
	}
	steps := elapsed / int64(w.resolution)
	if steps <= 0 {
		return
	}
	if steps > int64(w.span) {
		steps = int64(w.span)
	}
	w.lastMS += steps * int64(w.resolution)

	for i := int64(0); i < steps; i++ {
		w.cursor = (w.cursor + 1) % w.span
		bucket := w.buckets[w.cursor]
		for el := bucket.Front(); el != nil; {
			next := el.Next()
			e := el.Value.(*entry)
			bucket.Remove(el)
			e.elem = nil
			callback(e.payload)
			el = next
		}
	}
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
