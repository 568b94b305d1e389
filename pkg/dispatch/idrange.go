package dispatch

// idRange hands out command IDs in [lo, hi], wrapping around.
type idRange struct {
	lo, hi int
	next   int
}

func newIDRange(lo, hi int) *idRange {
	return &idRange{lo: lo, hi: hi, next: lo}
}

// allocate returns the next ID for which inUse is false.
// It reports false when every ID in the range is in use.
func (r *idRange) allocate(inUse func(id int) bool) (int, bool) {
	for n := r.hi - r.lo + 1; n > 0; n-- {
		id := r.next
		r.next++
		if r.next > r.hi {
			r.next = r.lo
		}
		if !inUse(id) {
			return id, true
		}
	}
	return 0, false
}
