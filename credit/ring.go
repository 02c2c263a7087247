package credit

// txRing is a fixed-capacity circular buffer of transaction records.
// It preserves insertion order for the most recent capacity entries and
// overwrites the oldest once full.
type txRing struct {
	buf  []Transaction
	next int
	full bool
}

func newTxRing(capacity int) *txRing {
	if capacity < 1 {
		capacity = 1
	}
	return &txRing{buf: make([]Transaction, capacity)}
}

func (r *txRing) append(t Transaction) {
	r.buf[r.next] = t
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// list returns the retained records, oldest first.
func (r *txRing) list() []Transaction {
	if !r.full {
		out := make([]Transaction, r.next)
		copy(out, r.buf[:r.next])
		return out
	}

	out := make([]Transaction, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

func (r *txRing) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}
