package negotiation

// CandidateBuffer queues remote candidates that arrive before the remote
// description is applied. It is owned by a single session actor and is not
// safe for concurrent use.
type CandidateBuffer struct {
	queue  []Candidate
	sealed bool
}

func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{}
}

// Push appends c in arrival order. It returns false once the buffer has been
// drained; the caller must then apply c directly.
func (b *CandidateBuffer) Push(c Candidate) bool {
	if b.sealed {
		return false
	}
	b.queue = append(b.queue, c)
	return true
}

// Drain returns the queued candidates in arrival order and seals the buffer.
// A second Drain returns nil.
func (b *CandidateBuffer) Drain() []Candidate {
	if b.sealed {
		return nil
	}
	b.sealed = true
	out := b.queue
	b.queue = nil
	return out
}

// Discard drops queued candidates without applying them.
func (b *CandidateBuffer) Discard() {
	b.queue = nil
	b.sealed = true
}

func (b *CandidateBuffer) Len() int { return len(b.queue) }

func (b *CandidateBuffer) Sealed() bool { return b.sealed }
