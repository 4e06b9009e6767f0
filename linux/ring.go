package linux

import (
	"sync"
	"time"
)

// reply is one decoded CMD_STATUS or CMD_COMPLETE event, as pushed by
// the reader loop and drained by blocked command callers.
type reply struct {
	opcode   uint16
	complete bool   // CMD_COMPLETE if true, CMD_STATUS otherwise
	status   uint8  // CMD_STATUS status byte; unused for completes
	params   []byte // CMD_COMPLETE return parameters
	at       time.Time
}

// replyRing is a bounded FIFO of command replies. The reader loop is
// the only producer that matters for ordering, but pushes are safe from
// any goroutine. When full it drops the oldest quarter of entries so a
// burst of unclaimed replies cannot wedge command issuance.
type replyRing struct {
	mu      sync.Mutex
	ch      chan reply
	size    int
	dropped func(n int)
}

func newReplyRing(size int, dropped func(n int)) *replyRing {
	if size < 4 {
		size = 4
	}
	return &replyRing{ch: make(chan reply, size), size: size, dropped: dropped}
}

func (r *replyRing) capacity() int { return r.size }

func (r *replyRing) push(ev reply) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ch) == r.size {
		n := r.size / 4
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			<-r.ch
		}
		if r.dropped != nil {
			r.dropped(n)
		}
	}
	r.ch <- ev
}

// pull blocks until a reply is available or the timeout elapses.
func (r *replyRing) pull(timeout time.Duration) (reply, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev := <-r.ch:
		return ev, true
	case <-t.C:
		return reply{}, false
	}
}
