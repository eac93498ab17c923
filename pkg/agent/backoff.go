package agent

import (
	"math/rand"
	"time"
)

const (
	initialBackoff   = 1 * time.Second
	maxBackoff       = 60 * time.Second
	stableResetAfter = 60 * time.Second
)

// backoff computes the reconnect delay sequence 1s, 2s, 4s, 8s, ... capped
// at maxBackoff, with jitter so many agents reconnecting at once don't
// thunder against the control plane simultaneously. reset() returns the
// sequence to 1s, called after a session stays Active for stableResetAfter.
type backoff struct {
	attempt int
}

func (b *backoff) next() time.Duration {
	d := initialBackoff
	for i := 0; i < b.attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	if b.attempt < 32 { // bound growth; d is already capped well before this
		b.attempt++
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

func (b *backoff) reset() {
	b.attempt = 0
}
