package client

import (
	"math/rand/v2"
	"time"
)

// backoff is capped exponential backoff with equal jitter.
type backoff struct {
	min time.Duration
	max time.Duration
}

func (b backoff) delay(attempt int) time.Duration {
	d := b.min
	for i := 0; i < attempt && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}
