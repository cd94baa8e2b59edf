package generator

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of the generator's diagnostics counters.
type Stats struct {
	Callbacks       uint64        // device callbacks handled
	FramesGenerated uint64        // frames produced from a signal source
	SilentCallbacks uint64        // callbacks answered with silence
	Overruns        uint64        // samples discarded because the consumer fell behind
	UnderrunReads   uint64        // GetBuffer calls that found nothing to read
	MaxCallback     time.Duration // longest callback
}

func (s Stats) String() string {
	return fmt.Sprintf("callbacks=%d frames=%d silent=%d overruns=%d underruns=%d max_callback=%v",
		s.Callbacks, s.FramesGenerated, s.SilentCallbacks, s.Overruns, s.UnderrunReads, s.MaxCallback)
}

// counters are updated from the audio callback, so they are plain atomics.
type counters struct {
	callbacks     atomic.Uint64
	frames        atomic.Uint64
	silent        atomic.Uint64
	underrunReads atomic.Uint64
	maxCallbackNs atomic.Int64
}

func (c *counters) observeCallback(d time.Duration) {
	ns := int64(d)
	for {
		cur := c.maxCallbackNs.Load()
		if ns <= cur || c.maxCallbackNs.CompareAndSwap(cur, ns) {
			return
		}
	}
}

func (c *counters) snapshot(overruns uint64) Stats {
	return Stats{
		Callbacks:       c.callbacks.Load(),
		FramesGenerated: c.frames.Load(),
		SilentCallbacks: c.silent.Load(),
		Overruns:        overruns,
		UnderrunReads:   c.underrunReads.Load(),
		MaxCallback:     time.Duration(c.maxCallbackNs.Load()),
	}
}
