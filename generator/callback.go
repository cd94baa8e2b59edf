package generator

import "time"

// process is the device data callback. It runs on the backend's real-time
// thread and must not allocate, lock, log or block.
//
// The active source generates straight into the device output and the same
// samples are then copied into the ring buffer, so the consumer sees exactly
// what was played. With no source the output is silence, and so is what the
// consumer reads.
func (g *Generator) process(out []float32, frames int) {
	start := time.Now()
	g.stats.callbacks.Add(1)

	ch := g.channels
	if limit := len(out) / ch; frames > limit {
		frames = limit
	}
	out = out[:frames*ch]

	src := g.source.Load()
	if src == nil {
		clear(out)
		g.stats.silent.Add(1)
	} else {
		n := src.Generate(out, frames)
		clear(out[n*ch:])
		g.stats.frames.Add(uint64(n))
	}

	g.buf.Write(out)
	g.stats.observeCallback(time.Since(start))
}
