// ABOUTME: Tagged buffer queue shared by all backends
// ABOUTME: Pull-model io.Reader with pitch stepping, gain and buffer-end notification
package output

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

type queued struct {
	data []byte
	tag  int
}

// slotQueue holds submitted buffers in play order. Backends pull from it on
// their audio goroutine; reads never block and fill gaps with silence.
type slotQueue struct {
	mu        sync.Mutex
	block     int
	bufs      []queued
	pos       float64 // frame offset into bufs[0]
	ratio     float64
	gain      float64
	running   bool
	underruns uint64
	onEnd     func(tag int)
}

func newSlotQueue() *slotQueue {
	return &slotQueue{ratio: 1, gain: 1, block: audio.Canonical.BlockAlign()}
}

func (q *slotQueue) reset(format audio.Format, onEnd func(int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.block = format.BlockAlign()
	if q.block == 0 {
		q.block = audio.Canonical.BlockAlign()
	}
	q.bufs = nil
	q.pos = 0
	q.onEnd = onEnd
}

func (q *slotQueue) push(buf []byte, tag int) {
	q.mu.Lock()
	q.bufs = append(q.bufs, queued{data: buf, tag: tag})
	q.mu.Unlock()
}

func (q *slotQueue) setRunning(running bool) {
	q.mu.Lock()
	q.running = running
	q.mu.Unlock()
}

func (q *slotQueue) setRatio(r float64) {
	q.mu.Lock()
	q.ratio = clampRatio(r)
	q.mu.Unlock()
}

func (q *slotQueue) getRatio() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ratio
}

func (q *slotQueue) setGain(g float64) {
	q.mu.Lock()
	q.gain = clampVolume(g)
	q.mu.Unlock()
}

func (q *slotQueue) getGain() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gain
}

func (q *slotQueue) underrunCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.underruns
}

// pending returns the number of queued buffers
func (q *slotQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.bufs)
}

// Read fills p completely. Buffers that are used up during the read are
// reported to onEnd after the queue lock is released.
func (q *slotQueue) Read(p []byte) (int, error) {
	q.mu.Lock()

	block := q.block
	frames := len(p) / block
	var done []int
	written := 0

	for written < frames {
		done = q.dropConsumed(done)
		if len(q.bufs) == 0 {
			break
		}
		head := q.bufs[0].data
		headFrames := len(head) / block

		if q.ratio == 1 && q.pos == math.Trunc(q.pos) {
			start := int(q.pos)
			n := min(headFrames-start, frames-written)
			copy(p[written*block:(written+n)*block], head[start*block:(start+n)*block])
			written += n
			q.pos += float64(n)
			continue
		}

		idx := int(q.pos) * block
		copy(p[written*block:(written+1)*block], head[idx:idx+block])
		written++
		q.pos += q.ratio
	}
	done = q.dropConsumed(done)

	clear(p[written*block:])
	if written < frames && q.running {
		q.underruns++
	}
	if q.gain != 1 {
		applyGain(p[:written*block], q.gain)
	}

	onEnd := q.onEnd
	q.mu.Unlock()

	if onEnd != nil {
		for _, tag := range done {
			onEnd(tag)
		}
	}
	return len(p), nil
}

func (q *slotQueue) dropConsumed(done []int) []int {
	for len(q.bufs) > 0 {
		headFrames := len(q.bufs[0].data) / q.block
		if int(q.pos) < headFrames {
			break
		}
		q.pos -= float64(headFrames)
		done = append(done, q.bufs[0].tag)
		q.bufs[0] = queued{}
		q.bufs = q.bufs[1:]
	}
	return done
}

// applyGain scales 16-bit samples in place
func applyGain(p []byte, gain float64) {
	for i := 0; i+1 < len(p); i += 2 {
		s := int16(binary.LittleEndian.Uint16(p[i:]))
		binary.LittleEndian.PutUint16(p[i:], uint16(audio.ClampInt16(int64(math.Round(float64(s)*gain)))))
	}
}
