// Package bitrate estimates per-stream bitrate from the bytes carried
// between consecutive keyframes.
package bitrate

import (
	"keyrate/pkg/av"
)

// Sample is the bitrate of one closed keyframe interval.
type Sample struct {
	StreamIndex   int
	Type          av.MediaType
	Time          float64 // seconds, at the interval end
	BitsPerSecond float64
	Bytes         uint64
	Duration      float64 // seconds
	Final         bool    // emitted by Flush for a trailing partial interval
}

// Sink receives every sample as it is emitted.
type Sink interface {
	Emit(Sample)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Sample)

func (f SinkFunc) Emit(s Sample) { f(s) }

// MultiSink fans a sample out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(s Sample) {
	for _, sink := range m {
		sink.Emit(s)
	}
}

type nopSink struct{}

func (nopSink) Emit(Sample) {}

// Accumulator tracks one stream. It is not safe for concurrent use.
type Accumulator struct {
	index int
	ty    av.MediaType
	scale float64 // seconds per tick

	count    uint64
	keyCount uint64
	pts      av.Timestamp // last seen
	keyPts   av.Timestamp

	skipped int // boundaries with a non-positive time delta
	sink    Sink
}

// NewAccumulator starts an empty accumulator on desc's time base. A nil sink
// discards samples.
func NewAccumulator(desc av.StreamDescriptor, sink Sink) *Accumulator {
	if sink == nil {
		sink = nopSink{}
	}

	return &Accumulator{
		index: desc.Index,
		ty:    desc.Type,
		scale: desc.TimeBase.Float64(),
		sink:  sink,
	}
}

func (a *Accumulator) Index() int { return a.index }

func (a *Accumulator) Type() av.MediaType { return a.ty }

func (a *Accumulator) Scale() float64 { return a.scale }

func (a *Accumulator) SetScale(scale float64) { a.scale = scale }

// Bytes is the running total of consumed packet sizes.
func (a *Accumulator) Bytes() uint64 { return a.count }

// Skipped counts keyframe boundaries dropped because time did not advance.
func (a *Accumulator) Skipped() int { return a.skipped }

// Consume accounts one packet. A keyframe with a timestamp closes the
// current interval before its own bytes are counted.
func (a *Accumulator) Consume(pkt *av.Packet) {
	if pkt.KeyFrame && pkt.PTS.Valid {
		bytes := a.count - a.keyCount
		if bytes > 0 && a.keyPts.Valid {
			if !a.emit(bytes, pkt.PTS.Ticks, a.keyPts.Ticks, false) {
				a.skipped++
			}
		}
		a.keyCount = a.count
		a.keyPts = pkt.PTS
	}

	a.pts = pkt.PTS.Or(a.pts)
	if pkt.Size > 0 {
		a.count += uint64(pkt.Size)
	}
}

// Flush reports the trailing interval using the last seen timestamp in
// place of a closing keyframe. It never fails.
func (a *Accumulator) Flush() {
	bytes := a.count - a.keyCount
	if bytes > 0 && a.pts.Valid && a.keyPts.Valid {
		a.emit(bytes, a.pts.Ticks, a.keyPts.Ticks, true)
	}
}

func (a *Accumulator) emit(bytes uint64, pts, keyPts int64, final bool) bool {
	delta := pts - keyPts
	if delta <= 0 || a.scale <= 0 {
		return false
	}

	duration := float64(delta) * a.scale
	a.sink.Emit(Sample{
		StreamIndex:   a.index,
		Type:          a.ty,
		Time:          float64(pts) * a.scale,
		BitsPerSecond: 8 * float64(bytes) / duration,
		Bytes:         bytes,
		Duration:      duration,
		Final:         final,
	})
	return true
}
