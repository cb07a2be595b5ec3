package bitrate

import (
	"io"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"keyrate/pkg/av"
)

// PacketReader yields packets until io.EOF.
type PacketReader interface {
	ReadPacket() (*av.Packet, error)
}

// Observer sees every packet the coordinator handles.
type Observer interface {
	PacketRouted(desc av.StreamDescriptor, pkt *av.Packet)
	PacketDropped(pkt *av.Packet)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithSink(sink Sink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithNativeTimeBase keeps every stream on its own time base instead of
// the first video stream's.
func WithNativeTimeBase() Option {
	return func(c *Coordinator) { c.native = true }
}

// Coordinator owns one Accumulator per stream for the length of a run.
type Coordinator struct {
	accs    []*Accumulator
	descs   []av.StreamDescriptor
	byIndex map[int]int //<StreamIndex, position in accs>

	sink     Sink
	observer Observer
	logger   logrus.FieldLogger
	native   bool

	dropLimiter *rate.Limiter
	dropped     int
	packets     int
	finalized   bool
}

// NewCoordinator builds one accumulator per descriptor, in the given order.
// Every stream is put on the first video stream's time base unless
// WithNativeTimeBase is passed.
func NewCoordinator(streams []av.StreamDescriptor, opts ...Option) *Coordinator {
	c := &Coordinator{
		byIndex:     make(map[int]int, len(streams)),
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.sink == nil {
		c.sink = nopSink{}
	}
	if c.logger == nil {
		l := logrus.New()
		l.SetOutput(ioutil.Discard)
		c.logger = l
	}

	for _, desc := range streams {
		if _, ok := c.byIndex[desc.Index]; ok {
			c.logger.WithField("stream", desc.Index).Warn("duplicate stream index, keeping the first")
			continue
		}
		c.byIndex[desc.Index] = len(c.accs)
		c.accs = append(c.accs, NewAccumulator(desc, c.sink))
		c.descs = append(c.descs, desc)
	}

	if !c.native {
		c.NormalizeTimeBase()
	}

	return c
}

// Accumulators returns the accumulators in construction order.
func (c *Coordinator) Accumulators() []*Accumulator {
	return c.accs
}

// NormalizeTimeBase moves every accumulator onto the first video stream's
// scale factor. Non-video time bases reported by some containers are not
// reliable. Without a video stream nothing changes.
func (c *Coordinator) NormalizeTimeBase() bool {
	for _, acc := range c.accs {
		if acc.Type() != av.Video {
			continue
		}

		scale := acc.Scale()
		for _, other := range c.accs {
			if other.Scale() != scale {
				c.logger.WithFields(logrus.Fields{
					"stream": other.Index(),
					"type":   other.Type().String(),
					"native": other.Scale(),
					"scale":  scale,
				}).Debug("normalize time base")
			}
			other.SetScale(scale)
		}
		return true
	}

	return false
}

// Run pulls packets until the reader is exhausted. A read error aborts the
// run; samples already emitted stay emitted.
func (c *Coordinator) Run(r PacketReader) error {
	for {
		pkt, err := r.ReadPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "read packet %d", c.packets+c.dropped+1)
		}

		c.route(pkt)
	}

	c.logger.WithFields(logrus.Fields{
		"packets": c.packets,
		"dropped": c.dropped,
	}).Debug("packet source exhausted")
	return nil
}

func (c *Coordinator) route(pkt *av.Packet) {
	pos, ok := c.byIndex[pkt.StreamIndex]
	if !ok {
		c.dropped++
		if c.observer != nil {
			c.observer.PacketDropped(pkt)
		}
		if c.dropLimiter.Allow() {
			c.logger.WithFields(logrus.Fields{
				"stream":  pkt.StreamIndex,
				"dropped": c.dropped,
			}).Debug("drop packet for untracked stream")
		}
		return
	}

	c.packets++
	c.accs[pos].Consume(pkt)
	if c.observer != nil {
		c.observer.PacketRouted(c.descs[pos], pkt)
	}
}

// Finalize flushes every accumulator once, in construction order.
func (c *Coordinator) Finalize() {
	if c.finalized {
		return
	}
	c.finalized = true

	for _, acc := range c.accs {
		acc.Flush()
		if n := acc.Skipped(); n > 0 {
			c.logger.WithFields(logrus.Fields{
				"stream":  acc.Index(),
				"skipped": n,
			}).Warn("keyframe intervals without elapsed time were not reported")
		}
	}
}

// Dropped is the number of packets for untracked streams.
func (c *Coordinator) Dropped() int {
	return c.dropped
}
