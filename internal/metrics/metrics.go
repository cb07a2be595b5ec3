// Package metrics exposes run progress as Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"keyrate/internal/bitrate"
	"keyrate/pkg/av"
)

const namespace = "keyrate"

// Recorder implements bitrate.Observer and bitrate.Sink. Collectors live on
// a private registry so tests and servers can gather them in isolation.
type Recorder struct {
	registry *prometheus.Registry

	packets *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	dropped prometheus.Counter
	samples *prometheus.CounterVec
	bitrate *prometheus.GaugeVec
}

var (
	_ bitrate.Observer = (*Recorder)(nil)
	_ bitrate.Sink     = (*Recorder)(nil)
)

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Packets consumed per stream.",
		}, []string{"stream", "type"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Payload bytes consumed per stream.",
		}, []string{"stream", "type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_packets_total",
			Help:      "Packets whose stream is not tracked.",
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Bitrate samples emitted per stream.",
		}, []string{"stream", "type", "final"}),
		bitrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bitrate_bps",
			Help:      "Most recent keyframe interval bitrate in bits per second.",
		}, []string{"stream", "type"}),
	}

	r.registry.MustRegister(r.packets, r.bytes, r.dropped, r.samples, r.bitrate)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) PacketRouted(desc av.StreamDescriptor, pkt *av.Packet) {
	stream := strconv.Itoa(desc.Index)
	ty := desc.Type.String()
	r.packets.WithLabelValues(stream, ty).Inc()
	if pkt.Size > 0 {
		r.bytes.WithLabelValues(stream, ty).Add(float64(pkt.Size))
	}
}

func (r *Recorder) PacketDropped(*av.Packet) {
	r.dropped.Inc()
}

func (r *Recorder) Emit(s bitrate.Sample) {
	stream := strconv.Itoa(s.StreamIndex)
	ty := s.Type.String()
	r.samples.WithLabelValues(stream, ty, strconv.FormatBool(s.Final)).Inc()
	r.bitrate.WithLabelValues(stream, ty).Set(s.BitsPerSecond)
}
