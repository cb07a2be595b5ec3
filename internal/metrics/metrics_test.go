package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyrate/internal/bitrate"
	"keyrate/pkg/av"
)

func TestRecorderObservesPackets(t *testing.T) {
	r := NewRecorder()
	video := av.StreamDescriptor{Index: 0, Type: av.Video}

	r.PacketRouted(video, &av.Packet{Size: 100})
	r.PacketRouted(video, &av.Packet{Size: 50})
	r.PacketDropped(&av.Packet{StreamIndex: 4})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.packets.WithLabelValues("0", "Video")))
	assert.Equal(t, 150.0, testutil.ToFloat64(r.bytes.WithLabelValues("0", "Video")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dropped))
}

func TestRecorderSamples(t *testing.T) {
	r := NewRecorder()

	r.Emit(bitrate.Sample{StreamIndex: 1, Type: av.Audio, BitsPerSecond: 128000})
	r.Emit(bitrate.Sample{StreamIndex: 1, Type: av.Audio, BitsPerSecond: 96000, Final: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.samples.WithLabelValues("1", "Audio", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.samples.WithLabelValues("1", "Audio", "true")))
	assert.Equal(t, 96000.0, testutil.ToFloat64(r.bitrate.WithLabelValues("1", "Audio")))
}

func TestRecorderWithCoordinator(t *testing.T) {
	r := NewRecorder()
	c := bitrate.NewCoordinator(
		[]av.StreamDescriptor{{Index: 0, Type: av.Video, TimeBase: av.Rational{Num: 1, Den: 1000}}},
		bitrate.WithSink(r), bitrate.WithObserver(r),
	)

	c.Accumulators()[0].Consume(&av.Packet{KeyFrame: true, PTS: av.TS(0), Size: 100})
	c.Accumulators()[0].Consume(&av.Packet{KeyFrame: true, PTS: av.TS(1000), Size: 100})

	mfs, err := r.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["keyrate_samples_total"])
	assert.True(t, names["keyrate_bitrate_bps"])
	assert.Equal(t, 800.0, testutil.ToFloat64(r.bitrate.WithLabelValues("0", "Video")))
}
