package flv_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyrate/pkg/av"
	"keyrate/pkg/flv"
	"keyrate/pkg/flv/flvtest"
)

func readAll(t *testing.T, dm *flv.Demuxer) []*av.Packet {
	t.Helper()

	var pkts []*av.Packet
	for {
		pkt, err := dm.ReadPacket()
		if err == io.EOF {
			return pkts
		}
		require.NoError(t, err)
		pkts = append(pkts, pkt)
	}
}

func TestDemuxerStreamsFromHeader(t *testing.T) {
	cases := []struct {
		video, audio bool
		want         []av.MediaType
	}{
		{true, true, []av.MediaType{av.Video, av.Audio}},
		{true, false, []av.MediaType{av.Video}},
		{false, true, []av.MediaType{av.Audio}},
		{false, false, nil},
	}

	for _, tc := range cases {
		dm := flv.NewDemuxer(bytes.NewReader(flvtest.NewBuilder(tc.video, tc.audio).Bytes()), nil)
		require.NoError(t, dm.ReadHeader())

		var got []av.MediaType
		for i, s := range dm.Streams() {
			assert.Equal(t, i, s.Index)
			assert.Equal(t, flv.TimeBase, s.TimeBase)
			got = append(got, s.Type)
		}
		assert.Equal(t, tc.want, got)
	}
}

func TestDemuxerPackets(t *testing.T) {
	file := flvtest.NewBuilder(true, true).
		AVCSeqHdr(0).
		AACSeqHdr(0).
		AVC(true, 0, 40, 1000).
		AAC(0, 200).
		AVC(false, 40, -20, 300).
		MP3(23, 100).
		Bytes()

	dm := flv.NewDemuxer(bytes.NewReader(file), nil)
	require.NoError(t, dm.ReadHeader())
	pkts := readAll(t, dm)
	require.Len(t, pkts, 4, "sequence headers are skipped")

	assert.Equal(t, 0, pkts[0].StreamIndex)
	assert.True(t, pkts[0].KeyFrame)
	assert.Equal(t, 1000, pkts[0].Size)
	assert.Equal(t, av.TS(0), pkts[0].DTS)
	assert.Equal(t, av.TS(40), pkts[0].PTS)
	assert.True(t, pkts[0].IsVideo)

	assert.Equal(t, 1, pkts[1].StreamIndex)
	assert.True(t, pkts[1].KeyFrame, "audio packets are always keyframes")
	assert.Equal(t, 200, pkts[1].Size)
	assert.True(t, pkts[1].IsAudio)

	assert.False(t, pkts[2].KeyFrame)
	assert.Equal(t, av.TS(40), pkts[2].DTS)
	assert.Equal(t, av.TS(20), pkts[2].PTS)

	assert.Equal(t, 1, pkts[3].StreamIndex)
	assert.Equal(t, 100, pkts[3].Size)
	assert.Equal(t, av.TS(23), pkts[3].PTS)

	require.IsType(t, &flv.Tag{}, pkts[0].Header)
	assert.Equal(t, av.VIDEO_AVC, pkts[0].Header.(av.VideoPacketHeader).CodecID())
}

func TestDemuxerExtendedTimestamp(t *testing.T) {
	file := flvtest.NewBuilder(true, false).AVC(true, 0x01000010, 0, 10).Bytes()

	dm := flv.NewDemuxer(bytes.NewReader(file), nil)
	require.NoError(t, dm.ReadHeader())
	pkts := readAll(t, dm)

	require.Len(t, pkts, 1)
	assert.Equal(t, av.TS(0x01000010), pkts[0].PTS)
}

func TestDemuxerStreamsFromTags(t *testing.T) {
	file := flvtest.NewBuilder(false, false).
		AACSeqHdr(0).
		AVC(true, 0, 0, 10).
		AAC(0, 10).
		AVC(false, 40, 0, 10).
		Bytes()

	dm := flv.NewDemuxer(bytes.NewReader(file), nil)
	require.NoError(t, dm.ReadHeader())

	streams := dm.Streams()
	require.Len(t, streams, 2)
	assert.Equal(t, av.StreamDescriptor{Index: 0, Type: av.Audio, TimeBase: flv.TimeBase}, streams[0],
		"a configuration record still reveals its stream")
	assert.Equal(t, av.StreamDescriptor{Index: 1, Type: av.Video, TimeBase: flv.TimeBase}, streams[1])

	pkts := readAll(t, dm)
	require.Len(t, pkts, 3, "read-ahead tags are replayed")
	assert.Equal(t, []int{1, 0, 1}, []int{pkts[0].StreamIndex, pkts[1].StreamIndex, pkts[2].StreamIndex})
	assert.Equal(t, av.TS(40), pkts[2].PTS)
}

func TestDemuxerHeaderMissesAudio(t *testing.T) {
	file := flvtest.NewBuilder(true, false).
		AVC(true, 0, 0, 10).
		AAC(0, 10).
		AAC(23, 10).
		Bytes()

	dm := flv.NewDemuxer(bytes.NewReader(file), nil)
	require.NoError(t, dm.ReadHeader())
	pkts := readAll(t, dm)

	require.Len(t, dm.Streams(), 2)
	assert.Equal(t, av.Audio, dm.Streams()[1].Type)
	require.Len(t, pkts, 3)
	assert.Equal(t, 1, pkts[1].StreamIndex)
	assert.Equal(t, 1, pkts[2].StreamIndex)
}

func TestDemuxerUndeclaredStreamPastReadAhead(t *testing.T) {
	b := flvtest.NewBuilder(true, false)
	for i := 0; i < 200; i++ {
		b.AVC(i%25 == 0, uint32(i*40), 0, 1)
	}
	file := b.AAC(8000, 10).Bytes()

	dm := flv.NewDemuxer(bytes.NewReader(file), nil)
	require.NoError(t, dm.ReadHeader())
	pkts := readAll(t, dm)

	require.Len(t, dm.Streams(), 1)
	require.Len(t, pkts, 201)
	assert.Equal(t, 1, pkts[200].StreamIndex, "index past the declared streams")
	assert.True(t, pkts[200].IsAudio)
}

func TestDemuxerMetadata(t *testing.T) {
	file := flvtest.NewBuilder(true, true).
		Metadata(amf.Object{"duration": 12.5, "encoder": "Lavf58.29.100"}).
		AVC(true, 0, 0, 10).
		Metadata(amf.Object{"late": 1.0}).
		Bytes()

	dm := flv.NewDemuxer(bytes.NewReader(file), nil)
	require.NoError(t, dm.ReadHeader())

	md := dm.Metadata()
	assert.Equal(t, 12.5, md["duration"])
	assert.Equal(t, "Lavf58.29.100", md["encoder"])

	pkts := readAll(t, dm)
	assert.Len(t, pkts, 1, "metadata read during the header scan is not lost")
	assert.NotContains(t, dm.Metadata(), "late")
}

func TestDemuxerInvalidHeader(t *testing.T) {
	dm := flv.NewDemuxer(bytes.NewReader([]byte("ID3\x03\x00\x00\x00\x00\x00")), nil)
	err := dm.ReadHeader()
	require.Error(t, err)
	assert.Equal(t, flv.ErrInvalidHeader, errors.Cause(err))

	dm = flv.NewDemuxer(bytes.NewReader([]byte("FLV")), nil)
	assert.Equal(t, flv.ErrInvalidHeader, errors.Cause(dm.ReadHeader()))
}

func TestDemuxerTruncatedTag(t *testing.T) {
	file := flvtest.NewBuilder(true, false).
		AVC(true, 0, 0, 10).
		AVC(false, 40, 0, 500).
		Bytes()
	file = file[:len(file)-100]

	dm := flv.NewDemuxer(bytes.NewReader(file), nil)
	require.NoError(t, dm.ReadHeader())

	_, err := dm.ReadPacket()
	require.NoError(t, err)

	_, err = dm.ReadPacket()
	require.Error(t, err)
	assert.Equal(t, io.ErrUnexpectedEOF, errors.Cause(err))
}

func TestDemuxerEmptyFile(t *testing.T) {
	dm := flv.NewDemuxer(bytes.NewReader(flvtest.NewBuilder(true, true).Bytes()), nil)
	require.NoError(t, dm.ReadHeader())

	_, err := dm.ReadPacket()
	assert.Equal(t, io.EOF, err)
}

func TestIsFLV(t *testing.T) {
	assert.True(t, flv.IsFLV([]byte("FLV\x01")))
	assert.False(t, flv.IsFLV([]byte("FL")))
	assert.False(t, flv.IsFLV([]byte("RIFF")))
}
