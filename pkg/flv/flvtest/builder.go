// Package flvtest builds FLV files in memory for tests.
package flvtest

import (
	"bytes"
	"encoding/binary"

	"github.com/gwuhaolin/livego/protocol/amf"

	"keyrate/pkg/av"
	"keyrate/pkg/flv"
)

type Builder struct {
	buf bytes.Buffer
}

// NewBuilder writes the file header and the first previous tag size.
func NewBuilder(hasVideo, hasAudio bool) *Builder {
	var flags byte
	if hasVideo {
		flags |= 0x01
	}
	if hasAudio {
		flags |= 0x04
	}

	b := &Builder{}
	b.buf.Write([]byte{'F', 'L', 'V', 1, flags, 0, 0, 0, 9})
	b.buf.Write([]byte{0, 0, 0, 0})
	return b
}

// Tag appends a raw tag followed by its previous tag size.
func (b *Builder) Tag(tagType uint8, ts uint32, data []byte) *Builder {
	size := uint32(len(data))
	b.buf.Write([]byte{
		tagType,
		byte(size >> 16), byte(size >> 8), byte(size),
		byte(ts >> 16), byte(ts >> 8), byte(ts), byte(ts >> 24),
		0, 0, 0,
	})
	b.buf.Write(data)

	prev := make([]byte, 4)
	binary.BigEndian.PutUint32(prev, 11+size)
	b.buf.Write(prev)
	return b
}

func (b *Builder) Metadata(md amf.Object) *Builder {
	var data bytes.Buffer
	enc := &amf.Encoder{}
	if _, err := enc.Encode(&data, "onMetaData", amf.AMF0); err != nil {
		panic(err)
	}
	if _, err := enc.Encode(&data, md, amf.AMF0); err != nil {
		panic(err)
	}
	return b.Tag(flv.TAG_SCRIPTDATA, 0, data.Bytes())
}

// AVC appends an H.264 NALU tag carrying payload bytes of media data.
func (b *Builder) AVC(key bool, dts uint32, cts int32, payload int) *Builder {
	frameType := av.INTER_FRAME
	if key {
		frameType = av.KEY_FRAME
	}
	data := make([]byte, 5+payload)
	data[0] = frameType<<4 | av.VIDEO_AVC
	data[1] = av.AVC_NALU
	data[2] = byte(cts >> 16)
	data[3] = byte(cts >> 8)
	data[4] = byte(cts)
	return b.Tag(flv.TAG_VIDEO, dts, data)
}

func (b *Builder) AVCSeqHdr(dts uint32) *Builder {
	data := []byte{av.KEY_FRAME<<4 | av.VIDEO_AVC, av.AVC_SEQHDR, 0, 0, 0, 1, 0x64, 0, 0x1f}
	return b.Tag(flv.TAG_VIDEO, dts, data)
}

// AAC appends a raw AAC frame carrying payload bytes.
func (b *Builder) AAC(ts uint32, payload int) *Builder {
	data := make([]byte, 2+payload)
	data[0] = av.SOUND_AAC<<4 | 0x0f
	data[1] = av.AAC_RAW
	return b.Tag(flv.TAG_AUDIO, ts, data)
}

func (b *Builder) AACSeqHdr(ts uint32) *Builder {
	return b.Tag(flv.TAG_AUDIO, ts, []byte{av.SOUND_AAC<<4 | 0x0f, av.AAC_SEQHDR, 0x12, 0x10})
}

// MP3 appends an MP3 frame, which has a one byte codec header.
func (b *Builder) MP3(ts uint32, payload int) *Builder {
	data := make([]byte, 1+payload)
	data[0] = av.SOUND_MP3<<4 | 0x0f
	return b.Tag(flv.TAG_AUDIO, ts, data)
}

func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}
