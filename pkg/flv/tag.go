package flv

import (
	"encoding/binary"
	"fmt"

	"keyrate/pkg/av"
)

const (
	TAG_AUDIO      uint8 = 8
	TAG_VIDEO      uint8 = 9
	TAG_SCRIPTDATA uint8 = 18

	tagHeaderLen = 11
)

type flvTag struct {
	TagType   uint8  // 1byte, low 5 bits
	Filter    bool   // bit 5 of the type byte, encrypted payload
	DataSize  uint32 // 3bytes
	TimeStamp uint32 // 3bytes + 1byte extended
	StreamID  uint32 // 3bytes, always 0
}

func (ft *flvTag) decode(b []byte) error {
	if len(b) < tagHeaderLen {
		return fmt.Errorf("invalid Tag Header len=%d", len(b))
	}

	ft.TagType = b[0] & 0x1f
	ft.Filter = b[0]&0x20 != 0
	ft.DataSize = uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	ft.TimeStamp = uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6]) | uint32(b[7])<<24
	ft.StreamID = uint32(b[8])<<16 | uint32(b[9])<<8 | uint32(b[10])
	return nil
}

type mediaTag struct {
	/*
	 * soundFormat: UB[4]
	 * 0 = Linear PCM, platform endian
	 * 1 = ADPCM
	 * 2 = MP3
	 * 3 = Linear PCM, little endian
	 * 4 = Nellymoser 16-kHZ mono
	 * 5 = Nellymoser 8-kHZ mono
	 * 6 = Nellymoser
	 * 7 = G.711 A-law logarithmic PCM
	 * 8 = G.711 mu-law logarithmic PCM
	 * 9 = reserved
	 * 10 = AAC
	 * 11 = Speex
	 * 14 = MP3 8-kHZ
	 * 15 = Device-specific sound
	 */
	soundFormat uint8

	/*
	 * SoundRate: UB[2]
	 * 0 = 5.5-kHz For AAC: always 3
	 * 1 = 11-kHZ
	 * 2 = 22-kHZ
	 * 3 = 44-kHZ
	 */
	SoundRate uint8

	// SoundSize: UB[1] 0 = snd8Bit 1 = snd16Bit
	SoundSize uint8

	// SoundType: UB[1] 0 = sndMono 1 = sndStereo
	SoundType uint8

	aacPacketType uint8 // 0 = AAC sequence header 1 = AAC raw

	/*
	 * 1: keyframe (for AVC, a seekable frame)
	 * 2: inter frame (for AVC, a non- seekable frame)
	 * 3: disposable inter frame (H.263 only)
	 * 4: generated keyframe (reserved for server use only)
	 * 5: video info/command frame
	 */
	FrameType uint8

	/*
	 * 2: Sorenson H.263
	 * 3: Screen video
	 * 4: On2 VP6
	 * 5: On2 VP6 with alpha channel
	 * 6: Screen video version 2
	 * 7: AVC (H.264)
	 * 12: HEVC (H.265)
	 */
	codecID uint8

	/*
	 * 0: AVC sequence header
	 * 1: AVC NALU
	 * 2: AVC end of sequence
	 */
	AvcPacketType uint8

	compositionTime int32
}

type Tag struct {
	flvTag   flvTag
	mediaTag mediaTag
}

var (
	_ av.AudioPacketHeader = (*Tag)(nil)
	_ av.VideoPacketHeader = (*Tag)(nil)
)

// Audio CodecID
func (t *Tag) SoundFormat() uint8 {
	return t.mediaTag.soundFormat
}

// Audio AAC Packet Type. 0 = AAC sequence header 1 = AAC raw
func (t *Tag) AACPacketType() uint8 {
	return t.mediaTag.aacPacketType
}

func (t *Tag) IsKeyFrame() bool {
	return t.mediaTag.FrameType == av.KEY_FRAME
}

// IsSeqHdr reports a decoder configuration record rather than media data.
func (t *Tag) IsSeqHdr() bool {
	switch t.flvTag.TagType {
	case TAG_AUDIO:
		return t.mediaTag.soundFormat == av.SOUND_AAC && t.mediaTag.aacPacketType == av.AAC_SEQHDR
	case TAG_VIDEO:
		return t.hasAvcHeader() && t.mediaTag.AvcPacketType == av.AVC_SEQHDR
	}
	return false
}

func (t *Tag) IsInfoFrame() bool {
	return t.flvTag.TagType == TAG_VIDEO && t.mediaTag.FrameType == av.VIDEO_INFO_FRAME
}

// Video CodecID
func (t *Tag) CodecID() uint8 {
	return t.mediaTag.codecID
}

func (t *Tag) CompositionTime() int32 {
	return t.mediaTag.compositionTime
}

func (t *Tag) hasAvcHeader() bool {
	return t.mediaTag.codecID == av.VIDEO_AVC || t.mediaTag.codecID == av.VIDEO_HEVC
}

func (t *Tag) decodeMediaTagHeader(b []byte, isVideo bool) (n int, err error) {
	if isVideo {
		return t.decodeVideoHeader(b)
	}

	return t.decodeAudioHeader(b)
}

func (t *Tag) decodeAudioHeader(b []byte) (n int, err error) {
	if len(b) < 1 {
		err = fmt.Errorf("invalid Audio Data len=%d", len(b))
		return
	}

	flags := b[0]
	t.mediaTag.soundFormat = flags >> 4
	t.mediaTag.SoundRate = (flags >> 2) & 0x3
	t.mediaTag.SoundSize = (flags >> 1) & 0x01
	t.mediaTag.SoundType = flags & 0x01
	n = 1

	switch t.mediaTag.soundFormat {
	case av.SOUND_AAC:
		if len(b) < 2 {
			err = fmt.Errorf("invalid AAC Audio Data len=%d", len(b))
			return
		}
		t.mediaTag.aacPacketType = b[1]
		n++
	}

	return
}

func (t *Tag) decodeVideoHeader(b []byte) (n int, err error) {
	if len(b) < 1 {
		err = fmt.Errorf("invalid Video Data len=%d", len(b))
		return
	}

	flags := b[0]
	t.mediaTag.FrameType = flags >> 4
	t.mediaTag.codecID = flags & 0xf
	n = 1

	if t.mediaTag.FrameType == av.VIDEO_INFO_FRAME {
		return
	}

	switch t.mediaTag.codecID {
	case av.VIDEO_AVC, av.VIDEO_HEVC:
		if len(b) < 5 {
			err = fmt.Errorf("invalid AVC Video Data len=%d", len(b))
			return
		}
		t.mediaTag.AvcPacketType = b[1]
		// SI24, sign-extended from the 3 bytes that follow
		t.mediaTag.compositionTime = int32(binary.BigEndian.Uint32(b[1:5])<<8) >> 8
		n += 4
	case av.VIDEO_VP6, av.VIDEO_VP6A:
		if len(b) < 2 {
			err = fmt.Errorf("invalid VP6 Video Data len=%d", len(b))
			return
		}
		n++ // size adjustment byte
	}

	return
}
