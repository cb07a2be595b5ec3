package av

type PacketHeader interface{}

type AudioPacketHeader interface {
	PacketHeader
	SoundFormat() uint8
	AACPacketType() uint8
}

type VideoPacketHeader interface {
	PacketHeader
	IsKeyFrame() bool
	IsSeqHdr() bool
	CodecID() uint8
	CompositionTime() int32
}

// Packet is one demuxed unit. Size counts payload bytes only, container
// framing and codec headers excluded.
type Packet struct {
	Header PacketHeader
	Data   []byte

	StreamIndex int
	Size        int
	PTS         Timestamp
	DTS         Timestamp
	KeyFrame    bool

	IsAudio    bool
	IsVideo    bool
	IsMetaData bool
}
