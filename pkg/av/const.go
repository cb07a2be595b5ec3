package av

// FLV video frame types
const (
	KEY_FRAME              uint8 = 1
	INTER_FRAME            uint8 = 2
	DISPOSABLE_INTER_FRAME uint8 = 3
	GENERATED_KEY_FRAME    uint8 = 4
	VIDEO_INFO_FRAME       uint8 = 5
)

// FLV video codec ids
const (
	VIDEO_H263 uint8 = 2
	VIDEO_VP6  uint8 = 4
	VIDEO_VP6A uint8 = 5
	VIDEO_AVC  uint8 = 7
	VIDEO_HEVC uint8 = 12
)

// AVC/HEVC packet types
const (
	AVC_SEQHDR uint8 = 0
	AVC_NALU   uint8 = 1
	AVC_EOS    uint8 = 2
)

// FLV sound formats
const (
	SOUND_PCM   uint8 = 0
	SOUND_MP3   uint8 = 2
	SOUND_SPEEX uint8 = 11
	SOUND_AAC   uint8 = 10
)

// AAC packet types
const (
	AAC_SEQHDR uint8 = 0
	AAC_RAW    uint8 = 1
)
