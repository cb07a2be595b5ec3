package flv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/go-kit/kit/log"
	"github.com/gwuhaolin/livego/protocol/amf"
	"github.com/pkg/errors"

	"keyrate/pkg/av"
)

const (
	headerLen = 9

	flagHasAudio uint8 = 0x04
	flagHasVideo uint8 = 0x01

	// probeTags bounds the tags ReadHeader reads ahead looking for media
	// kinds the header flags left out.
	probeTags = 64
)

// TimeBase of every FLV timestamp: milliseconds.
var TimeBase = av.Rational{Num: 1, Den: 1000}

var ErrInvalidHeader = errors.New("flv: invalid file header")

// Demuxer reads an FLV file tag by tag. Streams are declared from the file
// header flags, video first, then from any other media kind found in the
// first probeTags tags, in the order seen. Writers are known to clear or
// miswrite the flags. Tags of a kind first seen later still get a stream
// index, one past the declared streams.
type Demuxer struct {
	r      *bufio.Reader
	closer io.Closer
	logger log.Logger

	amfDecoder *amf.Decoder

	version  uint8
	streams  []av.StreamDescriptor
	indexOf  map[uint8]int //<TagType, StreamIndex>
	nextIdx  int
	metadata map[string]interface{}

	pending    []*rawTag // read ahead by ReadHeader, replayed by ReadPacket
	pendingErr error     // ended the read-ahead, returned once pending drains
	gotMedia   bool
	tagsRead   int64
	bytesRead  int64
}

type rawTag struct {
	hdr  flvTag
	data []byte
}

func NewDemuxer(r io.Reader, logger log.Logger) *Demuxer {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	dm := &Demuxer{
		r:          bufio.NewReader(r),
		logger:     logger,
		amfDecoder: &amf.Decoder{},
		indexOf:    make(map[uint8]int),
		metadata:   make(map[string]interface{}),
	}
	if c, ok := r.(io.Closer); ok {
		dm.closer = c
	}

	return dm
}

// ReadHeader parses the file header and every script tag preceding the
// first media tag, then probes the following tags for streams. It must be
// called once before ReadPacket.
func (dm *Demuxer) ReadHeader() error {
	b := make([]byte, headerLen)
	if _, err := io.ReadFull(dm.r, b); err != nil {
		return errors.Wrap(ErrInvalidHeader, err.Error())
	}
	dm.bytesRead += headerLen

	if !IsFLV(b) {
		return errors.Wrapf(ErrInvalidHeader, "signature %q", b[:3])
	}

	dm.version = b[3]
	flags := b[4]
	offset := binary.BigEndian.Uint32(b[5:9])
	if offset < headerLen {
		return errors.Wrapf(ErrInvalidHeader, "data offset %d", offset)
	}
	if skip := int64(offset - headerLen); skip > 0 {
		if _, err := io.CopyN(ioutil.Discard, dm.r, skip); err != nil {
			return errors.Wrap(ErrInvalidHeader, err.Error())
		}
		dm.bytesRead += skip
	}

	if flags&flagHasVideo != 0 {
		dm.declare(TAG_VIDEO, av.Video)
	}
	if flags&flagHasAudio != 0 {
		dm.declare(TAG_AUDIO, av.Audio)
	}

	_ = dm.logger.Log("level", "DEBUG", "event", "read flv header",
		"version", dm.version, "flags", fmt.Sprintf("0x%02x", flags), "streams", len(dm.streams))

	for {
		tag, err := dm.readTag()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if tag.hdr.TagType != TAG_SCRIPTDATA {
			dm.probe(tag)
			return nil
		}
		dm.handleScriptTag(tag)
	}
}

func (dm *Demuxer) Streams() []av.StreamDescriptor {
	return dm.streams
}

func (dm *Demuxer) Metadata() map[string]interface{} {
	return dm.metadata
}

// ReadPacket returns the next media packet, io.EOF at a clean end of file.
// Configuration records, info frames and empty payloads are skipped.
func (dm *Demuxer) ReadPacket() (*av.Packet, error) {
	for {
		var tag *rawTag
		switch {
		case len(dm.pending) > 0:
			tag, dm.pending = dm.pending[0], dm.pending[1:]
		case dm.pendingErr != nil:
			return nil, dm.pendingErr
		default:
			var err error
			if tag, err = dm.readTag(); err != nil {
				return nil, err
			}
		}

		switch tag.hdr.TagType {
		case TAG_AUDIO, TAG_VIDEO:
			dm.gotMedia = true
			pkt, err := dm.decodeMediaTag(tag)
			if err != nil {
				return nil, err
			}
			if pkt != nil {
				return pkt, nil
			}
		case TAG_SCRIPTDATA:
			dm.handleScriptTag(tag)
		default:
			_ = dm.logger.Log("level", "DEBUG", "event", "skip tag", "type", tag.hdr.TagType, "size", tag.hdr.DataSize)
		}
	}
}

func (dm *Demuxer) Close() error {
	if dm.closer == nil {
		return nil
	}
	return dm.closer.Close()
}

func (dm *Demuxer) declare(tagType uint8, ty av.MediaType) int {
	idx := dm.nextIdx
	dm.nextIdx++
	dm.indexOf[tagType] = idx
	dm.streams = append(dm.streams, av.StreamDescriptor{Index: idx, Type: ty, TimeBase: TimeBase})
	return idx
}

// probe buffers first and up to probeTags-1 following tags, declaring each
// media kind not yet declared. It stops early once video and audio are both
// known. A read error is kept for ReadPacket so the tags before it are
// still delivered.
func (dm *Demuxer) probe(first *rawTag) {
	dm.pending = append(dm.pending, first)
	dm.discover(first)

	for len(dm.pending) < probeTags && !dm.declared(TAG_VIDEO, TAG_AUDIO) {
		tag, err := dm.readTag()
		if err != nil {
			dm.pendingErr = err
			break
		}
		dm.pending = append(dm.pending, tag)
		dm.discover(tag)
	}

	_ = dm.logger.Log("level", "DEBUG", "event", "probe streams", "tags", len(dm.pending), "streams", len(dm.streams))
}

func (dm *Demuxer) discover(tag *rawTag) {
	var ty av.MediaType
	switch tag.hdr.TagType {
	case TAG_VIDEO:
		ty = av.Video
	case TAG_AUDIO:
		ty = av.Audio
	default:
		return
	}
	if dm.declared(tag.hdr.TagType) {
		return
	}

	idx := dm.declare(tag.hdr.TagType, ty)
	_ = dm.logger.Log("level", "INFO", "event", "stream missing from header flags", "type", ty.String(), "index", idx)
}

func (dm *Demuxer) declared(tagTypes ...uint8) bool {
	for _, t := range tagTypes {
		if _, ok := dm.indexOf[t]; !ok {
			return false
		}
	}
	return true
}

func (dm *Demuxer) streamIndex(tagType uint8) int {
	if idx, ok := dm.indexOf[tagType]; ok {
		return idx
	}

	idx := dm.nextIdx
	dm.nextIdx++
	dm.indexOf[tagType] = idx
	_ = dm.logger.Log("level", "WARN", "event", "undeclared stream", "type", tagType, "index", idx)
	return idx
}

func (dm *Demuxer) readTag() (*rawTag, error) {
	b := make([]byte, 4+tagHeaderLen)

	// previous tag size, then the tag header. The file ends right after a
	// previous tag size, so EOF there is clean.
	if n, err := io.ReadFull(dm.r, b[:4]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrapf(err, "flv: read previous tag size at offset %d", dm.bytesRead+int64(n))
	}
	dm.bytesRead += 4

	if n, err := io.ReadFull(dm.r, b[4:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrapf(err, "flv: read tag header at offset %d", dm.bytesRead+int64(n))
	}

	tag := &rawTag{}
	if err := tag.hdr.decode(b[4:]); err != nil {
		return nil, errors.Wrapf(err, "flv: tag at offset %d", dm.bytesRead)
	}
	dm.bytesRead += tagHeaderLen

	tag.data = make([]byte, tag.hdr.DataSize)
	if _, err := io.ReadFull(dm.r, tag.data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrapf(err, "flv: read %d bytes of tag data at offset %d", tag.hdr.DataSize, dm.bytesRead)
	}
	dm.bytesRead += int64(tag.hdr.DataSize)
	dm.tagsRead++

	_ = dm.logger.Log("level", "DEBUG", "event", "read tag", "n", dm.tagsRead,
		"type", tag.hdr.TagType, "size", tag.hdr.DataSize, "timestamp", tag.hdr.TimeStamp)

	return tag, nil
}

func (dm *Demuxer) decodeMediaTag(tag *rawTag) (*av.Packet, error) {
	isVideo := tag.hdr.TagType == TAG_VIDEO
	t := &Tag{flvTag: tag.hdr}

	if tag.hdr.Filter {
		_ = dm.logger.Log("level", "DEBUG", "event", "skip encrypted tag", "type", tag.hdr.TagType)
		return nil, nil
	}

	n, err := t.decodeMediaTagHeader(tag.data, isVideo)
	if err != nil {
		return nil, errors.Wrapf(err, "flv: tag %d", dm.tagsRead)
	}

	if t.IsSeqHdr() || t.IsInfoFrame() || len(tag.data) == n {
		_ = dm.logger.Log("level", "DEBUG", "event", "skip non-media tag", "type", tag.hdr.TagType,
			"seqhdr", t.IsSeqHdr(), "info", t.IsInfoFrame())
		return nil, nil
	}

	dts := int64(tag.hdr.TimeStamp)
	pkt := &av.Packet{
		Header:      t,
		Data:        tag.data[n:],
		StreamIndex: dm.streamIndex(tag.hdr.TagType),
		Size:        len(tag.data) - n,
		DTS:         av.TS(dts),
		PTS:         av.TS(dts),
		IsAudio:     !isVideo,
		IsVideo:     isVideo,
	}

	if isVideo {
		pkt.KeyFrame = t.IsKeyFrame()
		if t.hasAvcHeader() {
			pkt.PTS = av.TS(dts + int64(t.CompositionTime()))
		}
	} else {
		pkt.KeyFrame = true
	}

	return pkt, nil
}

func (dm *Demuxer) handleScriptTag(tag *rawTag) {
	vs, err := dm.amfDecoder.DecodeBatch(bytes.NewReader(tag.data), amf.Version(amf.AMF0))
	if err != nil && err != io.EOF {
		_ = dm.logger.Log("level", "WARN", "event", "amf decode script tag", "error", err.Error())
		return
	}

	if len(vs) < 2 {
		return
	}
	if name, ok := vs[0].(string); !ok || name != "onMetaData" {
		_ = dm.logger.Log("level", "DEBUG", "event", "skip script tag", "data", fmt.Sprintf("%v", vs[0]))
		return
	}
	if dm.gotMedia {
		_ = dm.logger.Log("level", "DEBUG", "event", "ignore onMetaData after media")
		return
	}

	for k, v := range amfMap(vs[1]) {
		dm.metadata[k] = v
	}
	_ = dm.logger.Log("level", "DEBUG", "event", "onMetaData", "keys", len(dm.metadata))
}

func amfMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case amf.Object:
		return m
	case map[string]interface{}:
		return m
	}
	return nil
}

// IsFLV reports whether b starts with an FLV file signature.
func IsFLV(b []byte) bool {
	return len(b) >= 3 && b[0] == 'F' && b[1] == 'L' && b[2] == 'V'
}
