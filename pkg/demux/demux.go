// Package demux opens container files behind a format-neutral Source.
//
// Init must run once per process before Open. Formats are recognised by the
// leading bytes of the file.
package demux

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"keyrate/pkg/av"
	"keyrate/pkg/flv"
)

var (
	ErrNotInitialized = errors.New("demux: Init has not been called")
	ErrUnknownFormat  = errors.New("demux: unknown container format")
)

// PacketReader yields packets until io.EOF.
type PacketReader interface {
	ReadPacket() (*av.Packet, error)
}

type Source interface {
	PacketReader
	Format() string
	Streams() []av.StreamDescriptor
	Metadata() map[string]interface{}
	Close() error
}

// Format describes one container format the registry can open.
type Format struct {
	Name     string
	ProbeLen int
	Probe    func(b []byte) bool
	Open     func(r io.Reader, logger log.Logger) (Source, error)
}

var (
	initOnce sync.Once
	initErr  error

	mu      sync.RWMutex
	formats []Format
)

// Init registers the built-in formats. Later calls return the first result.
func Init() error {
	initOnce.Do(func() {
		initErr = Register(Format{
			Name:     "flv",
			ProbeLen: 3,
			Probe:    flv.IsFLV,
			Open:     openFLV,
		})
	})
	return initErr
}

func Register(f Format) error {
	if f.Name == "" || f.Probe == nil || f.Open == nil || f.ProbeLen <= 0 {
		return errors.Errorf("demux: incomplete format %q", f.Name)
	}

	mu.Lock()
	defer mu.Unlock()

	for _, existing := range formats {
		if existing.Name == f.Name {
			return errors.Errorf("demux: format %q already registered", f.Name)
		}
	}
	formats = append(formats, f)
	return nil
}

func initialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return len(formats) > 0
}

// Open opens the file at path and probes its format.
func Open(path string, logger log.Logger) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "demux: open")
	}

	src, err := NewSource(f, logger)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "demux: %s", path)
	}
	return src, nil
}

// NewSource probes r and opens it with the matching format. The source
// closes r when r is an io.Closer.
func NewSource(r io.Reader, logger log.Logger) (Source, error) {
	if !initialized() {
		return nil, ErrNotInitialized
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	br := bufio.NewReader(r)

	mu.RLock()
	candidates := append([]Format(nil), formats...)
	mu.RUnlock()

	for _, f := range candidates {
		b, err := br.Peek(f.ProbeLen)
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, errors.Wrap(err, "probe")
		}
		if !f.Probe(b) {
			continue
		}

		_ = logger.Log("level", "DEBUG", "event", "probe", "format", f.Name)
		return f.Open(readCloser{Reader: br, c: r}, log.With(logger, "format", f.Name))
	}

	return nil, ErrUnknownFormat
}

type readCloser struct {
	io.Reader
	c io.Reader
}

func (rc readCloser) Close() error {
	if c, ok := rc.c.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type flvSource struct {
	*flv.Demuxer
}

func (flvSource) Format() string {
	return "flv"
}

func openFLV(r io.Reader, logger log.Logger) (Source, error) {
	dm := flv.NewDemuxer(r, logger)
	if err := dm.ReadHeader(); err != nil {
		return nil, err
	}
	return flvSource{Demuxer: dm}, nil
}
