// Package report writes the human-readable bitrate report.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"keyrate/internal/bitrate"
)

// Writer prints one line per sample and is line buffered, so earlier lines
// survive an aborted run.
type Writer struct {
	w   *bufio.Writer
	err error
}

var _ bitrate.Sink = (*Writer)(nil)

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteMetadata prints the container metadata on a single line with keys
// sorted.
func (rw *Writer) WriteMetadata(md map[string]interface{}) {
	rw.line(FormatMetadata(md))
}

func (rw *Writer) Emit(s bitrate.Sample) {
	rw.line(FormatSample(s))
}

// Err returns the first write error.
func (rw *Writer) Err() error {
	return rw.err
}

func (rw *Writer) line(s string) {
	if rw.err != nil {
		return
	}

	if _, err := rw.w.WriteString(s + "\n"); err != nil {
		rw.err = errors.Wrap(err, "write report")
		return
	}
	if err := rw.w.Flush(); err != nil {
		rw.err = errors.Wrap(err, "write report")
	}
}

func FormatSample(s bitrate.Sample) string {
	return fmt.Sprintf("[%d] ty=%s time=%s, bps=%s", s.StreamIndex, s.Type, formatFloat(s.Time), formatFloat(s.BitsPerSecond))
}

func FormatMetadata(md map[string]interface{}) string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(formatValue(md[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return formatFloat(x)
	case string:
		return x
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// shortest representation, never in exponent form
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
