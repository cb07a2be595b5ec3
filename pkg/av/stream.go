package av

import "strconv"

type MediaType int

const (
	Unknown MediaType = iota
	Video
	Audio
	Data
	Subtitle
	Attachment
)

var mediaTypeNames = [...]string{
	Unknown:    "Unknown",
	Video:      "Video",
	Audio:      "Audio",
	Data:       "Data",
	Subtitle:   "Subtitle",
	Attachment: "Attachment",
}

func (t MediaType) String() string {
	if t >= 0 && int(t) < len(mediaTypeNames) {
		return mediaTypeNames[t]
	}
	return "MediaType(" + strconv.Itoa(int(t)) + ")"
}

// Rational is a time base in seconds per tick.
type Rational struct {
	Num int
	Den int
}

func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return strconv.Itoa(r.Num) + "/" + strconv.Itoa(r.Den)
}

// StreamDescriptor is read once when the container is opened.
type StreamDescriptor struct {
	Index    int
	Type     MediaType
	TimeBase Rational
}

// Timestamp is an optional tick count. The zero value is absent.
type Timestamp struct {
	Ticks int64
	Valid bool
}

func TS(ticks int64) Timestamp {
	return Timestamp{Ticks: ticks, Valid: true}
}

// Or returns ts when present, other otherwise.
func (ts Timestamp) Or(other Timestamp) Timestamp {
	if ts.Valid {
		return ts
	}
	return other
}

func (ts Timestamp) String() string {
	if !ts.Valid {
		return "none"
	}
	return strconv.FormatInt(ts.Ticks, 10)
}
