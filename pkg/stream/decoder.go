// Package stream decodes streamed LLM chat responses.
//
// A response body arrives as arbitrarily sized byte chunks that do not line
// up with line boundaries. The Decoder reassembles lines with a carry-over
// buffer, classifies them, extracts the text increment from each JSON data
// payload and yields it as a Fragment, until the [DONE] terminator, a finish
// reason, or the end of the body.
//
//	┌───────────┐   ┌─────────────┐   ┌──────────┐   ┌────────────┐
//	│ io.Reader │──▶│ TextDecoder │──▶│  buffer  │──▶│ Extractors │──▶ Fragment
//	└───────────┘   └─────────────┘   └──────────┘   └────────────┘
package stream

import (
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/papercomputeco/streamchat/pkg/logger"
)

const defaultChunkSize = 4096

// Mode selects how payload texts combine into the full reply.
type Mode int

const (
	// ModeDelta treats every payload text as an increment to append.
	ModeDelta Mode = iota

	// ModeSnapshot treats every payload text as the whole reply so far.
	ModeSnapshot
)

func (m Mode) String() string {
	if m == ModeSnapshot {
		return "snapshot"
	}
	return "delta"
}

// ParseMode maps "delta" and "snapshot" to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "delta", "incremental", "":
		return ModeDelta, true
	case "snapshot", "full":
		return ModeSnapshot, true
	default:
		return ModeDelta, false
	}
}

// EndReason records why a stream stopped.
type EndReason int

const (
	EndNone EndReason = iota
	EndTerminator
	EndFinishReason
	EndEOF
	EndError
	EndCanceled
)

func (r EndReason) String() string {
	switch r {
	case EndTerminator:
		return "terminator"
	case EndFinishReason:
		return "finish_reason"
	case EndEOF:
		return "eof"
	case EndError:
		return "error"
	case EndCanceled:
		return "canceled"
	default:
		return "none"
	}
}

// Fragment is one piece of decoded text. Text is never empty.
//
// In snapshot mode an upstream may rewrite text it already sent. Such a
// fragment has Replace set and Text holds the whole reply so far.
type Fragment struct {
	Text    string
	Shape   Shape
	Replace bool
}

// Stats counts what a Decoder has seen.
type Stats struct {
	Bytes         int
	Lines         int
	DataLines     int
	Fragments     int
	ParseFailures int
}

// Decoder is a lazy, forward-only sequence of fragments over one response
// body. It is not safe for concurrent use.
type Decoder struct {
	src        io.Reader
	text       *TextDecoder
	mode       Mode
	extractors []Extractor
	logger     *slog.Logger
	chunk      []byte

	buf   string
	lines []string
	eof   bool

	acc      strings.Builder
	snapshot string
	event    string
	usage    *Usage

	done  bool
	end   EndReason
	stats Stats
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMode sets the accumulation mode. The default is ModeDelta.
func WithMode(m Mode) Option {
	return func(d *Decoder) {
		d.mode = m
	}
}

// WithEncoding sets the body's character encoding. The default is UTF-8.
func WithEncoding(enc encoding.Encoding) Option {
	return func(d *Decoder) {
		d.text = NewTextDecoder(enc)
	}
}

// WithExtractors replaces the payload extractors. Order is precedence.
func WithExtractors(extractors ...Extractor) Option {
	return func(d *Decoder) {
		if len(extractors) > 0 {
			d.extractors = extractors
		}
	}
}

// WithLogger sets the logger for skipped lines and parse failures.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithChunkSize sets the read size used against the producer.
func WithChunkSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.chunk = make([]byte, n)
		}
	}
}

// NewDecoder returns a Decoder reading from src. If src is an io.Closer,
// Close releases it.
func NewDecoder(src io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		src:        src,
		text:       NewTextDecoder(nil),
		mode:       ModeDelta,
		extractors: StreamExtractors(),
		logger:     logger.Nop(),
		chunk:      make([]byte, defaultChunkSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next fragment. It blocks on the producer until a fragment
// is ready. Next returns nil, nil once the stream has ended; a read or decode
// failure is returned once and ends the stream.
func (d *Decoder) Next() (*Fragment, error) {
	for !d.done {
		if len(d.lines) == 0 {
			if d.eof {
				d.finish(EndEOF)
				return nil, nil
			}
			if err := d.fill(); err != nil {
				d.finish(EndError)
				return nil, err
			}
			continue
		}

		raw := d.lines[0]
		d.lines = d.lines[1:]

		if frag := d.process(raw); frag != nil {
			return frag, nil
		}
	}
	return nil, nil
}

// Fragments is Next as a range-over-func sequence. Iteration stops after
// the first error.
func (d *Decoder) Fragments() iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		for {
			frag, err := d.Next()
			if err != nil {
				yield(Fragment{}, err)
				return
			}
			if frag == nil {
				return
			}
			if !yield(*frag, nil) {
				return
			}
		}
	}
}

// Text returns the reply accumulated so far.
func (d *Decoder) Text() string {
	return d.acc.String()
}

// Empty reports whether the stream ended without producing any text.
func (d *Decoder) Empty() bool {
	return d.done && d.acc.Len() == 0
}

// Done reports whether the stream has ended.
func (d *Decoder) Done() bool {
	return d.done
}

// End returns why the stream ended, or EndNone while it is still open.
func (d *Decoder) End() EndReason {
	return d.end
}

// Mode returns the accumulation mode.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Usage returns the last token usage reported by the upstream, if any.
func (d *Decoder) Usage() *Usage {
	return d.usage
}

// Stats returns counters for the lines and payloads seen so far.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Close ends the stream and releases the producer if it is an io.Closer.
func (d *Decoder) Close() error {
	if !d.done {
		d.finish(EndCanceled)
	}
	if c, ok := d.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// fill reads one chunk from the producer and splits the buffer into complete
// lines. The trailing partial line stays in the buffer.
func (d *Decoder) fill() error {
	n, err := d.src.Read(d.chunk)
	atEOF := errors.Is(err, io.EOF)
	if err != nil && !atEOF {
		return err
	}
	d.stats.Bytes += n

	text, decErr := d.text.Decode(d.chunk[:n], atEOF)
	if decErr != nil {
		return decErr
	}
	d.buf += text

	if i := strings.LastIndexByte(d.buf, '\n'); i >= 0 {
		d.lines = append(d.lines, strings.Split(d.buf[:i], "\n")...)
		d.buf = d.buf[i+1:]
	}

	if atEOF {
		d.eof = true
		if d.buf != "" {
			d.lines = append(d.lines, d.buf)
			d.buf = ""
		}
	}
	return nil
}

// process handles one raw line and returns a fragment when it yields text.
func (d *Decoder) process(raw string) *Fragment {
	line := ClassifyLine(raw)
	if line.Kind == LineIgnored && line.Raw == "" {
		return nil
	}
	d.stats.Lines++

	switch line.Kind {
	case LineTerminator:
		d.finish(EndTerminator)
		return nil
	case LineEvent:
		d.event = line.Value
		return nil
	case LineStatus:
		d.logger.Debug("skipping status line", "line", line.Raw)
		return nil
	case LineIgnored:
		return nil
	}

	d.stats.DataLines++

	var env Envelope
	if err := json.Unmarshal([]byte(line.Value), &env); err != nil {
		d.stats.ParseFailures++
		d.logger.Debug("skipping unparseable data line",
			"payload", line.Value,
			"event", d.event,
			"error", err,
		)
		return nil
	}
	if env.Usage != nil {
		d.usage = env.Usage
	}

	payload, ok := Extract(&env, d.extractors)
	if !ok {
		d.logger.Debug("no text in data line", "payload", line.Value)
		return nil
	}

	frag := d.accumulate(payload)
	if payload.Finished() {
		d.logger.Debug("stream finished", "finish_reason", payload.FinishReason)
		d.finish(EndFinishReason)
	}
	return frag
}

func (d *Decoder) accumulate(p Payload) *Fragment {
	if p.Text == "" {
		return nil
	}

	if d.mode == ModeDelta {
		d.acc.WriteString(p.Text)
		d.stats.Fragments++
		return &Fragment{Text: p.Text, Shape: p.Shape}
	}

	prev := d.snapshot
	d.snapshot = p.Text
	d.acc.Reset()
	d.acc.WriteString(p.Text)

	if strings.HasPrefix(p.Text, prev) {
		suffix := p.Text[len(prev):]
		if suffix == "" {
			return nil
		}
		d.stats.Fragments++
		return &Fragment{Text: suffix, Shape: p.Shape}
	}

	d.stats.Fragments++
	return &Fragment{Text: p.Text, Shape: p.Shape, Replace: true}
}

func (d *Decoder) finish(reason EndReason) {
	if d.done {
		return
	}
	d.done = true
	d.end = reason
	d.lines = nil
	d.buf = ""
}
