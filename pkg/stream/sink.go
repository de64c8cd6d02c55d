package stream

import (
	"context"
)

// Sink receives a stream's fragments followed by exactly one of OnComplete or
// OnError.
type Sink interface {
	OnFragment(text string)
	OnComplete(fullText string)
	OnError(err error)
}

// Replacer is implemented by sinks that want to know when a snapshot stream
// rewrote earlier text. Sinks without it receive the replacement through
// OnFragment.
type Replacer interface {
	OnReplace(fullText string)
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	Fragment func(text string)
	Replace  func(fullText string)
	Complete func(fullText string)
	Error    func(err error)
}

func (s SinkFuncs) OnFragment(text string) {
	if s.Fragment != nil {
		s.Fragment(text)
	}
}

func (s SinkFuncs) OnReplace(fullText string) {
	switch {
	case s.Replace != nil:
		s.Replace(fullText)
	case s.Fragment != nil:
		s.Fragment(fullText)
	}
}

func (s SinkFuncs) OnComplete(fullText string) {
	if s.Complete != nil {
		s.Complete(fullText)
	}
}

func (s SinkFuncs) OnError(err error) {
	if s.Error != nil {
		s.Error(err)
	}
}

// Drain pushes every fragment of d into sink, then reports completion or the
// first error. ctx is checked between reads. The producer is closed on every
// path.
func (d *Decoder) Drain(ctx context.Context, sink Sink) error {
	defer d.Close()

	replacer, _ := sink.(Replacer)

	for {
		if err := ctx.Err(); err != nil {
			d.finish(EndCanceled)
			sink.OnError(err)
			return err
		}

		frag, err := d.Next()
		if err != nil {
			sink.OnError(err)
			return err
		}
		if frag == nil {
			break
		}

		if frag.Replace && replacer != nil {
			replacer.OnReplace(frag.Text)
			continue
		}
		sink.OnFragment(frag.Text)
	}

	if d.Empty() {
		d.logger.Warn("stream ended without any text", "end", d.End().String())
	}
	sink.OnComplete(d.Text())
	return nil
}
