package stream_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/papercomputeco/streamchat/pkg/stream"
)

const deltaStream = `data: {"choices":[{"delta":{"content":"He"}}]}

data: {"choices":[{"delta":{"content":"llo"}}]}

data: [DONE]
`

var _ = Describe("Decoder", func() {
	Describe("Next", func() {
		It("yields delta fragments in order and stops at the terminator", func() {
			d := stream.NewDecoder(strings.NewReader(deltaStream))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"He", "llo"}))
			Expect(d.Text()).To(Equal("Hello"))
			Expect(d.End()).To(Equal(stream.EndTerminator))
		})

		It("yields native fragments in delta mode and stops at the terminator", func() {
			body := `data: {"output":{"text":"He"}}
data: {"output":{"text":"llo"}}
data: [DONE]
`
			d := stream.NewDecoder(strings.NewReader(body), stream.WithMode(stream.ModeDelta))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"He", "llo"}))
			Expect(d.Text()).To(Equal("Hello"))
			Expect(d.End()).To(Equal(stream.EndTerminator))
		})

		It("keeps returning nil after the stream has ended", func() {
			d := stream.NewDecoder(strings.NewReader(deltaStream))
			_, err := collect(d)
			Expect(err).NotTo(HaveOccurred())

			frag, err := d.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(frag).To(BeNil())
		})

		It("reassembles a line split across two chunks", func() {
			r := newChunkReader(
				[]byte(`data: {"output":{"te`),
				[]byte(`xt":"hi"}}`+"\n"),
			)
			d := stream.NewDecoder(r)

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"hi"}))
		})

		It("skips malformed JSON and keeps going", func() {
			body := "data: {not json}\ndata: {\"output\":{\"text\":\"ok\"}}\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"ok"}))
			Expect(d.Stats().ParseFailures).To(Equal(1))
		})

		It("emits nothing after the terminator even when more data is buffered", func() {
			body := "data: {\"output\":{\"text\":\"a\"}}\ndata: [DONE]\ndata: {\"output\":{\"text\":\"late\"}}\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"a"}))
			Expect(d.Text()).To(Equal("a"))
		})

		It("accepts a bare terminator line", func() {
			body := "data: {\"output\":{\"text\":\"a\"}}\n[DONE]\ndata: {\"output\":{\"text\":\"b\"}}\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"a"}))
			Expect(d.End()).To(Equal(stream.EndTerminator))
		})

		It("emits the final fragment then stops on a finish reason", func() {
			body := `data: {"choices":[{"delta":{"content":"bye"},"finish_reason":"stop"}]}
data: {"choices":[{"delta":{"content":"x"}}]}
`
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"bye"}))
			Expect(d.End()).To(Equal(stream.EndFinishReason))
		})

		It("falls through an empty native text to the delta form", func() {
			body := `data: {"output":{"text":""},"choices":[{"delta":{"content":"x"}}]}` + "\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"x"}))
		})

		It("falls through an empty delta to the completion text", func() {
			body := `data: {"choices":[{"delta":{"content":""},"text":"y"}]}` + "\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"y"}))
		})

		It("stops on a finish reason carried by a choice with no text", func() {
			body := `data: {"choices":[{"delta":{"content":"a"}}]}
data: {"choices":[{"index":0,"finish_reason":"stop"}]}
data: {"choices":[{"delta":{"content":"late"}}]}
`
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"a"}))
			Expect(d.Text()).To(Equal("a"))
			Expect(d.End()).To(Equal(stream.EndFinishReason))
		})

		It("stops on a native finish reason with empty text", func() {
			body := `data: {"output":{"text":"a"}}
data: {"output":{"text":"","finish_reason":"stop"}}
data: {"output":{"text":"late"}}
`
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"a"}))
			Expect(d.End()).To(Equal(stream.EndFinishReason))
		})

		It("does not treat a literal null finish reason as finished", func() {
			body := `data: {"output":{"text":"a","finish_reason":"null"}}
data: {"output":{"text":"b","finish_reason":"null"}}
`
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"a", "b"}))
			Expect(d.End()).To(Equal(stream.EndEOF))
		})

		It("skips id, event and status lines", func() {
			body := "id:1\nevent:result\n:HTTP_STATUS/200\ndata:{\"output\":{\"text\":\"a\",\"finish_reason\":\"null\"}}\n\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"a"}))
			Expect(d.Stats().DataLines).To(Equal(1))
		})

		It("decodes a payload wrapped in quotes", func() {
			body := `data: "{\"output\":{\"text\":\"q\"}}"` + "\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"q"}))
		})

		It("processes a trailing line that has no newline", func() {
			d := stream.NewDecoder(strings.NewReader(`data: {"output":{"text":"tail"}}`))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"tail"}))
			Expect(d.End()).To(Equal(stream.EndEOF))
		})

		It("completes with empty text when no data lines arrive", func() {
			d := stream.NewDecoder(strings.NewReader(":HTTP_STATUS/200\nevent: ping\n\n"))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(BeEmpty())
			Expect(d.Text()).To(BeEmpty())
			Expect(d.Empty()).To(BeTrue())
			Expect(d.End()).To(Equal(stream.EndEOF))
		})

		It("handles CRLF line endings", func() {
			body := "data: {\"output\":{\"text\":\"a\"}}\r\n\r\ndata: {\"output\":{\"text\":\"b\"}}\r\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"a", "b"}))
		})

		It("returns a read failure once and ends the stream", func() {
			d := stream.NewDecoder(&failingReader{
				data: []byte("data: {\"output\":{\"text\":\"a\"}}\n"),
				err:  errBroken,
			})

			frags, err := collect(d)
			Expect(err).To(MatchError(errBroken))
			Expect(frags).To(Equal([]string{"a"}))
			Expect(d.End()).To(Equal(stream.EndError))

			frag, err := d.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(frag).To(BeNil())
		})

		It("records usage reported by the upstream", func() {
			body := `data: {"output":{"text":"a"},"usage":{"input_tokens":3,"output_tokens":1}}` + "\n"
			d := stream.NewDecoder(strings.NewReader(body))

			_, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Usage()).NotTo(BeNil())
			Expect(d.Usage().InputTokens).To(Equal(3))
		})
	})

	Describe("payload shapes", func() {
		It("prefers the native form over choices", func() {
			body := `data: {"output":{"text":"native"},"choices":[{"delta":{"content":"delta"}}]}` + "\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"native"}))
		})

		It("reads the completion form", func() {
			body := `data: {"choices":[{"text":"comp"}]}` + "\n"
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"comp"}))
		})

		It("ignores payloads without text", func() {
			body := `data: {"choices":[{"delta":{"role":"assistant"}}]}
data: {"id":"x"}
data: {"choices":[{"delta":{"content":"a"}}]}
`
			d := stream.NewDecoder(strings.NewReader(body))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"a"}))
		})

		It("uses custom extractors when given", func() {
			body := `data: {"choices":[{"message":{"content":"whole"}}]}` + "\n"
			d := stream.NewDecoder(strings.NewReader(body),
				stream.WithExtractors(stream.ResponseExtractors()...))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"whole"}))
		})
	})

	Describe("chunk boundaries", func() {
		body := []byte(`id:1
event:result
:HTTP_STATUS/200
data:{"output":{"text":"你好, ","finish_reason":"null"}}

data: {"choices":[{"delta":{"content":"wörld 🌍"}}]}

data: {"choices":[{"text":"!"}]}

data: [DONE]
`)

		It("produces the same text for every split offset", func() {
			for k := 0; k <= len(body); k++ {
				d := stream.NewDecoder(splitAt(body, k))
				frags, err := collect(d)
				Expect(err).NotTo(HaveOccurred(), "offset %d", k)
				Expect(strings.Join(frags, "")).To(Equal("你好, wörld 🌍!"), "offset %d", k)
				Expect(d.Text()).To(Equal("你好, wörld 🌍!"), "offset %d", k)
			}
		})

		It("produces the same text for every pair of split offsets", func() {
			for i := 0; i <= len(body); i += 7 {
				for j := i; j <= len(body); j += 5 {
					d := stream.NewDecoder(splitAt(body, i, j))
					Expect(d.Drain(context.Background(), stream.SinkFuncs{})).To(Succeed())
					Expect(d.Text()).To(Equal("你好, wörld 🌍!"), "offsets %d,%d", i, j)
				}
			}
		})

		It("handles a producer that returns one byte at a time", func() {
			d := stream.NewDecoder(iotest.OneByteReader(strings.NewReader(string(body))))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Join(frags, "")).To(Equal("你好, wörld 🌍!"))
		})
	})

	Describe("snapshot mode", func() {
		It("emits only the new suffix of a growing snapshot", func() {
			body := `data: {"output":{"text":"He"}}
data: {"output":{"text":"Hello"}}
data: {"output":{"text":"Hello"}}
data: {"output":{"text":"Hello world","finish_reason":"stop"}}
`
			d := stream.NewDecoder(strings.NewReader(body), stream.WithMode(stream.ModeSnapshot))

			frags, err := collect(d)
			Expect(err).NotTo(HaveOccurred())
			Expect(frags).To(Equal([]string{"He", "llo", " world"}))
			Expect(d.Text()).To(Equal("Hello world"))
		})

		It("marks a rewritten snapshot as a replacement", func() {
			body := `data: {"output":{"text":"Hello"}}
data: {"output":{"text":"Help"}}
`
			d := stream.NewDecoder(strings.NewReader(body), stream.WithMode(stream.ModeSnapshot))

			first, err := d.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Replace).To(BeFalse())

			second, err := d.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Replace).To(BeTrue())
			Expect(second.Text).To(Equal("Help"))
			Expect(d.Text()).To(Equal("Help"))
		})

		It("delivers replacements to a Replacer sink", func() {
			body := `data: {"output":{"text":"Hello"}}
data: {"output":{"text":"Help"}}
`
			d := stream.NewDecoder(strings.NewReader(body), stream.WithMode(stream.ModeSnapshot))
			sink := &replacingSink{}

			Expect(d.Drain(context.Background(), sink)).To(Succeed())
			Expect(sink.fragments).To(Equal([]string{"Hello"}))
			Expect(sink.replaced).To(Equal([]string{"Help"}))
			Expect(sink.completed).To(Equal([]string{"Help"}))
		})
	})

	Describe("Fragments", func() {
		It("ranges over every fragment", func() {
			d := stream.NewDecoder(strings.NewReader(deltaStream))

			var texts []string
			for frag, err := range d.Fragments() {
				Expect(err).NotTo(HaveOccurred())
				texts = append(texts, frag.Text)
			}
			Expect(texts).To(Equal([]string{"He", "llo"}))
		})

		It("yields the read error and stops", func() {
			d := stream.NewDecoder(&failingReader{err: errBroken})

			var errs []error
			for _, err := range d.Fragments() {
				errs = append(errs, err)
			}
			Expect(errs).To(HaveLen(1))
			Expect(errs[0]).To(MatchError(errBroken))
		})
	})

	Describe("Drain", func() {
		It("calls OnComplete exactly once with the full text", func() {
			d := stream.NewDecoder(strings.NewReader(deltaStream))
			sink := &recordingSink{}

			Expect(d.Drain(context.Background(), sink)).To(Succeed())
			Expect(sink.fragments).To(Equal([]string{"He", "llo"}))
			Expect(sink.completed).To(Equal([]string{"Hello"}))
			Expect(sink.errs).To(BeEmpty())
		})

		It("completes with empty text when nothing was decoded", func() {
			d := stream.NewDecoder(strings.NewReader(""))
			sink := &recordingSink{}

			Expect(d.Drain(context.Background(), sink)).To(Succeed())
			Expect(sink.completed).To(Equal([]string{""}))
		})

		It("calls OnError exactly once on a read failure", func() {
			d := stream.NewDecoder(&failingReader{err: errBroken})
			sink := &recordingSink{}

			Expect(d.Drain(context.Background(), sink)).To(MatchError(errBroken))
			Expect(sink.errs).To(HaveLen(1))
			Expect(sink.completed).To(BeEmpty())
		})

		It("stops when the context is canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			d := stream.NewDecoder(strings.NewReader(deltaStream))
			sink := &recordingSink{}

			err := d.Drain(ctx, sink)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(sink.fragments).To(BeEmpty())
			Expect(sink.errs).To(HaveLen(1))
			Expect(d.End()).To(Equal(stream.EndCanceled))
		})

		It("closes the producer", func() {
			r := newChunkReader([]byte(deltaStream))
			d := stream.NewDecoder(r)

			Expect(d.Drain(context.Background(), stream.SinkFuncs{})).To(Succeed())
			Expect(r.closed).To(BeTrue())
		})

		It("adapts plain functions", func() {
			var got strings.Builder
			var full string
			d := stream.NewDecoder(strings.NewReader(deltaStream))

			err := d.Drain(context.Background(), stream.SinkFuncs{
				Fragment: func(text string) { got.WriteString(text) },
				Complete: func(text string) { full = text },
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.String()).To(Equal("Hello"))
			Expect(full).To(Equal("Hello"))
		})
	})

	Describe("responses", func() {
		newResponse := func(code int, contentType, body string) *http.Response {
			return &http.Response{
				StatusCode: code,
				Status:     http.StatusText(code),
				Header:     http.Header{"Content-Type": []string{contentType}},
				Body:       io.NopCloser(strings.NewReader(body)),
			}
		}

		It("reports a non-success status as a transport error without fragments", func() {
			resp := newResponse(http.StatusUnauthorized, "application/json", `{"message":"unauthorized"}`)
			sink := &recordingSink{}

			err := stream.DrainResponse(context.Background(), resp, sink)
			Expect(err).To(HaveOccurred())

			var terr *stream.TransportError
			Expect(errors.As(err, &terr)).To(BeTrue())
			Expect(terr.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(terr.Body).To(ContainSubstring("unauthorized"))
			Expect(sink.fragments).To(BeEmpty())
			Expect(sink.completed).To(BeEmpty())
			Expect(sink.errs).To(HaveLen(1))
		})

		It("decodes a successful response", func() {
			resp := newResponse(http.StatusOK, "text/event-stream", deltaStream)
			sink := &recordingSink{}

			Expect(stream.DrainResponse(context.Background(), resp, sink)).To(Succeed())
			Expect(sink.completed).To(Equal([]string{"Hello"}))
		})

		It("decodes the charset named in the content type", func() {
			gbk, err := simplifiedchinese.GBK.NewEncoder().String(`data: {"output":{"text":"你好"}}` + "\n")
			Expect(err).NotTo(HaveOccurred())

			for k := 0; k <= len(gbk); k++ {
				resp := newResponse(http.StatusOK, "text/event-stream; charset=gbk", "")
				resp.Body = io.NopCloser(splitAt([]byte(gbk), k))

				d, err := stream.FromResponse(resp)
				Expect(err).NotTo(HaveOccurred())
				frags, err := collect(d)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.Join(frags, "")).To(Equal("你好"), "offset %d", k)
			}
		})
	})
})
