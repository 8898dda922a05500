package sse_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/citysql/pkg/sse"
)

// chunkedBody serves predetermined chunks, one per Read, then fails with
// err (io.EOF when nil). It counts Close calls.
type chunkedBody struct {
	chunks [][]byte
	err    error
	closed atomic.Int32
}

func newChunkedBody(chunks ...string) *chunkedBody {
	b := &chunkedBody{}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	return b
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closed.Add(1)
	return nil
}

func frame(f sse.Frame) string {
	b, err := sse.Encode(f)
	Expect(err).NotTo(HaveOccurred())
	return string(b)
}

func drain(d *sse.Decoder) ([]string, error) {
	var updates []string
	for {
		msg, err := d.Next()
		if err != nil {
			return updates, err
		}
		updates = append(updates, msg)
	}
}

var _ = Describe("Decoder", func() {
	It("yields cumulative updates and terminates on done", func() {
		body := newChunkedBody(frame(sse.Text("Par")), frame(sse.Text("Paris")), frame(sse.Done()))
		d := sse.NewDecoder(body)

		updates, err := drain(d)
		Expect(err).To(Equal(io.EOF))
		Expect(updates).To(Equal([]string{"Par", "Paris"}))
		Expect(d.Message()).To(Equal("Paris"))
		Expect(body.closed.Load()).To(BeEquivalentTo(1))
	})

	It("stops reading after done even if more frames follow", func() {
		body := newChunkedBody(frame(sse.Text("a")) + frame(sse.Done()) + frame(sse.Text("ignored")))
		updates, err := drain(sse.NewDecoder(body))

		Expect(err).To(Equal(io.EOF))
		Expect(updates).To(Equal([]string{"a"}))
	})

	It("reports an error frame as a terminal ProtocolError", func() {
		body := newChunkedBody(frame(sse.Text("Lo")), frame(sse.Error("rate limited")))
		d := sse.NewDecoder(body)

		updates, err := drain(d)
		Expect(updates).To(Equal([]string{"Lo"}))

		var perr *sse.ProtocolError
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(perr.Message).To(Equal("rate limited"))
		Expect(body.closed.Load()).To(BeEquivalentTo(1))

		_, again := d.Next()
		Expect(again).To(BeIdenticalTo(err))
	})

	It("reports an error frame without a message as an unknown error", func() {
		_, err := drain(sse.NewDecoder(newChunkedBody(frame(sse.Error("")))))

		var perr *sse.ProtocolError
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(perr.Message).To(Equal(sse.UnknownErrorMessage))
		Expect(err).To(MatchError("Unknown error"))
	})

	It("reassembles a frame split inside a multi-byte character", func() {
		raw := []byte(frame(sse.Text("Zürich")))
		cut := bytes.IndexRune(raw, 'ü') + 1
		body := &chunkedBody{chunks: [][]byte{raw[:cut], raw[cut:]}}

		updates, err := drain(sse.NewDecoder(body))
		Expect(err).To(Equal(io.EOF))
		Expect(updates).To(Equal([]string{"Zürich"}))
	})

	It("handles a boundary split across reads", func() {
		raw := frame(sse.Text("Tokyo")) + frame(sse.Done())
		i := strings.Index(raw, "\n\n") + 1
		body := newChunkedBody(raw[:i], raw[i:])

		updates, err := drain(sse.NewDecoder(body))
		Expect(err).To(Equal(io.EOF))
		Expect(updates).To(Equal([]string{"Tokyo"}))
	})

	It("delivers every frame when the body arrives one byte at a time", func() {
		raw := frame(sse.Text("Ber")) + frame(sse.Text("Berlin")) + frame(sse.Done())
		var chunks []string
		for i := range len(raw) {
			chunks = append(chunks, raw[i:i+1])
		}

		updates, err := drain(sse.NewDecoder(newChunkedBody(chunks...)))
		Expect(err).To(Equal(io.EOF))
		Expect(updates).To(Equal([]string{"Ber", "Berlin"}))
	})

	It("skips a malformed frame between two valid frames", func() {
		body := newChunkedBody(
			frame(sse.Text("Osl")),
			"data: {not json\n\n",
			frame(sse.Text("Oslo")),
			frame(sse.Done()),
		)

		updates, err := drain(sse.NewDecoder(body))
		Expect(err).To(Equal(io.EOF))
		Expect(updates).To(Equal([]string{"Osl", "Oslo"}))
	})

	It("ignores blank segments, foreign lines and empty text values", func() {
		body := newChunkedBody(
			"\n\n",
			": keep-alive\n\n",
			"event: ping\n\n",
			frame(sse.Text("")),
			frame(sse.Text("Rome")),
			frame(sse.Done()),
		)

		updates, err := drain(sse.NewDecoder(body))
		Expect(err).To(Equal(io.EOF))
		Expect(updates).To(Equal([]string{"Rome"}))
	})

	It("overwrites rather than appends", func() {
		body := newChunkedBody(frame(sse.Text("first")), frame(sse.Text("second")), frame(sse.Done()))
		d := sse.NewDecoder(body)

		_, err := drain(d)
		Expect(err).To(Equal(io.EOF))
		Expect(d.Message()).To(Equal("second"))
	})

	It("treats end of body without done as completion", func() {
		body := newChunkedBody(frame(sse.Text("Lima")), "data: {\"type\":\"text\",\"va")

		updates, err := drain(sse.NewDecoder(body))
		Expect(err).To(Equal(io.EOF))
		Expect(updates).To(Equal([]string{"Lima"}))
		Expect(body.closed.Load()).To(BeEquivalentTo(1))
	})

	It("reports a read failure as a TransportError", func() {
		body := newChunkedBody(frame(sse.Text("Cai")))
		body.err = errors.New("connection reset by peer")
		d := sse.NewDecoder(body)

		updates, err := drain(d)
		Expect(updates).To(Equal([]string{"Cai"}))

		var terr *sse.TransportError
		Expect(errors.As(err, &terr)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("connection reset by peer")))

		var perr *sse.ProtocolError
		Expect(errors.As(err, &perr)).To(BeFalse())
		Expect(body.closed.Load()).To(BeEquivalentTo(1))
	})

	It("releases the body exactly once when the caller aborts", func() {
		body := newChunkedBody(frame(sse.Text("Madrid")), frame(sse.Done()))
		d := sse.NewDecoder(body)

		msg, err := d.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(msg).To(Equal("Madrid"))

		Expect(d.Close()).To(Succeed())
		Expect(d.Close()).To(Succeed())

		_, err = d.Next()
		Expect(err).To(MatchError(sse.ErrClosed))
		Expect(body.closed.Load()).To(BeEquivalentTo(1))
	})

	It("copies raw bytes to the tee writer", func() {
		raw := frame(sse.Text("Seoul")) + frame(sse.Done())
		var tee bytes.Buffer

		_, err := drain(sse.NewDecoder(newChunkedBody(raw), sse.WithTee(&tee)))
		Expect(err).To(Equal(io.EOF))
		Expect(tee.String()).To(Equal(raw))
	})

	It("round-trips any sequence of fragments to their concatenation", func() {
		fragments := []string{"The ", "largest ", "city ", "is ", "東京", "."}
		var wire strings.Builder
		var acc strings.Builder
		for _, f := range fragments {
			acc.WriteString(f)
			wire.WriteString(frame(sse.Text(acc.String())))
		}
		wire.WriteString(frame(sse.Done()))

		d := sse.NewDecoder(newChunkedBody(wire.String()))
		_, err := drain(d)
		Expect(err).To(Equal(io.EOF))
		Expect(d.Message()).To(Equal(strings.Join(fragments, "")))
	})
})
