package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/citysql/pkg/cliui"
)

var _ = Describe("Step", func() {
	It("returns fn's error and prints the message with a final mark", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")

		err := cliui.Step(&buf, "seeding cities", func() error { return boom })
		Expect(err).To(MatchError(boom))
		Expect(buf.String()).To(ContainSubstring("seeding cities"))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
		Expect(buf.String()).To(HaveSuffix("\n"))
	})

	It("marks success", func() {
		var buf bytes.Buffer
		Expect(cliui.Step(&buf, "ok", func() error { return nil })).To(Succeed())
		Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
	})
})

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds below a second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses tenths of seconds above", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})

var _ = Describe("MarkdownTable", func() {
	It("renders a header, separator and rows", func() {
		out := cliui.MarkdownTable(
			[]string{"name_en", "population"},
			[][]string{{"Tokyo", "37,400,068"}, {"A|B", "N/A"}},
		)
		Expect(out).To(Equal("| name_en | population |\n" +
			"| --- | --- |\n" +
			"| Tokyo | 37,400,068 |\n" +
			"| A\\|B | N/A |\n"))
	})

	It("pads short rows", func() {
		out := cliui.MarkdownTable([]string{"a", "b"}, [][]string{{"1"}})
		Expect(out).To(HaveSuffix("| 1 |  |\n"))
	})

	It("renders nothing without headers", func() {
		Expect(cliui.MarkdownTable(nil, nil)).To(BeEmpty())
	})
})
