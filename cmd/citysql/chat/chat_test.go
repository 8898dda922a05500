package chatcmder

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/citysql/pkg/sse"
)

type chatBody struct {
	Messages []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
}

var _ = Describe("chat command", func() {
	var (
		server    *httptest.Server
		mu        sync.Mutex
		questions []string
		answers   map[string][]sse.Frame
		out       *bytes.Buffer
		cmd       *cobra.Command
	)

	BeforeEach(func() {
		questions = nil
		answers = map[string][]sse.Frame{
			"capital of France?": {sse.Text("Par"), sse.Text("Paris"), sse.Done()},
			"largest city?":      {sse.Text("Tok"), sse.Text("Tokyo"), sse.Done()},
			"fail":               {sse.Text("Lo"), sse.Error("rate limited")},
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body chatBody
			_ = json.NewDecoder(r.Body).Decode(&body)
			q := body.Messages[0].Content[0].Text

			mu.Lock()
			questions = append(questions, q)
			mu.Unlock()

			w.Header().Set("Content-Type", "text/event-stream")
			for _, f := range answers[q] {
				b, _ := sse.Encode(f)
				_, _ = w.Write(b)
				w.(http.Flusher).Flush()
			}
		}))
		DeferCleanup(server.Close)

		tmpDir, err := os.MkdirTemp("", "citysql-chat-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })

		out = &bytes.Buffer{}
		cmd = NewChatCmd()
		cmd.Flags().Bool("debug", false, "")
		cmd.Flags().String("config-dir", tmpDir, "")
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
	})

	It("answers each input line and prints the final text once", func() {
		cmd.SetIn(strings.NewReader("capital of France?\n\nlargest city?\n/exit\nnever asked\n"))
		cmd.SetArgs([]string{"--target", server.URL})

		Expect(cmd.Execute()).To(Succeed())
		Expect(questions).To(Equal([]string{"capital of France?", "largest city?"}))
		Expect(out.String()).To(Equal("Paris\nTokyo\n"))
	})

	It("asks a question given as arguments", func() {
		cmd.SetIn(strings.NewReader(""))
		cmd.SetArgs([]string{"--target", server.URL, "capital", "of", "France?"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(questions).To(Equal([]string{"capital of France?"}))
		Expect(out.String()).To(Equal("Paris\n"))
	})

	It("copies the raw event stream to stderr in debug mode", func() {
		var raw bytes.Buffer
		cmd.SetErr(&raw)
		cmd.SetIn(strings.NewReader(""))
		cmd.SetArgs([]string{"--debug", "--target", server.URL, "capital of France?"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(Equal("Paris\n"))
		Expect(raw.String()).To(ContainSubstring(`data: {"type":"text","value":"Paris"}`))
		Expect(raw.String()).To(ContainSubstring("data: [DONE]\n\n"))
	})

	It("reports an error frame and keeps reading", func() {
		cmd.SetIn(strings.NewReader("fail\nlargest city?\n"))
		cmd.SetArgs([]string{"--target", server.URL})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(HavePrefix("Lo\n"))
		Expect(out.String()).To(ContainSubstring("rate limited"))
		Expect(out.String()).To(HaveSuffix("Tokyo\n"))
	})
})

var _ = Describe("printStream", func() {
	decoderFor := func(frames ...sse.Frame) *sse.Decoder {
		var raw bytes.Buffer
		for _, f := range frames {
			b, err := sse.Encode(f)
			Expect(err).NotTo(HaveOccurred())
			raw.Write(b)
		}
		return sse.NewDecoder(io.NopCloser(&raw))
	}

	It("prints only the new suffix of each update", func() {
		var w bytes.Buffer
		final, err := printStream(&w, decoderFor(sse.Text("a"), sse.Text("ab"), sse.Text("abc"), sse.Done()))
		Expect(err).NotTo(HaveOccurred())
		Expect(final).To(Equal("abc"))
		Expect(w.String()).To(Equal("abc"))
	})

	It("reprints a rewritten answer on a new line", func() {
		var w bytes.Buffer
		_, err := printStream(&w, decoderFor(sse.Text("abc"), sse.Text("xyz"), sse.Done()))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.String()).To(Equal("abc\nxyz"))
	})

	It("returns the protocol error", func() {
		var w bytes.Buffer
		_, err := printStream(&w, decoderFor(sse.Text("Lo"), sse.Error("rate limited")))
		var perr *sse.ProtocolError
		Expect(err).To(BeAssignableToTypeOf(perr))
	})
})
