package historycmder_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	historycmder "github.com/papercomputeco/citysql/cmd/citysql/history"
	"github.com/papercomputeco/citysql/pkg/history"
)

var _ = Describe("Table", func() {
	It("renders one row per entry", func() {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		out := historycmder.Table([]*history.Entry{{
			Kind:      history.KindChat,
			Question:  strings.Repeat("q", 70),
			Outcome:   "done",
			StartedAt: now.Add(-3 * time.Minute),
			Duration:  1500 * time.Millisecond,
		}}, now)

		Expect(out).To(HavePrefix("| when | kind | outcome | took | question |\n"))
		Expect(out).To(ContainSubstring("| 3 minutes ago | chat | done | 1.5s | " + strings.Repeat("q", 60) + "... |"))
	})
})

var _ = Describe("history command", func() {
	It("asks for the requested limit and prints a table", func() {
		var gotLimit string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotLimit = r.URL.Query().Get("limit")
			_, _ = w.Write([]byte(`{"count":1,"entries":[{"id":"1","kind":"search","question":"largest city","answer":"Tokyo","outcome":"done","startedAt":"2024-01-01T00:00:00Z","duration":0}]}`))
		}))
		DeferCleanup(server.Close)

		tmpDir, err := os.MkdirTemp("", "citysql-history-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })

		out := &bytes.Buffer{}
		cmd := historycmder.NewHistoryCmd()
		cmd.Flags().String("config-dir", tmpDir, "")
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--target", server.URL, "-n", "3"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(gotLimit).To(Equal("3"))
		Expect(out.String()).To(ContainSubstring("| search | done | 0ms | largest city |"))
	})
})
