package searchcmder_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/citysql/api"
	searchcmder "github.com/papercomputeco/citysql/cmd/citysql/search"
)

var _ = Describe("FormatAnswer", func() {
	It("appends the SQL as a fenced block", func() {
		sql := "SELECT name_en FROM cities LIMIT 1;"
		out := searchcmder.FormatAnswer(&api.SearchResponse{Result: "Tokyo\n", SQLQuery: &sql})
		Expect(out).To(Equal("Tokyo\n\n```sql\nSELECT name_en FROM cities LIMIT 1;\n```\n"))
	})

	It("omits the block without SQL", func() {
		Expect(searchcmder.FormatAnswer(&api.SearchResponse{Result: "I don't know."})).To(Equal("I don't know.\n"))
	})
})

var _ = Describe("search command", func() {
	run := func(status int, body string, args ...string) (string, error) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		DeferCleanup(server.Close)

		tmpDir, err := os.MkdirTemp("", "citysql-search-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })

		out := &bytes.Buffer{}
		cmd := searchcmder.NewSearchCmd()
		cmd.Flags().String("config-dir", tmpDir, "")
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append([]string{"--target", server.URL}, args...))
		err = cmd.Execute()
		return out.String(), err
	}

	It("prints the markdown answer when stdout is not a terminal", func() {
		out, err := run(http.StatusOK, `{"result":"Tokyo","sqlQuery":null,"success":true}`, "largest", "city")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("Tokyo\n"))
	})

	It("returns the server error", func() {
		_, err := run(http.StatusInternalServerError,
			`{"error":"An error occurred while processing your query: boom","success":false}`, "q")
		Expect(err).To(MatchError(ContainSubstring("status 500")))
	})

	It("requires a question", func() {
		_, err := run(http.StatusOK, `{}`)
		Expect(err).To(HaveOccurred())
	})
})
