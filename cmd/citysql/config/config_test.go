package configcmder_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/citysql/cmd/citysql/config"
	"github.com/papercomputeco/citysql/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))

		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "citysql-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .citysql dir is picked up ahead of the home directory.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".citysql"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	loadConfig := func() *config.Config {
		cfger, err := config.NewConfiger(filepath.Join(tmpDir, ".citysql"))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	Describe("set subcommand", func() {
		It("writes the value to the local config file", func() {
			Expect(execute("set", "agent.model", "gpt-4o")).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, ".citysql", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(loadConfig().Agent.Model).To(Equal("gpt-4o"))
		})

		It("rejects unknown keys", func() {
			err := execute("set", "proxy.upstream", "value")
			Expect(err).To(MatchError(ContainSubstring(`unknown config key: "proxy.upstream"`)))
		})

		It("rejects values of the wrong type", func() {
			Expect(execute("set", "relay.session_timeout", "forever")).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "agent.model")).To(HaveOccurred())
		})

		It("masks secrets in its confirmation", func() {
			Expect(execute("set", "agent.api_key", "sk-secret")).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("sk-secret"))
			Expect(loadConfig().Agent.APIKey).To(Equal("sk-secret"))
		})
	})

	Describe("get subcommand", func() {
		It("prints a set value", func() {
			Expect(execute("set", "server.listen", ":8080")).To(Succeed())
			out.Reset()

			Expect(execute("get", "server.listen")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(":8080"))
		})

		It("prints the default when unset", func() {
			Expect(execute("get", "relay.session_timeout")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("30s"))
		})

		It("reveals secrets on request", func() {
			Expect(execute("set", "agent.api_key", "sk-secret")).To(Succeed())
			out.Reset()

			Expect(execute("get", "agent.api_key")).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("sk-secret"))

			out.Reset()
			Expect(execute("get", "agent.api_key", "--reveal")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("sk-secret"))
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			Expect(execute("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
			Expect(out.String()).To(ContainSubstring(`server.listen              = ":3000"`))
			Expect(out.String()).To(ContainSubstring("agent.temperature          = <not set>"))
		})
	})
})
