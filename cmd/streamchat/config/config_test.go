package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/streamchat/cmd/streamchat/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		GinkgoT().Setenv("HOME", GinkgoT().TempDir())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .streamchat dir takes precedence over ~/.streamchat.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".streamchat"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() {
			Expect(os.Chdir(origDir)).To(Succeed())
		})
	})

	run := func(args ...string) (string, error) {
		cmd := configcmder.NewConfigCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			_, err := run("set", "llm.model", "qwen-plus")
			Expect(err).NotTo(HaveOccurred())

			raw, err := os.ReadFile(filepath.Join(tmpDir, ".streamchat", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`model = "qwen-plus"`))
		})

		It("masks secrets in its output", func() {
			out, err := run("set", "llm.api_key", "sk-abcdefghijkl")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).NotTo(ContainSubstring("sk-abcdefghijkl"))
			Expect(out).To(ContainSubstring("ijkl"))
		})

		It("rejects unknown keys", func() {
			_, err := run("set", "invalid_key", "value")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			_, err := run("set", "llm.model")
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid numeric values", func() {
			_, err := run("set", "llm.max_tokens", "lots")
			Expect(err).To(MatchError(ContainSubstring("llm.max_tokens")))
		})

		It("rejects unknown storage drivers", func() {
			_, err := run("set", "storage.driver", "mongo")
			Expect(err).To(MatchError(ContainSubstring("storage.driver")))
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			_, err := run("set", "webhook.url", "http://localhost:5678/webhook/video")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("get", "webhook.url")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("http://localhost:5678/webhook/video"))
		})

		It("shows unset keys", func() {
			out, err := run("get", "auth.redis_addr")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			_, err := run("get", "invalid_key")
			Expect(err).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			_, err := run("get")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("llm.api_url"))
			Expect(out).To(ContainSubstring("eventstream.topic"))
		})

		It("masks secrets", func() {
			_, err := run("set", "client.token", "0123456789abcdef")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).NotTo(ContainSubstring("0123456789abcdef"))
			Expect(out).To(ContainSubstring(`"********cdef"`))
		})

		It("rejects any arguments", func() {
			_, err := run("list", "extra")
			Expect(err).To(HaveOccurred())
		})
	})
})
