package streamchatcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	streamchatcmder "github.com/papercomputeco/streamchat/cmd/streamchat"
	"github.com/papercomputeco/streamchat/pkg/config"
)

var _ = Describe("NewStreamchatCmd", func() {
	It("registers every subcommand", func() {
		cmd := streamchatcmder.NewStreamchatCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "chat", "video", "check", "login", "config", "init", "version"))
	})

	It("has the global flags", func() {
		cmd := streamchatcmder.NewStreamchatCmd()
		Expect(cmd.PersistentFlags().Lookup("debug").Shorthand).To(Equal("d"))
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("passes --config-dir through to subcommands", func() {
		GinkgoT().Setenv("HOME", GinkgoT().TempDir())
		dir := GinkgoT().TempDir()

		cmd := streamchatcmder.NewStreamchatCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"config", "set", "llm.model", "qwen-max", "--config-dir", dir})
		Expect(cmd.Execute()).To(Succeed())

		raw, err := os.ReadFile(filepath.Join(dir, "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := config.ParseConfigTOML(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.LLM.Model).To(Equal("qwen-max"))
	})
})
