package provider_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamchat/pkg/llm/provider"
)

var _ = Describe("Detector", func() {
	var detector *provider.Detector

	BeforeEach(func() {
		detector = provider.NewDetector()
	})

	DescribeTable("Detect",
		func(url, want string) {
			Expect(detector.Detect(url).Name()).To(Equal(want))
		},
		Entry("native endpoint", "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation", "dashscope"),
		Entry("compatible mode", "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions", "openai"),
		Entry("self-hosted chat completions", "http://localhost:8000/v1/chat/completions", "openai"),
		Entry("unknown endpoint", "https://llm.internal/generate", "dashscope"),
	)

	Describe("New", func() {
		It("builds every supported provider", func() {
			for _, name := range provider.SupportedProviders() {
				p, err := provider.New(name)
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Name()).To(Equal(name))
			}
		})

		It("rejects an unknown provider", func() {
			_, err := provider.New("anthropic")
			Expect(err).To(MatchError(ContainSubstring("unknown provider type")))
		})
	})

	Describe("Resolve", func() {
		It("detects from the URL when no name is set", func() {
			p, err := provider.Resolve("", "https://x/compatible-mode/v1/chat/completions")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name()).To(Equal("openai"))
		})

		It("prefers the explicit name", func() {
			p, err := provider.Resolve("dashscope", "https://x/v1/chat/completions")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name()).To(Equal("dashscope"))
		})
	})
})
