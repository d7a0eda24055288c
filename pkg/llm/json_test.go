package llm_test

import (
	"context"

	"github.com/lisanmuaddib/event-scraper/pkg/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type verdict struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

var _ = Describe("DecodeJSON", func() {
	DescribeTable("recovers JSON from model output",
		func(raw string) {
			var v verdict
			Expect(llm.DecodeJSON(raw, &v)).To(Succeed())
			Expect(v.Provider).To(Equal("oxylabs"))
		},
		Entry("plain object", `{"provider":"oxylabs","reason":"complete"}`),
		Entry("fenced block", "Here you go:\n```json\n{\"provider\":\"oxylabs\",\"reason\":\"x\"}\n```\nThanks"),
		Entry("unlabelled fence", "```\n{\"provider\":\"oxylabs\"}\n```"),
		Entry("embedded in prose", `I pick {"provider":"oxylabs","reason":"more content"} because it is better.`),
	)

	It("reports ErrNoJSON for text without JSON", func() {
		var v verdict
		Expect(llm.DecodeJSON("I could not decide.", &v)).To(MatchError(llm.ErrNoJSON))
		Expect(llm.DecodeJSON("   ", &v)).To(MatchError(llm.ErrNoJSON))
	})

	It("accepts arrays", func() {
		var items []verdict
		Expect(llm.DecodeJSON(`Result: [{"provider":"a"},{"provider":"b"}]`, &items)).To(Succeed())
		Expect(items).To(HaveLen(2))
	})
})

var _ = Describe("Options", func() {
	It("applies functional options over defaults", func() {
		opts := llm.Apply(llm.Options{Temperature: 0.7, Model: "base"},
			llm.WithTemperature(0), llm.WithMaxTokens(10), llm.WithJSONMode())
		Expect(opts.Temperature).To(BeZero())
		Expect(opts.MaxTokens).To(Equal(10))
		Expect(opts.Model).To(Equal("base"))
		Expect(opts.JSONMode).To(BeTrue())
	})

	It("lets plain functions act as models", func() {
		var model llm.LLM = llm.Func(func(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
			return "echo: " + prompt, nil
		})
		out, err := model.Generate(context.Background(), "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("echo: hi"))
	})
})
