// Package provider
package provider

import (
	"github.com/papercomputeco/streamchat/pkg/llm/provider/dashscope"
	"github.com/papercomputeco/streamchat/pkg/llm/provider/openai"
)

// Detector picks a provider for an endpoint by checking registered
// providers in order.
type Detector struct {
	providers []Provider
}

// NewDetector creates a new Detector with the default set of providers.
// OpenAI-compatible endpoints are checked first since they share hosts with
// the native form.
func NewDetector() *Detector {
	return &Detector{
		providers: []Provider{
			openai.New(),
			dashscope.New(),
		},
	}
}

// Detect returns the provider for apiURL. Unrecognized URLs get the native
// DashScope form.
func (d *Detector) Detect(apiURL string) Provider {
	for _, p := range d.providers {
		if p.CanHandle(apiURL) {
			return p
		}
	}
	return dashscope.New()
}
