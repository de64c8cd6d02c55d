package provider

import (
	"fmt"

	"github.com/papercomputeco/streamchat/pkg/llm/provider/dashscope"
	"github.com/papercomputeco/streamchat/pkg/llm/provider/openai"
)

// Supported provider type constants
const (
	DashScope = "dashscope"
	OpenAI    = "openai"
)

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{DashScope, OpenAI}
}

// New creates a new Provider instance for the given provider type.
// Returns an error if the provider type is not recognized.
func New(providerType string) (Provider, error) {
	switch providerType {
	case DashScope:
		return dashscope.New(), nil
	case OpenAI:
		return openai.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", providerType, SupportedProviders())
	}
}

// Resolve returns the named provider, or detects one from apiURL when name
// is empty.
func Resolve(name, apiURL string) (Provider, error) {
	if name == "" {
		return NewDetector().Detect(apiURL), nil
	}
	return New(name)
}
