package config

import "strings"

// Provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderVertexAI = "vertexai"
)

// Default model identifiers. The fast tier answers simple routed questions
// cheaply; the capable tier is the default for documentation research.
const (
	DefaultFastModel    = "gemini-2.5-flash"
	DefaultCapableModel = "gemini-2.5-pro"

	// DefaultEmbedderModel outputs 3072 dimensions by default but supports
	// truncation to 768 via OutputDimensionality; the pgvector schema uses
	// 768 (see knowledge.VectorDimension).
	DefaultEmbedderModel = "gemini-embedding-001"
)

// FullModelName returns the provider-qualified name for a bare model id,
// e.g. "googleai/gemini-2.5-pro". Already-qualified names pass through.
func (c *Config) FullModelName(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	provider := c.Provider
	if provider == "" {
		provider = ProviderGoogleAI
	}
	return provider + "/" + model
}

// DefaultModel returns the provider-qualified default generation model
// (the capable tier).
func (c *Config) DefaultModel() string {
	return c.FullModelName(c.CapableModel)
}

// SupportedModels returns the closed set of selectable generation models,
// provider-qualified, most capable first. Identifiers outside this set are
// not rejected; they are passed to the backend verbatim.
func (c *Config) SupportedModels() []string {
	return []string{
		c.FullModelName(c.CapableModel),
		c.FullModelName(c.FastModel),
	}
}

// FullEmbedderName returns the provider-qualified embedder model name.
func (c *Config) FullEmbedderName() string {
	return c.FullModelName(c.EmbedderModel)
}
