package llm

// NewProviderFunc constructs a Provider from an API key, base URL, and
// model name. Concrete constructors (anthropic.New, openai.New) satisfy
// this signature; wiring lives in cmd/orchestratord to avoid an import
// cycle between this package and its two implementations.
type NewProviderFunc func(apiKey, baseURL, model string) Provider
