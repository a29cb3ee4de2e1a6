package models

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
	DefaultTopK         = 5
	DefaultThreshold    = 0.3

	BackendBuiltin = "builtin"
	BackendChromem = "chromem"

	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoOpenAI = "go-openai"
)

// Delimiters are the split boundaries tried by the segmenter, highest priority first.
var Delimiters = []rune{'。', '\n', '、', ' '}
