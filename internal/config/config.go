// Package config loads daemon configuration from a JSON file at the XDG
// config path, with COUNSEL_* environment variables taking precedence.
// Secrets are never written to the file; they come from the environment or
// arrive per session over the API.
package config

import "os"

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Qdrant    QdrantConfig
	Vector    VectorConfig
	Ingest    IngestConfig
	Retrieval RetrievalConfig
	Log       LogConfig
	Storage   StorageConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Metric     string
}

// VectorConfig selects the vector store backend: "qdrant" or "memory".
type VectorConfig struct {
	Backend string
}

type IngestConfig struct {
	ChunkSize    int // bytes per chunk, soft target
	ChunkOverlap int // sentences carried into the next chunk
}

type RetrievalConfig struct {
	TopK int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4700,
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o",
			EmbedModel: "text-embedding-3-small",
		},
		Qdrant: QdrantConfig{
			URL:        "http://localhost:6333",
			Collection: "legal_knowledge",
			Metric:     "cosine",
		},
		Vector: VectorConfig{
			Backend: "qdrant",
		},
		Ingest: IngestConfig{
			ChunkSize:    1200,
			ChunkOverlap: 2,
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
	}
}

// Load reads configuration from the JSON file backend and applies COUNSEL_*
// environment overrides. A missing OpenAI key is not an error here: sessions
// carry their own credentials and are validated at creation.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	// The conventional variable works as a fallback for the session default.
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg, nil
}
