package config

import (
	"testing"
)

// memBackend is an in-memory Backend for tests.
type memBackend struct {
	data map[string]any
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	i, _ := v.(int)
	return i, true, nil
}

func (b *memBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *memBackend) Delete(key string) error         { delete(b.data, key); return nil }

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(&memBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4700 {
		t.Errorf("port = %d, want 4700", cfg.Server.Port)
	}
	if cfg.OpenAI.ChatModel != "gpt-4o" {
		t.Errorf("chat model = %q", cfg.OpenAI.ChatModel)
	}
	if cfg.OpenAI.EmbedModel != "text-embedding-3-small" {
		t.Errorf("embed model = %q", cfg.OpenAI.EmbedModel)
	}
	if cfg.Qdrant.Collection != "legal_knowledge" {
		t.Errorf("collection = %q", cfg.Qdrant.Collection)
	}
	if cfg.Ingest.ChunkSize != 1200 || cfg.Ingest.ChunkOverlap != 2 {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("top_k = %d", cfg.Retrieval.TopK)
	}
}

func TestBackendOverridesDefaults(t *testing.T) {
	b := &memBackend{data: map[string]any{
		"server.port":       9000,
		"qdrant.collection": "case_law",
		"vector.backend":    "memory",
	}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Qdrant.Collection != "case_law" {
		t.Errorf("collection = %q", cfg.Qdrant.Collection)
	}
	if cfg.Vector.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Vector.Backend)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	t.Setenv("COUNSEL_SERVER_PORT", "9001")
	t.Setenv("COUNSEL_OPENAI_API_KEY", "sk-env-key")

	b := &memBackend{data: map[string]any{"server.port": 9000}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("port = %d, want env override 9001", cfg.Server.Port)
	}
	if cfg.OpenAI.APIKey != "sk-env-key" {
		t.Errorf("api key not taken from env")
	}
}

func TestSecretsNeverComeFromBackend(t *testing.T) {
	b := &memBackend{data: map[string]any{"openai.api_key": "sk-file-key"}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.OpenAI.APIKey == "sk-file-key" {
		t.Error("secret was read from the file backend")
	}
}

func TestShowAllSkipsSecrets(t *testing.T) {
	cfg := defaults()
	cfg.OpenAI.APIKey = "sk-secret"
	cfg.Server.APIToken = "token-secret"

	for _, info := range ShowAll(cfg) {
		if info.Value == "sk-secret" || info.Value == "token-secret" {
			t.Errorf("secret leaked through ShowAll: %+v", info)
		}
		if info.Key == "openai.api_key" || info.Key == "server.api_token" {
			t.Errorf("secret key listed: %s", info.Key)
		}
	}
}

func TestValidKeysExcludeSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if k == "openai.api_key" || k == "qdrant.api_key" || k == "server.api_token" {
			t.Errorf("secret key %q listed as settable", k)
		}
	}
	found := false
	for _, e := range ValidSecretEnvs() {
		if e == "COUNSEL_OPENAI_API_KEY" {
			found = true
		}
	}
	if !found {
		t.Error("ValidSecretEnvs missing COUNSEL_OPENAI_API_KEY")
	}
}
