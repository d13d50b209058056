// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every config key when read from the environment.
const EnvPrefix = "NYAYA"

// Config is the top-level Nyaya configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	DataDir    string           `mapstructure:"data_dir"`
	Log        LogConfig        `mapstructure:"log"`
	Document   DocumentConfig   `mapstructure:"document"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Store      StoreConfig      `mapstructure:"store"`
	Generation GenerationConfig `mapstructure:"generation"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Server     ServerConfig     `mapstructure:"server"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"`
}

// DocumentConfig names the source document and the file types the loader
// accepts.
type DocumentConfig struct {
	Name             string   `mapstructure:"name"`
	Path             string   `mapstructure:"path"`
	SupportedFormats []string `mapstructure:"supported_formats"`
}

type ChunkingConfig struct {
	MaxTokens  int    `mapstructure:"max_tokens"`
	MergePeers bool   `mapstructure:"merge_peers"`
	Encoding   string `mapstructure:"encoding"`
}

// EmbeddingConfig selects the embedding backend. The same settings are used
// at index time and at query time.
type EmbeddingConfig struct {
	Provider   string         `mapstructure:"provider"`
	Model      string         `mapstructure:"model"`
	Dimensions int            `mapstructure:"dimensions"`
	Normalize  bool           `mapstructure:"normalize"`
	BatchSize  int            `mapstructure:"batch_size"`
	APIKey     string         `mapstructure:"api_key"`
	BaseURL    string         `mapstructure:"base_url"`
	Cache      EmbeddingCache `mapstructure:"cache"`
}

type EmbeddingCache struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// StoreConfig selects the vector store backend and how saves are batched.
type StoreConfig struct {
	Backend          string         `mapstructure:"backend"`
	Collection       string         `mapstructure:"collection"`
	BatchSize        int            `mapstructure:"batch_size"`
	OnConflict       string         `mapstructure:"on_conflict"`
	BatchesPerSecond float64        `mapstructure:"batches_per_second"`
	SQLite           SQLiteConfig   `mapstructure:"sqlite"`
	Chroma           ChromaConfig   `mapstructure:"chroma"`
	Pinecone         PineconeConfig `mapstructure:"pinecone"`
}

type SQLiteConfig struct {
	Dir string `mapstructure:"dir"`
}

type ChromaConfig struct {
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"api_key"`
	Tenant   string `mapstructure:"tenant"`
	Database string `mapstructure:"database"`
}

type PineconeConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Cloud      string `mapstructure:"cloud"`
	Region     string `mapstructure:"region"`
	Namespace  string `mapstructure:"namespace"`
	ControlURL string `mapstructure:"control_url"`
}

// GenerationConfig selects the generative model used to answer questions.
type GenerationConfig struct {
	Provider     string  `mapstructure:"provider"`
	Model        string  `mapstructure:"model"`
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	SystemPrompt string  `mapstructure:"system_prompt"`
}

type RetrievalConfig struct {
	TopK         int    `mapstructure:"top_k"`
	DocumentName string `mapstructure:"document_name"`
}

type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// RequestsPerSecond limits query endpoints per client IP. 0 disables.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

var (
	embeddingProviders  = []string{"openai", "google"}
	storeBackends       = []string{"sqlite", "chroma", "pinecone"}
	generationProviders = []string{"google", "openai", "anthropic"}
	conflictPolicies    = []string{"error", "overwrite"}
	logLevels           = []string{"debug", "info", "warn", "warning", "error"}
	logFormats          = []string{"text", "json"}
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "NyayaGPT")
	v.SetDefault("data_dir", "data")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.format", "text")

	v.SetDefault("document.name", "indian_constitution")
	v.SetDefault("document.path", filepath.Join("data", "indian_constitution.docling.json"))
	v.SetDefault("document.supported_formats", []string{".json", ".md", ".txt", ".pdf", ".docx"})

	v.SetDefault("chunking.max_tokens", 1000)
	v.SetDefault("chunking.merge_peers", true)
	v.SetDefault("chunking.encoding", "cl100k_base")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-large")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.normalize", true)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.cache.enabled", true)
	v.SetDefault("embedding.cache.dir", "")

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.collection", "documents")
	v.SetDefault("store.batch_size", 250)
	v.SetDefault("store.on_conflict", "error")
	v.SetDefault("store.batches_per_second", 0)
	v.SetDefault("store.sqlite.dir", "chroma_db")
	v.SetDefault("store.chroma.url", "https://api.trychroma.com")
	v.SetDefault("store.chroma.api_key", "")
	v.SetDefault("store.chroma.tenant", "")
	v.SetDefault("store.chroma.database", "")
	v.SetDefault("store.pinecone.api_key", "")
	v.SetDefault("store.pinecone.cloud", "aws")
	v.SetDefault("store.pinecone.region", "us-east-1")
	v.SetDefault("store.pinecone.namespace", "")
	v.SetDefault("store.pinecone.control_url", "")

	v.SetDefault("generation.provider", "google")
	v.SetDefault("generation.model", "gemini-2.5-flash")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.temperature", 0.1)
	v.SetDefault("generation.max_tokens", 2048)
	v.SetDefault("generation.system_prompt", "")

	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.document_name", "indian_constitution")

	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.requests_per_second", 2.0)
	v.SetDefault("server.burst", 5)
}

// legacyEnv lists the plain environment names that a .env file from an
// existing deployment uses. The NYAYA_ form always wins.
var legacyEnv = map[string]string{
	"app.name":                "APP_NAME",
	"data_dir":                "DATA_DIR",
	"log.level":               "LOG_LEVEL",
	"log.file":                "LOG_FILE",
	"chunking.max_tokens":     "MAX_TOKENS",
	"embedding.model":         "EMBEDDING_MODEL",
	"embedding.api_key":       "OPENAI_API_KEY",
	"store.collection":        "COLLECTION_NAME",
	"store.batch_size":        "BATCH_SIZE",
	"store.sqlite.dir":        "CHROMA_DB_DIR",
	"store.chroma.api_key":    "CHROMA_API_KEY",
	"store.chroma.tenant":     "CHROMA_TENANT",
	"store.chroma.database":   "CHROMA_DATABASE",
	"store.pinecone.api_key":  "PINECONE_API_KEY",
	"store.pinecone.region":   "PINECONE_ENVIRONMENT",
	"generation.api_key":      "GOOGLE_API_KEY",
}

// SetupEnv binds NYAYA_-prefixed variables for every key, plus the plain
// names in legacyEnv.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range legacyEnv {
		_ = v.BindEnv(key, EnvName(key), name)
	}
}

// EnvName returns the NYAYA_ variable for a config key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// EnvNames returns every environment variable that sets key.
func EnvNames(key string) []string {
	names := []string{EnvName(key)}
	if legacy, ok := legacyEnv[key]; ok {
		names = append(names, legacy)
	}
	return names
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nyayaerr.Errorf(nyayaerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nyayaerr.Errorf(nyayaerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// Validate checks the configuration for logical errors, collecting every
// issue rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateChunking()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateGeneration()...)
	errs = append(errs, c.validateRetrieval()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func (c *Config) validateLog() []error {
	var errs []error
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, invalid("log.level", c.Log.Level, logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, invalid("log.format", c.Log.Format, logFormats))
	}
	return errs
}

func (c *Config) validateChunking() []error {
	var errs []error
	if c.Chunking.MaxTokens <= 0 {
		errs = append(errs, positive("chunking.max_tokens", c.Chunking.MaxTokens))
	}
	if c.Chunking.Encoding == "" {
		errs = append(errs, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue, "config: chunking.encoding must not be empty"))
	}
	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error
	if !slices.Contains(embeddingProviders, c.Embedding.Provider) {
		errs = append(errs, invalid("embedding.provider", c.Embedding.Provider, embeddingProviders))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue, "config: embedding.model must not be empty"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, positive("embedding.dimensions", c.Embedding.Dimensions))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, positive("embedding.batch_size", c.Embedding.BatchSize))
	}
	return errs
}

func (c *Config) validateStore() []error {
	var errs []error
	if !slices.Contains(storeBackends, c.Store.Backend) {
		errs = append(errs, invalid("store.backend", c.Store.Backend, storeBackends))
	}
	if c.Store.Collection == "" {
		errs = append(errs, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue, "config: store.collection must not be empty"))
	}
	if c.Store.BatchSize < 0 {
		errs = append(errs, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
			"config: store.batch_size must not be negative, got %d", c.Store.BatchSize))
	}
	if c.Store.BatchesPerSecond < 0 {
		errs = append(errs, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
			"config: store.batches_per_second must not be negative, got %g", c.Store.BatchesPerSecond))
	}
	if !slices.Contains(conflictPolicies, c.Store.OnConflict) {
		errs = append(errs, invalid("store.on_conflict", c.Store.OnConflict, conflictPolicies))
	}
	return errs
}

func (c *Config) validateGeneration() []error {
	var errs []error
	if !slices.Contains(generationProviders, c.Generation.Provider) {
		errs = append(errs, invalid("generation.provider", c.Generation.Provider, generationProviders))
	}
	if c.Generation.Model == "" {
		errs = append(errs, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue, "config: generation.model must not be empty"))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
			"config: generation.temperature must be between 0 and 2, got %g", c.Generation.Temperature))
	}
	if c.Generation.MaxTokens <= 0 {
		errs = append(errs, positive("generation.max_tokens", c.Generation.MaxTokens))
	}
	return errs
}

func (c *Config) validateRetrieval() []error {
	if c.Retrieval.TopK <= 0 {
		return []error{positive("retrieval.top_k", c.Retrieval.TopK)}
	}
	return nil
}

func (c *Config) validateServer() []error {
	host, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return []error{nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err)}
	}
	_ = host
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return []error{nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be between 1 and 65535, got %q", portStr)}
	}
	if c.Server.RequestsPerSecond < 0 {
		return []error{nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
			"config: server.requests_per_second must not be negative, got %g", c.Server.RequestsPerSecond)}
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst <= 0 {
		return []error{positive("server.burst", c.Server.Burst)}
	}
	return nil
}

// RequireStoreCredentials reports missing credentials for the selected
// vector store backend.
func (c *Config) RequireStoreCredentials() error {
	switch c.Store.Backend {
	case "chroma":
		var errs []error
		for key, val := range map[string]string{
			"store.chroma.api_key":  c.Store.Chroma.APIKey,
			"store.chroma.tenant":   c.Store.Chroma.Tenant,
			"store.chroma.database": c.Store.Chroma.Database,
		} {
			if err := requireValue(key, val); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			slices.SortFunc(errs, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
			return nyayaerr.Wrap(errors.Join(errs...), nyayaerr.CodeConfigCredentialMissing,
				"chroma backend is not configured")
		}
	case "pinecone":
		return requireValue("store.pinecone.api_key", c.Store.Pinecone.APIKey)
	}
	return nil
}

// RequireEmbeddingCredentials reports a missing API key for the embedding
// backend. A custom base URL may point at a keyless local server.
func (c *Config) RequireEmbeddingCredentials() error {
	if c.Embedding.BaseURL != "" {
		return nil
	}
	return requireValue("embedding.api_key", c.Embedding.APIKey)
}

// RequireGenerationCredentials reports a missing API key for the generative
// model.
func (c *Config) RequireGenerationCredentials() error {
	if c.Generation.BaseURL != "" {
		return nil
	}
	return requireValue("generation.api_key", c.Generation.APIKey)
}

// EmbeddingCacheDir resolves the cache directory, defaulting under DataDir.
func (c *Config) EmbeddingCacheDir() string {
	if c.Embedding.Cache.Dir != "" {
		return c.Embedding.Cache.Dir
	}
	return filepath.Join(c.DataDir, "embedding-cache")
}

func requireValue(key, value string) error {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return nyayaerr.New(nyayaerr.CodeConfigCredentialMissing,
		fmt.Sprintf("config: %s is not set; set %s in the environment or .env, or store it with `nyaya secret set` and reference it as keyring://nyaya/<name>",
			key, strings.Join(EnvNames(key), " or ")),
		nyayaerr.Field("key", key))
}

func invalid(key, got string, allowed []string) error {
	return nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
		"config: %s must be one of [%s], got %q", key, strings.Join(allowed, ", "), got)
}

func positive(key string, got int) error {
	return nyayaerr.Errorf(nyayaerr.CodeConfigValidateInvalidValue,
		"config: %s must be greater than 0, got %d", key, got)
}
