package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)

	assert.Equal(t, 250, cfg.Chunk.ChunkSize)
	assert.Equal(t, 50, cfg.Chunk.ChunkOverlap)

	assert.Equal(t, "text", cfg.Embed.Mode)
	assert.Equal(t, 32, cfg.Embed.BatchSize)
	assert.Equal(t, 512, cfg.Embed.MaxTokens)
	assert.Equal(t, 2048, cfg.Embed.CacheSize)
	assert.Empty(t, cfg.Embed.RerankEndpoint)

	assert.Equal(t, 16, cfg.Index.M)
	assert.Equal(t, 200, cfg.Index.EfConstruction)
	assert.Equal(t, 64, cfg.Index.EfSearch)
	assert.Equal(t, 100, cfg.Index.Seed)

	assert.Equal(t, PathStrategyRelative, cfg.Paths.Strategy)
	assert.NotEmpty(t, cfg.Paths.StorePath)
	assert.NotEmpty(t, cfg.Paths.IndexPath)
	assert.NotEmpty(t, cfg.Paths.ContentDir)

	assert.Equal(t, 10, cfg.Search.DefaultTopK)
	assert.Equal(t, 3, cfg.Search.RerankCandidateMultiplier)
	assert.Equal(t, 30, cfg.Search.MinRerankCandidates)

	assert.Equal(t, "info", cfg.Log.Level)
}

func TestConfig_VersionDefaultsToOne(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.Version)
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 250, cfg.Chunk.ChunkSize)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
chunk:
  chunk_size: 300
  chunk_overlap: 40
embed:
  mode: multimodal
  model: clip-vit-b32
search:
  default_top_k: 25
`
	err := os.WriteFile(filepath.Join(tmpDir, "ragcore.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Chunk.ChunkSize)
	assert.Equal(t, 40, cfg.Chunk.ChunkOverlap)
	assert.Equal(t, "multimodal", cfg.Embed.Mode)
	assert.Equal(t, "clip-vit-b32", cfg.Embed.Model)
	assert.Equal(t, 25, cfg.Search.DefaultTopK)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
embed:
  model: custom-model
`
	err := os.WriteFile(filepath.Join(tmpDir, "ragcore.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.Embed.Model)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	tmpDir := t.TempDir()
	yamlContent := "version: 1\nembed:\n  model: from-yaml\n"
	ymlContent := "version: 1\nembed:\n  model: from-yml\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ragcore.yaml"), []byte(yamlContent), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ragcore.yml"), []byte(ymlContent), 0o644))

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Embed.Model)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := "version: 1\nchunk:\n  chunk_size: [invalid yaml syntax\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ragcore.yaml"), []byte(invalidContent), 0o644))

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := "version: 1\nchunk:\n  chunk_size: \"not-a-number\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ragcore.yaml"), []byte(invalidContent), 0o644))

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_EnvVarOverridesModel(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("RAGCORE_EMBED_MODEL", "all-minilm")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "all-minilm", cfg.Embed.Model)
}

func TestLoad_EnvVarOverridesLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("RAGCORE_LOG_LEVEL", "debug")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvVarOverridesChunkSize(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := "version: 1\nchunk:\n  chunk_size: 300\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ragcore.yaml"), []byte(configContent), 0o644))
	t.Setenv("RAGCORE_CHUNK_SIZE", "180")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 180, cfg.Chunk.ChunkSize)
}

func TestLoad_EnvVarOverridesPathStrategy(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("RAGCORE_PATH_STRATEGY", "absolute")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, PathStrategyAbsolute, cfg.Paths.Strategy)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("RAGCORE_EMBED_MODEL", "")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.Embed.Model)
}

func TestValidate_RejectsOverlapExceedingHalfChunkSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunk.ChunkSize = 100
	cfg.Chunk.ChunkOverlap = 60

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestValidate_RejectsUnknownEmbedMode(t *testing.T) {
	cfg := NewConfig()
	cfg.Embed.Mode = "audio"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed.mode")
}

func TestValidate_RejectsUnknownPathStrategy(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.Strategy = "weird"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "paths.strategy")
}

func TestResolveSourcePath_AbsoluteStrategy(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.Strategy = PathStrategyAbsolute
	cfg.Paths.WorkingDir = t.TempDir()

	target := filepath.Join(cfg.Paths.WorkingDir, "docs", "a.md")
	resolved, err := cfg.ResolveSourcePath(target)

	require.NoError(t, err)
	assert.Equal(t, target, resolved)
}

func TestResolveSourcePath_RelativeStrategy(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.Strategy = PathStrategyRelative
	cfg.Paths.WorkingDir = t.TempDir()

	target := filepath.Join(cfg.Paths.WorkingDir, "docs", "a.md")
	resolved, err := cfg.ResolveSourcePath(target)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join("docs", "a.md"), resolved)
}

func TestAbsoluteSourcePath_RoundTripsRelativeStrategy(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.Strategy = PathStrategyRelative
	cfg.Paths.WorkingDir = t.TempDir()

	target := filepath.Join(cfg.Paths.WorkingDir, "docs", "a.md")
	resolved, err := cfg.ResolveSourcePath(target)
	require.NoError(t, err)

	assert.Equal(t, target, cfg.AbsoluteSourcePath(resolved))
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	cfg := NewConfig()
	cfg.Embed.Model = "custom-model"

	path := filepath.Join(t.TempDir(), "ragcore.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, "custom-model", loaded.Embed.Model)
}
