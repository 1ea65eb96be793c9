package config

import "time"

// SourceConfig names one documentation site to index. Pages are discovered
// through the site's sitemap.xml.
type SourceConfig struct {
	// Name keys the source in the documents table (e.g. "godot").
	Name string `mapstructure:"name" json:"name"`
	// SitemapURL is the absolute URL of the site's sitemap.xml.
	SitemapURL string `mapstructure:"sitemap_url" json:"sitemap_url"`
}

// IngestConfig controls the documentation crawler and splitter.
type IngestConfig struct {
	// Sources lists the documentation sites to index.
	Sources []SourceConfig `mapstructure:"sources" json:"sources"`

	// Parallelism is the number of concurrent page fetches per source.
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`

	// DelayMs is the politeness delay between requests to one host.
	DelayMs int `mapstructure:"delay_ms" json:"delay_ms"`

	// TimeoutMs is the per-request timeout.
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`

	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `mapstructure:"chunk_size" json:"chunk_size"`

	// ChunkOverlap is the number of characters shared between adjacent chunks.
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
}

// Delay returns the politeness delay as a duration.
func (c IngestConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// Timeout returns the per-request timeout as a duration.
func (c IngestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// defaultIngestSources returns the built-in documentation sites in the shape
// viper unmarshals into []SourceConfig.
func defaultIngestSources() []map[string]any {
	return []map[string]any{
		{"name": "godot", "sitemap_url": "https://docs.godotengine.org/en/stable/sitemap.xml"},
		{"name": "terrain3d", "sitemap_url": "https://terrain3d.readthedocs.io/sitemap.xml"},
		{"name": "voxeltools", "sitemap_url": "https://voxel-tools.readthedocs.io/sitemap.xml"},
	}
}
