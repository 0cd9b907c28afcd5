// Package projectconfig provides the ProjectConfig struct and loader for
// .traceview.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default values for project configuration. These are the single source of
// truth — New() references them and no other code should duplicate them.
const (
	DefaultServerPort = 8080

	DefaultStorageBackend = "file"
	DefaultDataDir        = ".traceview/sessions"
	DefaultDynamoTable    = "traceview-chat-history"
	DefaultAWSRegion      = "us-east-1"

	DefaultImageURLTTLSeconds = 900
	DefaultImageBucketRegion  = DefaultAWSRegion
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// StorageConfig selects and configures the transcript store.
type StorageConfig struct {
	// Backend is "file" or "dynamo".
	Backend string `yaml:"backend,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
	Table   string `yaml:"table,omitempty"`
	Region  string `yaml:"region,omitempty"`
}

// RenderConfig holds presentation settings.
type RenderConfig struct {
	// ImageURLTTL is how long presigned image URLs stay valid, in seconds.
	ImageURLTTL  int    `yaml:"image_url_ttl,omitempty"`
	ImageRegion  string `yaml:"image_region,omitempty"`
	SignImageURL *bool  `yaml:"sign_image_urls,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .traceview.yaml.
type ProjectConfig struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Storage StorageConfig `yaml:"storage,omitempty"`
	Render  RenderConfig  `yaml:"render,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Server: ServerConfig{
			Port: DefaultServerPort,
		},
		Storage: StorageConfig{
			Backend: DefaultStorageBackend,
			Dir:     DefaultDataDir,
			Table:   DefaultDynamoTable,
			Region:  DefaultAWSRegion,
		},
		Render: RenderConfig{
			ImageURLTTL:  DefaultImageURLTTLSeconds,
			ImageRegion:  DefaultImageBucketRegion,
			SignImageURL: boolPtr(false),
		},
	}
}

// Load finds .traceview.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading .traceview.yaml: %w", err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing .traceview.yaml: %w", err)
	}

	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// findConfigFile walks up from dir looking for .traceview.yaml (max 10
// levels). Returns os.ErrNotExist if no config file is found. Propagates real
// I/O errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, ".traceview.yaml")
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.AllowedOrigins != nil {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}

	if src.Storage.Backend != "" {
		dst.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.Dir != "" {
		dst.Storage.Dir = src.Storage.Dir
	}
	if src.Storage.Table != "" {
		dst.Storage.Table = src.Storage.Table
	}
	if src.Storage.Region != "" {
		dst.Storage.Region = src.Storage.Region
	}

	if src.Render.ImageURLTTL != 0 {
		dst.Render.ImageURLTTL = src.Render.ImageURLTTL
	}
	if src.Render.ImageRegion != "" {
		dst.Render.ImageRegion = src.Render.ImageRegion
	}
	if src.Render.SignImageURL != nil {
		dst.Render.SignImageURL = src.Render.SignImageURL
	}
}

func boolPtr(b bool) *bool {
	return &b
}
