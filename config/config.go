// Package config decodes the startup configuration surface for the
// ephemeral image host: accepted upload types and size cap, blob-store
// adapter selection, and metadata-index adapter selection.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the decoded form of the TOML configuration file.
type Config struct {
	Upload UploadConfig `toml:"upload"`
	Blob   BlobConfig   `toml:"blob"`
	Index  IndexConfig  `toml:"index"`
}

// UploadConfig configures the upload coordinator.
type UploadConfig struct {
	AcceptedFileTypes    string `toml:"accepted_file_types"`
	MaxUploadBytes       int    `toml:"max_upload_bytes"`
	URLTTLMs             int    `toml:"url_ttl_ms"`
	ClockSkewToleranceMs int    `toml:"clock_skew_tolerance_ms"`
}

// BlobConfig selects and configures the blob store adapter.
type BlobConfig struct {
	// Driver is "local", "minio", or "local,minio" (dual, primary first).
	Driver        string `toml:"driver"`
	LocalDir      string `toml:"local_dir"`
	MinioEndpoint string `toml:"minio_endpoint"`
	MinioBucket   string `toml:"minio_bucket"`
}

// IndexConfig selects and configures the metadata index adapter.
type IndexConfig struct {
	// Driver is "redis" or "mem".
	Driver      string `toml:"driver"`
	RedisAddr   string `toml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix"`
}

// shorthandMIME maps the shorthand tokens accepted in
// accepted_file_types to full MIME types. This is a closed table:
// unknown shorthands fail at Load rather than being guessed at
// (e.g. as "image/<shorthand>"), since a silently-wrong accepted-type
// set would widen or narrow upload validation in a way nobody asked for.
var shorthandMIME = map[string]string{
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
}

// Defaults returns the baked-in operational defaults: 5 MiB upload cap,
// 60s URL TTL, 5s clock-skew tolerance, and the four accepted image types.
func Defaults() Config {
	return Config{
		Upload: UploadConfig{
			AcceptedFileTypes:    "jpeg,jpg,png,webp",
			MaxUploadBytes:       5 * 1024 * 1024,
			URLTTLMs:             60000,
			ClockSkewToleranceMs: 5000,
		},
		Blob: BlobConfig{
			Driver:   "local",
			LocalDir: "/var/lib/ephimg/blobs",
		},
		Index: IndexConfig{
			Driver:      "mem",
			RedisPrefix: "ephimg:",
		},
	}
}

// Load decodes the TOML file at path on top of Defaults, so a field the
// file omits keeps its default rather than zeroing out.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.AcceptedMIMETypes(); err != nil {
		return err
	}
	switch c.Blob.Driver {
	case "local", "minio", "local,minio":
	default:
		return fmt.Errorf("config: unrecognized blob.driver %q", c.Blob.Driver)
	}
	switch c.Index.Driver {
	case "redis", "mem":
	default:
		return fmt.Errorf("config: unrecognized index.driver %q", c.Index.Driver)
	}
	return nil
}

// AcceptedMIMETypes expands AcceptedFileTypes into the full MIME-type
// list the Upload Coordinator accepts. An unrecognized shorthand is an
// error, not a guess.
func (c *Config) AcceptedMIMETypes() ([]string, error) {
	parts := strings.Split(c.Upload.AcceptedFileTypes, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		mime, ok := shorthandMIME[p]
		if !ok {
			return nil, fmt.Errorf("config: unrecognized accepted_file_types entry %q", p)
		}
		if !seen[mime] {
			seen[mime] = true
			out = append(out, mime)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config: accepted_file_types must name at least one type")
	}
	return out, nil
}

// URLTTL returns URLTTLMs as a time.Duration.
func (c *Config) URLTTL() time.Duration {
	return time.Duration(c.Upload.URLTTLMs) * time.Millisecond
}

// ClockSkewTolerance returns ClockSkewToleranceMs as a time.Duration.
func (c *Config) ClockSkewTolerance() time.Duration {
	return time.Duration(c.Upload.ClockSkewToleranceMs) * time.Millisecond
}
