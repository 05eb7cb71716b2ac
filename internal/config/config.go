// Package config reads and writes the moltd configuration file (TOML) and
// applies environment overrides on top.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"moltd/internal/moltbook"
)

// Config is the full moltd configuration.
type Config struct {
	Moltbook   MoltbookConfig   `toml:"moltbook"`
	Project    ProjectConfig    `toml:"project"`
	Posting    PostingConfig    `toml:"posting"`
	State      StateConfig      `toml:"state"`
	Journal    JournalConfig    `toml:"journal"`
	Archive    ArchiveConfig    `toml:"archive"`
	Encryption EncryptionConfig `toml:"encryption"`
	LogDir     string           `toml:"log_dir"`
}

// MoltbookConfig holds API connection settings.
type MoltbookConfig struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Submolt  string `toml:"submolt"`
	TimeoutS int    `toml:"timeout_s"`
	Retries  int    `toml:"retries"`
}

// ProjectConfig describes the watched project.
type ProjectConfig struct {
	Dir        string   `toml:"dir"`
	Name       string   `toml:"name"`
	Ignore     []string `toml:"ignore"`
	MaxCommits int      `toml:"max_commits"`
	MaxFiles   int      `toml:"max_files"`
}

// PostingConfig controls the posting pipeline.
type PostingConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalS       int  `toml:"interval_s"`
	Intro           bool `toml:"intro"`
	MaxContentChars int  `toml:"max_content_chars"`
	CooldownMinutes int  `toml:"cooldown_minutes"`
}

// StateConfig locates the persisted daemon state.
type StateConfig struct {
	File string `toml:"file"`
}

// JournalConfig selects the operation journal backend.
// The Type field determines which other fields are relevant.
type JournalConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArchiveConfig selects the off-host state archive backend.
// The Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "none", "filesystem", "s3", or "memory"

	// Filesystem-specific fields (only used when Type == "filesystem")
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// EncryptionConfig selects archive payload encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age", or "test"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// NewConfig returns a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		Moltbook: MoltbookConfig{
			BaseURL:  moltbook.CanonicalBase,
			TimeoutS: 30,
			Retries:  2,
		},
		Posting: PostingConfig{
			IntervalS:       1800,
			MaxContentChars: 4000,
			CooldownMinutes: 30,
		},
		State:   StateConfig{File: filepath.Join(baseDir, "state.json")},
		Journal: JournalConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "journal")},
		Archive: ArchiveConfig{Type: "none"},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "moltd.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "moltd.key"),
		},
		LogDir: filepath.Join(baseDir, "log"),
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path, then applies
// environment overrides and normalization.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the config. Environment
// always wins over the file, so secrets can stay out of it entirely.
func (c *Config) ApplyEnv() {
	setString(&c.Moltbook.APIKey, "MOLTBOOK_API_KEY")
	setString(&c.Moltbook.BaseURL, "MOLTBOOK_API_BASE")
	setString(&c.Moltbook.Submolt, "MOLTBOOK_SUBMOLT")
	setInt(&c.Moltbook.TimeoutS, "MOLTBOOK_TIMEOUT_S")
	setInt(&c.Moltbook.Retries, "MOLTBOOK_RETRIES")
	setString(&c.Project.Dir, "PROJECT_DIR")
	setInt(&c.Project.MaxCommits, "MAX_COMMITS")
	setInt(&c.Project.MaxFiles, "MAX_FILES")
	setInt(&c.Posting.MaxContentChars, "MAX_CONTENT_CHARS")
	setInt(&c.Posting.IntervalS, "INTERVAL")
	setString(&c.State.File, "STATE_FILE")
}

// Normalize fills derived defaults and validates what must hold before the
// daemon can run. The API base URL is rewritten to the canonical www host;
// the API silently drops credentials on the redirect from the bare apex.
func (c *Config) Normalize() error {
	c.Moltbook.BaseURL = moltbook.ResolveBaseURL(c.Moltbook.BaseURL)
	u, err := url.Parse(c.Moltbook.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", c.Moltbook.BaseURL)
	}

	if c.Moltbook.TimeoutS <= 0 {
		c.Moltbook.TimeoutS = 30
	}
	if c.Moltbook.Retries < 0 {
		c.Moltbook.Retries = 0
	}
	if c.Posting.IntervalS <= 0 {
		c.Posting.IntervalS = 1800
	}
	if c.Posting.MaxContentChars <= 0 {
		c.Posting.MaxContentChars = 4000
	}
	if c.Posting.CooldownMinutes <= 0 {
		c.Posting.CooldownMinutes = 30
	}
	if c.Project.Name == "" && c.Project.Dir != "" {
		c.Project.Name = filepath.Base(filepath.Clean(c.Project.Dir))
	}
	if c.Journal.Type == "" {
		c.Journal.Type = "memory"
	}
	if c.Archive.Type == "" {
		c.Archive.Type = "none"
	}
	if c.Encryption.Type == "" {
		c.Encryption.Type = "none"
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}
