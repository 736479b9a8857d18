package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/makereader/internal/source"
)

const (
	DefaultConfigDir    = ".makereader"
	DefaultConfigFile   = "config.yaml"
	DefaultEnvFile      = ".env"
	DefaultFormat       = "rest"
	DefaultTimeout      = 5 * time.Second
	DefaultUserAgent    = "makereader/1.0"
	DefaultRetries      = 1
	DefaultCacheBackend = "memory"
	DefaultCachePath    = ".makereader/cache.db"
	DefaultCacheTTL     = 10 * time.Minute
	DefaultCacheSize    = 256
	DefaultMaxPosts     = 3
	DefaultOutputFormat = "terminal"

	// DirEnv overrides the default config dir.
	DirEnv = "MAKEREADER_CONFIG_DIR"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// SourceList is an ordered name: id mapping. A nil list means the key was
// absent; an empty non-nil list disables every source.
type SourceList []source.Source

func (l *SourceList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: sources must be a mapping of name to id", value.Line)
	}
	out := make(SourceList, 0, len(value.Content)/2)
	seen := make(map[string]bool, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: source entries must be scalar name: id pairs", k.Line)
		}
		name := strings.TrimSpace(k.Value)
		if seen[name] {
			return fmt.Errorf("line %d: duplicate source %q", k.Line, name)
		}
		seen[name] = true
		out = append(out, source.Source{Name: name, ID: strings.TrimSpace(v.Value)})
	}
	*l = out
	return nil
}

func (l SourceList) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range l {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: s.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s.ID},
		)
	}
	return node, nil
}

type Config struct {
	Sources SourceList   `yaml:"sources,omitempty"`
	API     APIConfig    `yaml:"api"`
	Cache   CacheConfig  `yaml:"cache"`
	Output  OutputConfig `yaml:"output"`
}

type APIConfig struct {
	Format           string   `yaml:"format"`
	EndpointTemplate string   `yaml:"endpoint_template"`
	Timeout          Duration `yaml:"timeout"`
	UserAgent        string   `yaml:"user_agent"`
	UserAgentEnv     string   `yaml:"user_agent_env,omitempty"`
	RateLimit        Duration `yaml:"rate_limit"`
	Retries          int      `yaml:"retries"`
	Concurrency      int      `yaml:"concurrency"`
}

type CacheConfig struct {
	Backend string   `yaml:"backend"`
	Path    string   `yaml:"path"`
	TTL     Duration `yaml:"ttl"` // negative disables caching
	Size    int      `yaml:"size"`
}

type OutputConfig struct {
	MaxPosts int    `yaml:"max_posts"`
	Format   string `yaml:"format"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Dir resolves the config dir: the flag value, then $MAKEREADER_CONFIG_DIR,
// then DefaultConfigDir.
func Dir(flag string) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	if env := strings.TrimSpace(os.Getenv(DirEnv)); env != "" {
		return env
	}
	return DefaultConfigDir
}

// LoadEnv reads each dotenv file into the process environment. Variables
// already set win; missing files are ignored.
func LoadEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
// A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, DefaultConfigFile)
}

// RegistryOptions returns the registry options for this config. Configured
// sources replace the defaults in file order; an empty list disables them all.
func (c *Config) RegistryOptions() []source.Option {
	opts := []source.Option{source.WithEndpoint(source.TemplateEndpoint(c.API.EndpointTemplate))}
	if c.Sources != nil {
		opts = append(opts, source.WithSources(c.Sources))
	}
	return opts
}

func applyDefaults(cfg *Config) {
	if cfg.API.Format == "" {
		cfg.API.Format = DefaultFormat
	}
	if cfg.API.EndpointTemplate == "" {
		cfg.API.EndpointTemplate = source.DefaultTemplate
		if cfg.API.Format == "feed" {
			cfg.API.EndpointTemplate = source.DefaultFeedTemplate
		}
	}
	if cfg.API.Timeout.Duration == 0 {
		cfg.API.Timeout.Duration = DefaultTimeout
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = DefaultUserAgent
	}
	if cfg.API.Retries == 0 {
		cfg.API.Retries = DefaultRetries
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}
	if cfg.Cache.TTL.Duration == 0 {
		cfg.Cache.TTL.Duration = DefaultCacheTTL
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = DefaultCacheSize
	}
	if cfg.Output.MaxPosts == 0 {
		cfg.Output.MaxPosts = DefaultMaxPosts
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = DefaultOutputFormat
	}
}

func resolveEnv(cfg *Config) {
	if cfg.API.UserAgentEnv == "" {
		return
	}
	if ua := strings.TrimSpace(os.Getenv(cfg.API.UserAgentEnv)); ua != "" {
		cfg.API.UserAgent = ua
	}
}

func validate(cfg *Config) error {
	for _, s := range cfg.Sources {
		if s.Name == "" {
			return errors.New("sources: empty source name")
		}
		if s.ID == "" {
			return fmt.Errorf("sources.%s: id is required", s.Name)
		}
	}

	switch cfg.API.Format {
	case "rest", "feed":
		// valid
	default:
		return fmt.Errorf("api.format: unknown format %q (want rest or feed)", cfg.API.Format)
	}
	if !strings.Contains(cfg.API.EndpointTemplate, "{id}") && !strings.Contains(cfg.API.EndpointTemplate, "{name}") {
		return fmt.Errorf("api.endpoint_template: %q has no {id} or {name} placeholder", cfg.API.EndpointTemplate)
	}
	if cfg.API.Timeout.Duration < 0 {
		return errors.New("api.timeout: must be positive")
	}
	if cfg.API.RateLimit.Duration < 0 {
		return errors.New("api.rate_limit: must not be negative")
	}
	if cfg.API.Retries < 1 {
		return fmt.Errorf("api.retries: %d, want at least 1", cfg.API.Retries)
	}
	if cfg.API.Concurrency < 0 {
		return errors.New("api.concurrency: must not be negative")
	}

	switch cfg.Cache.Backend {
	case "memory", "sqlite":
		// valid
	default:
		return fmt.Errorf("cache.backend: unknown backend %q (want memory or sqlite)", cfg.Cache.Backend)
	}
	if cfg.Cache.Size < 1 {
		return fmt.Errorf("cache.size: %d, want at least 1", cfg.Cache.Size)
	}

	if cfg.Output.MaxPosts < 1 {
		return fmt.Errorf("output.max_posts: %d, want at least 1", cfg.Output.MaxPosts)
	}
	if err := ValidateFormat(cfg.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}

	return nil
}

// ValidateFormat reports whether name is a known output format.
func ValidateFormat(name string) error {
	switch name {
	case "terminal", "json", "markdown":
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal, json, or markdown)", name)
	}
}
