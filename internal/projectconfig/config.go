// Package projectconfig provides the ProjectConfig struct and loader for
// .greenbench.yaml configuration files and the environment overlay.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up from the working directory.
const FileName = ".greenbench.yaml"

// Default values for configuration. These are the single source of
// truth; New() references them and no other code should duplicate them.
const (
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 9009
	DefaultPublicURL = "http://green-agent:9009/a2a/rpc"

	DefaultMockPort = 8000
	DefaultMockURL  = "http://mock-comtrade:8000"

	DefaultPurpleOutputRoot = "/workspace/purple_output"
	DefaultStagingDir       = "/tmp/purple_output_cache"
	DefaultResultsDir       = "results/"

	DefaultScoreTimeout = 8.0
	DefaultStageTimeout = 8.0

	DefaultLogLevel  = "INFO"
	DefaultLogFormat = "text"

	DefaultWorkers = 4
)

// ServerConfig holds green agent server settings.
type ServerConfig struct {
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
	PublicURL string `yaml:"public_url,omitempty"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// MockConfig holds mock API settings.
type MockConfig struct {
	Port int    `yaml:"port,omitempty"`
	URL  string `yaml:"url,omitempty"`
}

// PathsConfig holds directory paths.
type PathsConfig struct {
	PurpleOutputRoot string `yaml:"purple_output_root,omitempty"`
	StagingDir       string `yaml:"staging_dir,omitempty"`
	ResultsDir       string `yaml:"results_dir,omitempty"`
	// FixturesDir, when set, serves ground truth from exported files
	// instead of generating it.
	FixturesDir string `yaml:"fixtures_dir,omitempty"`
}

// TimeoutsConfig holds timeouts in seconds.
type TimeoutsConfig struct {
	Score float64 `yaml:"score,omitempty"`
	Stage float64 `yaml:"stage,omitempty"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// ScoringConfig holds batch scoring settings.
type ScoringConfig struct {
	Workers int `yaml:"workers,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .greenbench.yaml.
type ProjectConfig struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Mock     MockConfig     `yaml:"mock,omitempty"`
	Paths    PathsConfig    `yaml:"paths,omitempty"`
	Timeouts TimeoutsConfig `yaml:"timeouts,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Scoring  ScoringConfig  `yaml:"scoring,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Server: ServerConfig{
			Host:      DefaultHost,
			Port:      DefaultPort,
			PublicURL: DefaultPublicURL,
		},
		Mock: MockConfig{
			Port: DefaultMockPort,
			URL:  DefaultMockURL,
		},
		Paths: PathsConfig{
			PurpleOutputRoot: DefaultPurpleOutputRoot,
			StagingDir:       DefaultStagingDir,
			ResultsDir:       DefaultResultsDir,
		},
		Timeouts: TimeoutsConfig{
			Score: DefaultScoreTimeout,
			Stage: DefaultStageTimeout,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Scoring: ScoringConfig{
			Workers: DefaultWorkers,
		},
	}
}

// ScoreTimeout returns the scoring deadline.
func (c *ProjectConfig) ScoreTimeout() time.Duration {
	return seconds(c.Timeouts.Score)
}

// StageTimeout returns the staging deadline.
func (c *ProjectConfig) StageTimeout() time.Duration {
	return seconds(c.Timeouts.Stage)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Load finds .greenbench.yaml by walking up from startDir (max 10 levels),
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
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	// Merge file values onto defaults.
	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// findConfigFile walks up from dir looking for .greenbench.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found. Propagates real I/O
// errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) ([]byte, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
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
	// Server
	if src.Server.Host != "" {
		dst.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.PublicURL != "" {
		dst.Server.PublicURL = src.Server.PublicURL
	}
	if len(src.Server.CORSOrigins) > 0 {
		dst.Server.CORSOrigins = src.Server.CORSOrigins
	}

	// Mock
	if src.Mock.Port != 0 {
		dst.Mock.Port = src.Mock.Port
	}
	if src.Mock.URL != "" {
		dst.Mock.URL = src.Mock.URL
	}

	// Paths
	if src.Paths.PurpleOutputRoot != "" {
		dst.Paths.PurpleOutputRoot = src.Paths.PurpleOutputRoot
	}
	if src.Paths.StagingDir != "" {
		dst.Paths.StagingDir = src.Paths.StagingDir
	}
	if src.Paths.ResultsDir != "" {
		dst.Paths.ResultsDir = src.Paths.ResultsDir
	}
	if src.Paths.FixturesDir != "" {
		dst.Paths.FixturesDir = src.Paths.FixturesDir
	}

	// Timeouts
	if src.Timeouts.Score != 0 {
		dst.Timeouts.Score = src.Timeouts.Score
	}
	if src.Timeouts.Stage != 0 {
		dst.Timeouts.Stage = src.Timeouts.Stage
	}

	// Logging
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}

	// Scoring
	if src.Scoring.Workers != 0 {
		dst.Scoring.Workers = src.Scoring.Workers
	}
}

// envBindings maps environment variables to config keys.
var envBindings = []struct {
	env     string
	section string
	key     string
}{
	{"HOST", "server", "host"},
	{"PORT", "server", "port"},
	{"PUBLIC_URL", "server", "public_url"},
	{"CORS_ORIGINS", "server", "cors_origins"},
	{"MOCK_PORT", "mock", "port"},
	{"MOCK_URL", "mock", "url"},
	{"PURPLE_OUTPUT_ROOT", "paths", "purple_output_root"},
	{"STAGING_DIR", "paths", "staging_dir"},
	{"RESULTS_DIR", "paths", "results_dir"},
	{"FIXTURES_DIR", "paths", "fixtures_dir"},
	{"SCORE_TIMEOUT", "timeouts", "score"},
	{"STAGE_TIMEOUT", "timeouts", "stage"},
	{"LOG_LEVEL", "logging", "level"},
	{"LOG_FORMAT", "logging", "format"},
	{"SCORE_WORKERS", "scoring", "workers"},
}

// ApplyEnv overlays set environment variables onto cfg. lookup is usually
// os.LookupEnv. Empty values are ignored.
func ApplyEnv(cfg *ProjectConfig, lookup func(string) (string, bool)) error {
	overlay := map[string]any{}
	for _, b := range envBindings {
		v, ok := lookup(b.env)
		if !ok || v == "" {
			continue
		}
		section, _ := overlay[b.section].(map[string]any)
		if section == nil {
			section = map[string]any{}
			overlay[b.section] = section
		}
		section[b.key] = v
	}
	if len(overlay) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(overlay); err != nil {
		return fmt.Errorf("applying environment: %w", err)
	}
	return nil
}
