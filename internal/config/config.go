package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied by the accessor methods below.
const (
	DefaultUIPort             = 8080
	DefaultStoryPath          = "story.json"
	DefaultEntryID            = "BEGIN YOUR ADVENTURE"
	DefaultStartName          = "START"
	DefaultSkin               = "western"
	DefaultSampleRate         = 44100
	DefaultFetchTimeout       = 30 * time.Second
	DefaultPreloadConcurrency = 8
	DefaultComicPanels        = 5
	DefaultExportDir          = "exports"
	DefaultTopicPrefix        = "storyengine"
)

// Audio backends.
const (
	BackendEbiten = "ebiten"
	BackendNull   = "null"
)

type EngineConfig struct {
	Version int `yaml:"version"`
	Engine  struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
		Skin string `yaml:"skin"`
	} `yaml:"engine"`
	Story struct {
		Path      string `yaml:"path"`
		EntryID   string `yaml:"entry_id"`
		StartName string `yaml:"start_name"`
	} `yaml:"story"`
	Media struct {
		BaseDir            string        `yaml:"base_dir"`
		FetchTimeout       time.Duration `yaml:"fetch_timeout"`
		PreloadConcurrency int           `yaml:"preload_concurrency"`
	} `yaml:"media"`
	Audio struct {
		Backend    string `yaml:"backend"`
		SampleRate int    `yaml:"sample_rate"`
	} `yaml:"audio"`
	Export struct {
		Dir         string `yaml:"dir"`
		ComicPanels int    `yaml:"comic_panels"`
	} `yaml:"export"`
	Network struct {
		UIPort   int `yaml:"ui_port"`
		MQTTPort int `yaml:"mqtt_port"`
		DBPort   int `yaml:"db_port"`
	} `yaml:"network"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Postgres struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"postgres"`
}

// UIPort returns the configured UI port, defaulting to 8080 if not set.
func (c *EngineConfig) UIPort() int {
	if c.Network.UIPort == 0 {
		return DefaultUIPort
	}
	return c.Network.UIPort
}

// EngineID returns the engine id, falling back to the hostname.
func (c *EngineConfig) EngineID() string {
	if c.Engine.ID != "" {
		return c.Engine.ID
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "storyengine"
}

func (c *EngineConfig) Skin() string {
	if c.Engine.Skin == "" {
		return DefaultSkin
	}
	return c.Engine.Skin
}

// StoryPath returns the story document location. STORYENGINE_STORY overrides the file.
func (c *EngineConfig) StoryPath() string {
	if v := os.Getenv("STORYENGINE_STORY"); v != "" {
		return v
	}
	if c.Story.Path == "" {
		return DefaultStoryPath
	}
	return c.Story.Path
}

func (c *EngineConfig) EntryID() string {
	if c.Story.EntryID == "" {
		return DefaultEntryID
	}
	return c.Story.EntryID
}

func (c *EngineConfig) StartName() string {
	if c.Story.StartName == "" {
		return DefaultStartName
	}
	return c.Story.StartName
}

func (c *EngineConfig) FetchTimeout() time.Duration {
	if c.Media.FetchTimeout <= 0 {
		return DefaultFetchTimeout
	}
	return c.Media.FetchTimeout
}

func (c *EngineConfig) PreloadConcurrency() int {
	if c.Media.PreloadConcurrency <= 0 {
		return DefaultPreloadConcurrency
	}
	return c.Media.PreloadConcurrency
}

func (c *EngineConfig) SampleRate() int {
	if c.Audio.SampleRate <= 0 {
		return DefaultSampleRate
	}
	return c.Audio.SampleRate
}

// AudioBackend returns "ebiten" or "null". STORYENGINE_AUDIO overrides the file.
func (c *EngineConfig) AudioBackend() string {
	if v := os.Getenv("STORYENGINE_AUDIO"); v != "" {
		return v
	}
	if c.Audio.Backend == "" {
		return BackendEbiten
	}
	return c.Audio.Backend
}

func (c *EngineConfig) ExportDir() string {
	if c.Export.Dir == "" {
		return DefaultExportDir
	}
	return c.Export.Dir
}

func (c *EngineConfig) ComicPanels() int {
	if c.Export.ComicPanels <= 0 {
		return DefaultComicPanels
	}
	return c.Export.ComicPanels
}

func (c *EngineConfig) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return c.MQTT.TopicPrefix
}

func (c *EngineConfig) validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported engine.yaml version: %d", c.Version)
	}
	switch c.Audio.Backend {
	case "", BackendEbiten, BackendNull:
	default:
		return fmt.Errorf("unknown audio backend: %s", c.Audio.Backend)
	}
	return nil
}

func LoadEngineConfig(path string) (*EngineConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseEngineConfig(b)
}

func ParseEngineConfig(b []byte) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
