package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/sceneview/internal/display"
	"github.com/banshee-data/sceneview/internal/geom"
)

// DefaultConfigPath is the canonical display defaults file, relative to
// the repository root.
const DefaultConfigPath = "config/display.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// DisplayConfig is the persisted form of a planning scene display's
// options. Omitted fields fall back to the stock display defaults, so
// partial configs are safe.
type DisplayConfig struct {
	RobotDescription  *string     `json:"robot_description,omitempty"`
	SceneTopic        *string     `json:"scene_topic,omitempty"`
	SceneVisible      *bool       `json:"scene_visible,omitempty"`
	SceneAlpha        *float64    `json:"scene_alpha,omitempty"`
	SceneColor        *geom.Color `json:"scene_color,omitempty"`
	RobotVisible      *bool       `json:"robot_visible,omitempty"`
	RobotAlpha        *float64    `json:"robot_alpha,omitempty"`
	AttachedBodyColor *geom.Color `json:"attached_body_color,omitempty"`
	RenderInterval    *string     `json:"render_interval,omitempty"` // duration string like "200ms"

	// Host options
	FixedFrame *string `json:"fixed_frame,omitempty"`
	TickPeriod *string `json:"tick_period,omitempty"` // duration string like "33ms"

	// Link colour overrides restored on load, keyed by link name
	LinkColors map[string]geom.Color `json:"link_colors,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrColor(v geom.Color) *geom.Color {
	return &v
}

// DefaultDisplayConfig returns a config with every field set to the
// display defaults.
func DefaultDisplayConfig() *DisplayConfig {
	return FromSettings(display.DefaultSettings())
}

// FromSettings captures display settings as a config.
func FromSettings(s display.Settings) *DisplayConfig {
	return &DisplayConfig{
		RobotDescription:  ptrString(s.RobotDescription),
		SceneTopic:        ptrString(s.SceneTopic),
		SceneVisible:      ptrBool(s.SceneVisible),
		SceneAlpha:        ptrFloat64(s.SceneAlpha),
		SceneColor:        ptrColor(s.SceneColor),
		RobotVisible:      ptrBool(s.RobotVisible),
		RobotAlpha:        ptrFloat64(s.RobotAlpha),
		AttachedBodyColor: ptrColor(s.AttachedBodyColor),
		RenderInterval:    ptrString(s.RenderInterval.String()),
	}
}

// LoadDisplayConfig loads a DisplayConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadDisplayConfig(path string) (*DisplayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseDisplayConfig(data)
}

// ParseDisplayConfig decodes and validates a JSON document.
func ParseDisplayConfig(data []byte) (*DisplayConfig, error) {
	cfg := &DisplayConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON.
func (c *DisplayConfig) Save(path string) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(cleanPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal encodes the config as indented JSON.
func (c *DisplayConfig) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return append(data, '\n'), nil
}

// Validate checks that the configuration values are valid.
func (c *DisplayConfig) Validate() error {
	if c.RobotDescription != nil && *c.RobotDescription == "" {
		return fmt.Errorf("robot_description cannot be empty")
	}
	if c.SceneTopic != nil && *c.SceneTopic == "" {
		return fmt.Errorf("scene_topic cannot be empty")
	}
	if c.SceneAlpha != nil && (*c.SceneAlpha < 0 || *c.SceneAlpha > 1) {
		return fmt.Errorf("scene_alpha must be between 0 and 1, got %f", *c.SceneAlpha)
	}
	if c.RobotAlpha != nil && (*c.RobotAlpha < 0 || *c.RobotAlpha > 1) {
		return fmt.Errorf("robot_alpha must be between 0 and 1, got %f", *c.RobotAlpha)
	}
	if c.SceneColor != nil {
		if err := c.SceneColor.Validate(); err != nil {
			return fmt.Errorf("scene_color: %w", err)
		}
	}
	if c.AttachedBodyColor != nil {
		if err := c.AttachedBodyColor.Validate(); err != nil {
			return fmt.Errorf("attached_body_color: %w", err)
		}
	}
	if c.RenderInterval != nil && *c.RenderInterval != "" {
		d, err := time.ParseDuration(*c.RenderInterval)
		if err != nil {
			return fmt.Errorf("invalid render_interval '%s': %w", *c.RenderInterval, err)
		}
		if d < display.MinRenderInterval {
			return fmt.Errorf("render_interval must be at least %v, got %v", display.MinRenderInterval, d)
		}
	}
	if c.TickPeriod != nil && *c.TickPeriod != "" {
		d, err := time.ParseDuration(*c.TickPeriod)
		if err != nil {
			return fmt.Errorf("invalid tick_period '%s': %w", *c.TickPeriod, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_period must be positive, got %v", d)
		}
	}
	for link, col := range c.LinkColors {
		if err := col.Validate(); err != nil {
			return fmt.Errorf("link_colors[%s]: %w", link, err)
		}
	}
	return nil
}

// Settings resolves the config into display settings.
func (c *DisplayConfig) Settings() display.Settings {
	return display.Settings{
		RobotDescription:  c.GetRobotDescription(),
		SceneTopic:        c.GetSceneTopic(),
		SceneVisible:      c.GetSceneVisible(),
		SceneAlpha:        c.GetSceneAlpha(),
		SceneColor:        c.GetSceneColor(),
		RobotVisible:      c.GetRobotVisible(),
		RobotAlpha:        c.GetRobotAlpha(),
		AttachedBodyColor: c.GetAttachedBodyColor(),
		RenderInterval:    c.GetRenderInterval(),
	}
}

// GetRobotDescription returns the robot_description value or the default.
func (c *DisplayConfig) GetRobotDescription() string {
	if c.RobotDescription == nil || *c.RobotDescription == "" {
		return display.DefaultSettings().RobotDescription
	}
	return *c.RobotDescription
}

// GetSceneTopic returns the scene_topic value or the default.
func (c *DisplayConfig) GetSceneTopic() string {
	if c.SceneTopic == nil || *c.SceneTopic == "" {
		return display.DefaultSettings().SceneTopic
	}
	return *c.SceneTopic
}

// GetSceneVisible returns the scene_visible value or the default.
func (c *DisplayConfig) GetSceneVisible() bool {
	if c.SceneVisible == nil {
		return true
	}
	return *c.SceneVisible
}

// GetSceneAlpha returns the scene_alpha value or the default.
func (c *DisplayConfig) GetSceneAlpha() float64 {
	if c.SceneAlpha == nil {
		return display.DefaultSettings().SceneAlpha
	}
	return *c.SceneAlpha
}

// GetSceneColor returns the scene_color value or the default.
func (c *DisplayConfig) GetSceneColor() geom.Color {
	if c.SceneColor == nil {
		return display.DefaultSettings().SceneColor
	}
	return *c.SceneColor
}

// GetRobotVisible returns the robot_visible value or the default.
func (c *DisplayConfig) GetRobotVisible() bool {
	if c.RobotVisible == nil {
		return true
	}
	return *c.RobotVisible
}

// GetRobotAlpha returns the robot_alpha value or the default.
func (c *DisplayConfig) GetRobotAlpha() float64 {
	if c.RobotAlpha == nil {
		return display.DefaultSettings().RobotAlpha
	}
	return *c.RobotAlpha
}

// GetAttachedBodyColor returns the attached_body_color value or the default.
func (c *DisplayConfig) GetAttachedBodyColor() geom.Color {
	if c.AttachedBodyColor == nil {
		return display.DefaultSettings().AttachedBodyColor
	}
	return *c.AttachedBodyColor
}

// GetRenderInterval parses and returns the render_interval as a time.Duration.
func (c *DisplayConfig) GetRenderInterval() time.Duration {
	def := display.DefaultSettings().RenderInterval
	if c.RenderInterval == nil || *c.RenderInterval == "" {
		return def
	}
	d, err := time.ParseDuration(*c.RenderInterval)
	if err != nil || d < display.MinRenderInterval {
		return def
	}
	return d
}

// GetFixedFrame returns the fixed_frame value or the default.
func (c *DisplayConfig) GetFixedFrame() string {
	if c.FixedFrame == nil || *c.FixedFrame == "" {
		return "world"
	}
	return *c.FixedFrame
}

// GetTickPeriod parses and returns the tick_period as a time.Duration.
func (c *DisplayConfig) GetTickPeriod() time.Duration {
	if c.TickPeriod == nil || *c.TickPeriod == "" {
		return display.DefaultTickPeriod
	}
	d, err := time.ParseDuration(*c.TickPeriod)
	if err != nil || d <= 0 {
		return display.DefaultTickPeriod
	}
	return d
}
