package display

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/sceneview/internal/geom"
)

// Settings are the display options the core reads. They are plain values
// owned by the display and read fresh on every tick.
type Settings struct {
	RobotDescription  string
	SceneTopic        string
	SceneVisible      bool
	SceneAlpha        float64
	SceneColor        geom.Color
	RobotVisible      bool
	RobotAlpha        float64
	AttachedBodyColor geom.Color
	RenderInterval    time.Duration
}

// DefaultSettings mirrors the stock planning scene display.
func DefaultSettings() Settings {
	return Settings{
		RobotDescription:  "robot_description",
		SceneTopic:        "planning_scene",
		SceneVisible:      true,
		SceneAlpha:        0.9,
		SceneColor:        geom.RGB8(50, 230, 50),
		RobotVisible:      true,
		RobotAlpha:        0.5,
		AttachedBodyColor: geom.RGB8(150, 50, 150),
		RenderInterval:    200 * time.Millisecond,
	}
}

// Validate checks ranges.
func (s Settings) Validate() error {
	if s.RobotDescription == "" {
		return fmt.Errorf("robot description parameter cannot be empty")
	}
	if s.SceneTopic == "" {
		return fmt.Errorf("scene topic cannot be empty")
	}
	if err := validateAlpha("scene alpha", s.SceneAlpha); err != nil {
		return err
	}
	if err := validateAlpha("robot alpha", s.RobotAlpha); err != nil {
		return err
	}
	if err := s.SceneColor.Validate(); err != nil {
		return fmt.Errorf("scene color: %w", err)
	}
	if err := s.AttachedBodyColor.Validate(); err != nil {
		return fmt.Errorf("attached body color: %w", err)
	}
	if s.RenderInterval < MinRenderInterval {
		return fmt.Errorf("render interval must be at least %v, got %v", MinRenderInterval, s.RenderInterval)
	}
	return nil
}

func validateAlpha(name string, a float64) error {
	if math.IsNaN(a) || a < 0 || a > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, a)
	}
	return nil
}
