package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// All fields are pointers so that partial config files only override the
// values they mention; the Get* accessors supply defaults for the rest.
type TuningConfig struct {
	// Matcher params
	MatchThreshold       *float64 `json:"match_threshold,omitempty"`
	MatchRatio           *string  `json:"match_ratio,omitempty"` // "iou" or "min"
	MaxDisappearedFrames *int     `json:"max_disappeared_frames,omitempty"`

	// Detection line, relative to frame height (0 = top, 1 = bottom)
	DetectionLinePosition *float64 `json:"detection_line_position,omitempty"`

	// Calibration reference span
	ReferencePixels *float64 `json:"reference_pixels,omitempty"`
	ReferenceMeters *float64 `json:"reference_meters,omitempty"`

	// Speed params
	SpeedSmoothingWindow *int     `json:"speed_smoothing_window,omitempty"`
	SpeedBinWidthKMH     *float64 `json:"speed_bin_width_kmh,omitempty"`

	// Detector params
	MinVehicleArea         *float64 `json:"min_vehicle_area,omitempty"`
	BackgroundHistory      *int     `json:"background_history,omitempty"`
	BackgroundVarThreshold *float64 `json:"background_var_threshold,omitempty"`
	DetectShadows          *bool    `json:"detect_shadows,omitempty"`

	// Persistence params
	SaveInterval *string `json:"save_interval,omitempty"` // duration string like "10s"

	// Counter params
	RateWindow *string `json:"rate_window,omitempty"` // duration string like "60s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MatchThreshold != nil {
		if *c.MatchThreshold < 0 || *c.MatchThreshold > 1 {
			return fmt.Errorf("match_threshold must be between 0 and 1, got %f", *c.MatchThreshold)
		}
	}

	if c.MatchRatio != nil {
		if *c.MatchRatio != "iou" && *c.MatchRatio != "min" {
			return fmt.Errorf("match_ratio must be \"iou\" or \"min\", got %q", *c.MatchRatio)
		}
	}

	if c.MaxDisappearedFrames != nil {
		if *c.MaxDisappearedFrames < 0 {
			return fmt.Errorf("max_disappeared_frames must be non-negative, got %d", *c.MaxDisappearedFrames)
		}
	}

	if c.DetectionLinePosition != nil {
		if *c.DetectionLinePosition < 0 || *c.DetectionLinePosition > 1 {
			return fmt.Errorf("detection_line_position must be between 0 and 1, got %f", *c.DetectionLinePosition)
		}
	}

	if c.SpeedSmoothingWindow != nil {
		if *c.SpeedSmoothingWindow < 1 {
			return fmt.Errorf("speed_smoothing_window must be at least 1, got %d", *c.SpeedSmoothingWindow)
		}
	}

	if c.SpeedBinWidthKMH != nil {
		if *c.SpeedBinWidthKMH <= 0 {
			return fmt.Errorf("speed_bin_width_kmh must be positive, got %f", *c.SpeedBinWidthKMH)
		}
	}

	if c.MinVehicleArea != nil {
		if *c.MinVehicleArea < 0 {
			return fmt.Errorf("min_vehicle_area must be non-negative, got %f", *c.MinVehicleArea)
		}
	}

	if c.SaveInterval != nil && *c.SaveInterval != "" {
		if _, err := time.ParseDuration(*c.SaveInterval); err != nil {
			return fmt.Errorf("invalid save_interval '%s': %w", *c.SaveInterval, err)
		}
	}

	if c.RateWindow != nil && *c.RateWindow != "" {
		if _, err := time.ParseDuration(*c.RateWindow); err != nil {
			return fmt.Errorf("invalid rate_window '%s': %w", *c.RateWindow, err)
		}
	}

	return nil
}

// GetMatchThreshold returns the match_threshold value or the default.
func (c *TuningConfig) GetMatchThreshold() float64 {
	if c.MatchThreshold == nil {
		return 0.3
	}
	return *c.MatchThreshold
}

// GetMatchRatio returns the match_ratio value or the default.
func (c *TuningConfig) GetMatchRatio() string {
	if c.MatchRatio == nil || *c.MatchRatio == "" {
		return "iou"
	}
	return *c.MatchRatio
}

// GetMaxDisappearedFrames returns the max_disappeared_frames value or the default.
func (c *TuningConfig) GetMaxDisappearedFrames() int {
	if c.MaxDisappearedFrames == nil {
		return 50
	}
	return *c.MaxDisappearedFrames
}

// GetDetectionLinePosition returns the detection_line_position value or the default.
func (c *TuningConfig) GetDetectionLinePosition() float64 {
	if c.DetectionLinePosition == nil {
		return 0.5
	}
	return *c.DetectionLinePosition
}

// GetReferencePixels returns the reference_pixels value or the default.
func (c *TuningConfig) GetReferencePixels() float64 {
	if c.ReferencePixels == nil {
		return 350
	}
	return *c.ReferencePixels
}

// GetReferenceMeters returns the reference_meters value or the default.
func (c *TuningConfig) GetReferenceMeters() float64 {
	if c.ReferenceMeters == nil {
		return 3.5
	}
	return *c.ReferenceMeters
}

// GetSpeedSmoothingWindow returns the speed_smoothing_window value or the default.
func (c *TuningConfig) GetSpeedSmoothingWindow() int {
	if c.SpeedSmoothingWindow == nil {
		return 5
	}
	return *c.SpeedSmoothingWindow
}

// GetSpeedBinWidthKMH returns the speed_bin_width_kmh value or the default.
func (c *TuningConfig) GetSpeedBinWidthKMH() float64 {
	if c.SpeedBinWidthKMH == nil {
		return 5.0
	}
	return *c.SpeedBinWidthKMH
}

// GetMinVehicleArea returns the min_vehicle_area value or the default.
func (c *TuningConfig) GetMinVehicleArea() float64 {
	if c.MinVehicleArea == nil {
		return 500
	}
	return *c.MinVehicleArea
}

// GetBackgroundHistory returns the background_history value or the default.
func (c *TuningConfig) GetBackgroundHistory() int {
	if c.BackgroundHistory == nil {
		return 200
	}
	return *c.BackgroundHistory
}

// GetBackgroundVarThreshold returns the background_var_threshold value or the default.
func (c *TuningConfig) GetBackgroundVarThreshold() float64 {
	if c.BackgroundVarThreshold == nil {
		return 25
	}
	return *c.BackgroundVarThreshold
}

// GetDetectShadows returns the detect_shadows value or the default.
func (c *TuningConfig) GetDetectShadows() bool {
	if c.DetectShadows == nil {
		return true
	}
	return *c.DetectShadows
}

// GetSaveInterval parses and returns the SaveInterval as a time.Duration.
func (c *TuningConfig) GetSaveInterval() time.Duration {
	if c.SaveInterval == nil || *c.SaveInterval == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.SaveInterval)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetRateWindow parses and returns the RateWindow as a time.Duration.
func (c *TuningConfig) GetRateWindow() time.Duration {
	if c.RateWindow == nil || *c.RateWindow == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.RateWindow)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}
