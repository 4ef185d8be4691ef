package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical robot defaults file.
const DefaultConfigPath = "config/robot.defaults.json"

// Defaults used when a field is absent from the config file.
const (
	DefaultSerialPort     = "/dev/ttyACM0"
	DefaultBaudRate       = 115200
	DefaultDatabasePath   = "calibrations.db"
	DefaultListenAddr     = ":31950"
	DefaultArcClearance   = 20.0
	DefaultCommandTimeout = 5 * time.Second
	DefaultHeadSpeed      = 3000.0
)

// RobotConfig is the daemon's startup configuration. Every field is optional;
// the Get* methods supply defaults for missing ones.
type RobotConfig struct {
	// Controller connection
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	Simulate   *bool   `json:"simulate,omitempty"`

	// Motion
	ArcClearance   *float64 `json:"arc_clearance_mm,omitempty"`
	CommandTimeout *string  `json:"command_timeout,omitempty"` // duration string like "5s"
	HeadSpeed      *float64 `json:"head_speed_mm_min,omitempty"`

	// Storage
	DatabasePath    *string `json:"database_path,omitempty"`
	CalibrationFile *string `json:"calibration_file,omitempty"` // legacy JSON store, used instead of the db when set
	ContainersFile  *string `json:"containers_file,omitempty"`
	LayoutFile      *string `json:"layout_file,omitempty"`

	// HTTP
	ListenAddr *string `json:"listen_addr,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultRobotConfig returns a config with every field set to its default.
func DefaultRobotConfig() *RobotConfig {
	return &RobotConfig{
		SerialPort:     ptrString(DefaultSerialPort),
		BaudRate:       ptrInt(DefaultBaudRate),
		Simulate:       ptrBool(false),
		ArcClearance:   ptrFloat64(DefaultArcClearance),
		CommandTimeout: ptrString(DefaultCommandTimeout.String()),
		HeadSpeed:      ptrFloat64(DefaultHeadSpeed),
		DatabasePath:   ptrString(DefaultDatabasePath),
		ListenAddr:     ptrString(DefaultListenAddr),
	}
}

// LoadRobotConfig loads a RobotConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults.
func LoadRobotConfig(path string) (*RobotConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := &RobotConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *RobotConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/deckd/
	}
	for _, path := range candidates {
		if cfg, err := LoadRobotConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *RobotConfig) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.SerialPort != nil && *c.SerialPort == "" && (c.Simulate == nil || !*c.Simulate) {
		return fmt.Errorf("serial_port must be set unless simulate is true")
	}
	if c.ArcClearance != nil && *c.ArcClearance < 0 {
		return fmt.Errorf("arc_clearance_mm must be non-negative, got %f", *c.ArcClearance)
	}
	if c.HeadSpeed != nil && *c.HeadSpeed <= 0 {
		return fmt.Errorf("head_speed_mm_min must be positive, got %f", *c.HeadSpeed)
	}
	if c.CommandTimeout != nil && *c.CommandTimeout != "" {
		d, err := time.ParseDuration(*c.CommandTimeout)
		if err != nil {
			return fmt.Errorf("invalid command_timeout '%s': %w", *c.CommandTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("command_timeout must be positive, got %s", d)
		}
	}
	if c.DatabasePath != nil && *c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	return nil
}

// GetSerialPort returns the controller's serial device.
func (c *RobotConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return DefaultSerialPort
	}
	return *c.SerialPort
}

// GetBaudRate returns the serial baud rate.
func (c *RobotConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return DefaultBaudRate
	}
	return *c.BaudRate
}

// GetSimulate reports whether to run without hardware.
func (c *RobotConfig) GetSimulate() bool {
	if c.Simulate == nil {
		return false
	}
	return *c.Simulate
}

// GetArcClearance returns the extra height above the deck for arc moves, in mm.
func (c *RobotConfig) GetArcClearance() float64 {
	if c.ArcClearance == nil {
		return DefaultArcClearance
	}
	return *c.ArcClearance
}

// GetCommandTimeout parses and returns the CommandTimeout as a time.Duration.
func (c *RobotConfig) GetCommandTimeout() time.Duration {
	if c.CommandTimeout == nil || *c.CommandTimeout == "" {
		return DefaultCommandTimeout
	}
	d, err := time.ParseDuration(*c.CommandTimeout)
	if err != nil {
		return DefaultCommandTimeout // default on parse error
	}
	return d
}

// GetHeadSpeed returns the feed rate in mm/min.
func (c *RobotConfig) GetHeadSpeed() float64 {
	if c.HeadSpeed == nil {
		return DefaultHeadSpeed
	}
	return *c.HeadSpeed
}

func (c *RobotConfig) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return DefaultDatabasePath
	}
	return *c.DatabasePath
}

func (c *RobotConfig) GetCalibrationFile() string {
	if c.CalibrationFile == nil {
		return ""
	}
	return *c.CalibrationFile
}

func (c *RobotConfig) GetContainersFile() string {
	if c.ContainersFile == nil {
		return ""
	}
	return *c.ContainersFile
}

func (c *RobotConfig) GetLayoutFile() string {
	if c.LayoutFile == nil {
		return ""
	}
	return *c.LayoutFile
}

func (c *RobotConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return DefaultListenAddr
	}
	return *c.ListenAddr
}
