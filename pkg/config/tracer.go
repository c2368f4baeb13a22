package config

import (
	"os"
	"path/filepath"
	"time"
)

// TracerConfig is the typed view of the host configuration file. Every
// field has a working default; a missing file yields the defaults.
type TracerConfig struct {
	// [drive]
	DiskType string // "3.5" or "5.25"
	Device   string // serial device path, empty for auto-detect
	Baud     int
	DriveB   bool

	// [verify]
	VerifyWindow     int
	VerifySearchSpan int
	VerifyOffsetMin  int
	VerifyOffsetMax  int
	VerifyRings      int
	ReadTimeout      time.Duration

	// [precompensation]
	PrecompPath string

	// [calibration]
	CalibrationCylinders []int
	CalibrationCSV       string

	// [log]
	LogLevel  string
	LogFormat string
	LogColor  bool

	// [metrics]
	MetricsEnabled  bool
	MetricsAddress  string
	MetricsUsername string
	MetricsPassword string
}

// DefaultPath returns the default host configuration file path.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "floppytracer.cfg"
	}
	return filepath.Join(home, ".floppytracer", "config.cfg")
}

// DefaultPrecompPath returns the default precompensation sample file path.
func DefaultPrecompPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "wprecomp.cfg"
	}
	return filepath.Join(home, ".floppytracer", "wprecomp.cfg")
}

func defaults() *TracerConfig {
	return &TracerConfig{
		DiskType:         "3.5",
		Baud:             115200,
		VerifyWindow:     20,
		VerifySearchSpan: 200,
		VerifyOffsetMax:  200,
		VerifyRings:      512,
		ReadTimeout:      2 * time.Second,
		PrecompPath:      DefaultPrecompPath(),
		CalibrationCSV:   "wprecomp.csv",
		LogLevel:         "info",
		LogFormat:        "text",
		MetricsAddress:   "127.0.0.1:9100",
	}
}

// LoadTracer reads the host configuration. A missing file is not an error;
// the defaults apply.
func LoadTracer(path string) (*TracerConfig, error) {
	tc := defaults()
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return tc, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := tc.apply(cfg); err != nil {
		return nil, err
	}
	return tc, nil
}

func (tc *TracerConfig) apply(cfg *Config) error {
	if sec := cfg.GetSectionOptional("drive"); sec != nil {
		var err error
		if tc.DiskType, err = sec.GetChoice("type", []string{"3.5", "5.25"}, tc.DiskType); err != nil {
			return err
		}
		if tc.Device, err = sec.Get("device", tc.Device); err != nil {
			return err
		}
		if tc.Baud, err = sec.GetInt("baud", tc.Baud); err != nil {
			return err
		}
		if tc.DriveB, err = sec.GetBool("drive_b", tc.DriveB); err != nil {
			return err
		}
	}

	if sec := cfg.GetSectionOptional("verify"); sec != nil {
		one := 1
		var err error
		if tc.VerifyWindow, err = sec.GetIntWithBounds("window", &one, nil, tc.VerifyWindow); err != nil {
			return err
		}
		if tc.VerifySearchSpan, err = sec.GetIntWithBounds("search_span", &one, nil, tc.VerifySearchSpan); err != nil {
			return err
		}
		zero := 0
		if tc.VerifyOffsetMin, err = sec.GetIntWithBounds("offset_min", &zero, nil, tc.VerifyOffsetMin); err != nil {
			return err
		}
		if tc.VerifyOffsetMax, err = sec.GetIntWithBounds("offset_max", &zero, nil, tc.VerifyOffsetMax); err != nil {
			return err
		}
		if tc.VerifyRings, err = sec.GetIntWithBounds("ring_size", &one, nil, tc.VerifyRings); err != nil {
			return err
		}
		secs, err := sec.GetFloat("read_timeout", tc.ReadTimeout.Seconds())
		if err != nil {
			return err
		}
		tc.ReadTimeout = time.Duration(secs * float64(time.Second))
	}

	if sec := cfg.GetSectionOptional("precompensation"); sec != nil {
		var err error
		if tc.PrecompPath, err = sec.Get("file", tc.PrecompPath); err != nil {
			return err
		}
	}

	if sec := cfg.GetSectionOptional("calibration"); sec != nil {
		var err error
		if tc.CalibrationCylinders, err = sec.GetIntList("cylinders", ",", tc.CalibrationCylinders); err != nil {
			return err
		}
		if tc.CalibrationCSV, err = sec.Get("csv_path", tc.CalibrationCSV); err != nil {
			return err
		}
	}

	if sec := cfg.GetSectionOptional("log"); sec != nil {
		var err error
		if tc.LogLevel, err = sec.GetChoice("level", []string{"debug", "info", "warn", "error"}, tc.LogLevel); err != nil {
			return err
		}
		if tc.LogFormat, err = sec.GetChoice("format", []string{"text", "json"}, tc.LogFormat); err != nil {
			return err
		}
		if tc.LogColor, err = sec.GetBool("color", tc.LogColor); err != nil {
			return err
		}
	}

	if sec := cfg.GetSectionOptional("metrics"); sec != nil {
		var err error
		if tc.MetricsEnabled, err = sec.GetBool("enabled", tc.MetricsEnabled); err != nil {
			return err
		}
		if tc.MetricsAddress, err = sec.Get("address", tc.MetricsAddress); err != nil {
			return err
		}
		if tc.MetricsUsername, err = sec.Get("username", tc.MetricsUsername); err != nil {
			return err
		}
		if tc.MetricsPassword, err = sec.Get("password", tc.MetricsPassword); err != nil {
			return err
		}
	}

	return nil
}
