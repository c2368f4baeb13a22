package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.cfg")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadTracerMissingFile(t *testing.T) {
	tc, err := LoadTracer(filepath.Join(t.TempDir(), "absent.cfg"))
	require.NoError(t, err)

	assert.Equal(t, "3.5", tc.DiskType)
	assert.Equal(t, 115200, tc.Baud)
	assert.Equal(t, 20, tc.VerifyWindow)
	assert.Equal(t, 200, tc.VerifySearchSpan)
	assert.Equal(t, 512, tc.VerifyRings)
	assert.Equal(t, 2*time.Second, tc.ReadTimeout)
	assert.Equal(t, "info", tc.LogLevel)
	assert.False(t, tc.MetricsEnabled)
}

func TestLoadTracerOverrides(t *testing.T) {
	path := writeConfig(t, `
[drive]
type: 5.25
device: /dev/ttyACM1
baud: 230400
drive_b: true

[verify]
window: 24
read_timeout: 0.5

[calibration]
cylinders: 0, 20, 40
csv_path: sweep.csv

[log]
level: debug
format: json

[metrics]
enabled: true
address: 0.0.0.0:9200
`)

	tc, err := LoadTracer(path)
	require.NoError(t, err)

	assert.Equal(t, "5.25", tc.DiskType)
	assert.Equal(t, "/dev/ttyACM1", tc.Device)
	assert.Equal(t, 230400, tc.Baud)
	assert.True(t, tc.DriveB)

	assert.Equal(t, 24, tc.VerifyWindow)
	assert.Equal(t, 500*time.Millisecond, tc.ReadTimeout)
	// Untouched options keep their defaults.
	assert.Equal(t, 200, tc.VerifySearchSpan)

	assert.Equal(t, []int{0, 20, 40}, tc.CalibrationCylinders)
	assert.Equal(t, "sweep.csv", tc.CalibrationCSV)

	assert.Equal(t, "debug", tc.LogLevel)
	assert.Equal(t, "json", tc.LogFormat)

	assert.True(t, tc.MetricsEnabled)
	assert.Equal(t, "0.0.0.0:9200", tc.MetricsAddress)
}

func TestLoadTracerRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"disk type": "[drive]\ntype: 8\n",
		"window":    "[verify]\nwindow: 0\n",
		"ring size": "[verify]\nring_size: -5\n",
		"log level": "[log]\nlevel: loud\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadTracer(writeConfig(t, data))
			assert.Error(t, err)
		})
	}
}
