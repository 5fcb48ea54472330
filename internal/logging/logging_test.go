package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()

	closer, err := configure(l, &buf, Options{Level: "debug", Format: "json"})
	require.NoError(t, err)
	defer closer.Close()

	l.WithField("gameweek", 7).Debug("Computing cohort snapshot")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Computing cohort snapshot", entry["msg"])
	assert.Equal(t, float64(7), entry["gameweek"])
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}

func TestConfigure_Levels(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"info", logrus.InfoLevel},
		{"WARN", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"trace", logrus.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l := logrus.New()
			_, err := configure(l, &bytes.Buffer{}, Options{Level: tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestConfigure_Invalid(t *testing.T) {
	_, err := configure(logrus.New(), &bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)

	_, err = configure(logrus.New(), &bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)
}

func TestConfigure_FileOutput(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "cohorts.log")
	l := logrus.New()

	closer, err := configure(l, &buf, Options{Format: "text", File: path, MaxAgeDays: 1})
	require.NoError(t, err)

	l.Info("Gameweek scheduler started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Gameweek scheduler started")
	assert.Contains(t, buf.String(), "Gameweek scheduler started")
}
