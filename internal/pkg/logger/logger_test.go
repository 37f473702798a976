package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, logrus.WarnLevel, ParseLevel(" warn "))
	require.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}

func TestLogError_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "info", JSON: true, Output: &buf})

	LogError(l, "matching", "AutoMatch", "load report", "abc123", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "boom", entry["msg"])
	require.Equal(t, "matching", entry["module"])
	require.Equal(t, "AutoMatch", entry["funcName"])
	require.Equal(t, "load report", entry["context"])
	require.Equal(t, "abc123", entry["data"])
	require.Equal(t, "error", entry["level"])
}

func TestModule_NilLoggerIsSafe(t *testing.T) {
	require.NotPanics(t, func() {
		Module(nil, "geo", "Geocode").Info("ignored")
	})
}
