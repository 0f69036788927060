package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcguard/internal/model"
)

func TestAnalyzeCommand(t *testing.T) {
	lines := []string{"timestamp,parameter_id,value,batch_id"}
	values := []string{"10", "12", "11", "13", "12", "14", "13", "15", "14", "16"}
	for i, v := range values {
		lines = append(lines, "2026-03-01T08:0"+string(rune('0'+i))+":00Z,ph,"+v+",L"+v)
	}
	lines = append(lines, "2026-03-01T09:00:00Z,ph,oops,L99")
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"analyze", path, "--parameter", "ph", "--lsl", "0", "--usl", "100"})
	require.NoError(t, rootCmd.Execute())

	var report struct {
		Measurements int `json:"measurements"`
		Rejected     int `json:"rejected"`
		Parameters   []struct {
			Chart  model.ChartReport `json:"chart"`
			Alerts []model.Alert     `json:"alerts"`
		} `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, 10, report.Measurements)
	assert.Equal(t, 1, report.Rejected)
	require.Len(t, report.Parameters, 1)
	chart := report.Parameters[0].Chart
	assert.Equal(t, 17.137, chart.Limits.UCL)
	assert.Equal(t, 8.863, chart.Limits.LCL)
	require.NotNil(t, chart.Spec.USL)
	assert.Equal(t, 100.0, *chart.Spec.USL)
	assert.Empty(t, report.Parameters[0].Alerts)
	assert.Contains(t, stderr.String(), "record rejected")
}
