package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log_level: debug
spc:
  min_points: 8
  cpk_warning: 1.33
  cpk_critical: 1.0
  ppk_long_term_sigma: true
  window:
    max_points: 200
    retention: 720h
parameters:
  - id: ph
    name: pH
    unit: pH
    spec: {lsl: 3.2, usl: 3.8, target: 3.5}
  - id: brix
    subgroup_size: 5
    non_negative: true
    spec: {lsl: 10, usl: 12}
    product_specs:
      cola: {lsl: 10.5, usl: 11}
storage:
  enabled: true
  driver: sqlite
  dsn: "file:test.db"
`

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.SPC.MinPoints)
	assert.Equal(t, 1.33, cfg.SPC.CpkWarning)
	assert.True(t, cfg.SPC.PpkLongTermSigma)
	assert.Equal(t, 720*time.Hour, cfg.SPC.Window.Retention)
	assert.Equal(t, 1, cfg.SPC.DefaultSubgroupSize)
	require.Len(t, cfg.Parameters, 2)
	assert.Equal(t, 3.5, *cfg.Parameters[0].Spec.Target)
	assert.Equal(t, 10.5, *cfg.Parameters[1].ProductSpecs["cola"].LSL)
	assert.Equal(t, ":8080", cfg.Ingest.REST.Addr, "unset sections keep defaults")
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"parameters":[{"id":"ph","spec":{"lsl":1,"usl":2}}],"publish":{"enabled":true,"brokers":["k:9092"]}}`))
	require.NoError(t, err)
	assert.Equal(t, "spc.alerts", cfg.Publish.Topic)
	assert.Equal(t, 0.67, cfg.SPC.CpkCritical)
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want string
	}{
		"empty":              {``, "empty"},
		"unknown key":        {`log_levle: debug`, "decode"},
		"bad level":          {`log_level: loud`, "log_level must be one of"},
		"bad format":         {`log_format: xml`, "log_format"},
		"missing param id":   {`parameters: [{name: x}]`, "parameters[0].id is required"},
		"duplicate param":    {`parameters: [{id: a}, {id: a}]`, "parameters has duplicate ids"},
		"inverted spec":      {`parameters: [{id: a, spec: {lsl: 5, usl: 1}}]`, "parameters[0].spec.lsl exceeds usl 1"},
		"inverted product":   {`parameters: [{id: a, product_specs: {p: {lsl: 5, usl: 1}}}]`, "product_specs[p].lsl"},
		"subgroup too large": {`parameters: [{id: a, subgroup_size: 11}]`, "subgroup_size"},
		"thresholds swapped": {`spc: {cpk_warning: 0.5, cpk_critical: 0.9}`, "spc.cpk_critical must not exceed cpk_warning"},
		"kafka incomplete":   {`ingest: {kafka: {enabled: true}}`, "ingest.kafka.brokers is required when enabled"},
		"publish no brokers": {`publish: {enabled: true}`, "publish.brokers is required when enabled"},
		"api without addr":   {`api: {enabled: true, addr: ""}`, "api.addr"},
		"tail without files": {`ingest: {file_tail: {enabled: true}}`, "ingest.file_tail.files"},
		"unknown driver":     {`storage: {driver: oracle}`, "storage.driver"},
		"unknown timezone":   {`ingest: {parser: {timezone: Mars/Olympus}}`, "unknown timezone"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	cfg.Ingest.Kafka.Enabled = true
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "ingest.kafka.topic")
	assert.Contains(t, err.Error(), "ingest.kafka.group_id")
	assert.NoError(t, Validate(DefaultConfig()))
}

func writeConfig(t *testing.T, path, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func TestManagerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spcguard.yaml")
	writeConfig(t, path, sampleYAML)

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 8, m.Get().SPC.MinPoints)
	changed, err := m.Changed()
	require.NoError(t, err)
	assert.False(t, changed)

	writeConfig(t, path, sampleYAML+"metrics: {store_limit: 42}\n")
	changed, err = m.Changed()
	require.NoError(t, err)
	assert.True(t, changed)

	cfg, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Metrics.StoreLimit)
	assert.Same(t, cfg, m.Get())

	writeConfig(t, path, "spc: {cpk_warning: 0.5, cpk_critical: 0.9}\n")
	_, err = m.Reload()
	require.Error(t, err)
	assert.Equal(t, 42, m.Get().Metrics.StoreLimit, "failed reload keeps the previous config")
}

func TestManagerWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spcguard.yaml")
	writeConfig(t, path, "spc: {min_points: 6}\n")
	m, err := NewManager(path)
	require.NoError(t, err)

	reloaded := make(chan *Config, 4)
	failures := make(chan error, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, 10*time.Millisecond, func(cfg *Config) { reloaded <- cfg }, func(err error) { failures <- err })

	writeConfig(t, path, "log_level: chatty\n")
	select {
	case err := <-failures:
		assert.Contains(t, err.Error(), "log_level")
	case <-time.After(2 * time.Second):
		t.Fatal("invalid config not reported")
	}
	assert.Equal(t, 6, m.Get().SPC.MinPoints)

	writeConfig(t, path, "spc: {min_points: 10}\n")
	select {
	case cfg := <-reloaded:
		assert.Equal(t, 10, cfg.SPC.MinPoints)
	case <-time.After(2 * time.Second):
		t.Fatal("config not reloaded")
	}
	assert.Empty(t, failures, "a rejected version is reported once")
}

func TestStaticManager(t *testing.T) {
	m := NewStaticManager(DefaultConfig())
	changed, err := m.Changed()
	require.NoError(t, err)
	assert.False(t, changed)
	cfg, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.SPC.MinPoints)
	m.Watch(context.Background(), time.Millisecond, nil, nil)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "", ResolvePath(""))
	assert.Equal(t, "/etc/spcguard.yaml", ResolvePath("/etc/spcguard.yaml"))
	assert.True(t, filepath.IsAbs(ResolvePath("spcguard.yaml")))
}
