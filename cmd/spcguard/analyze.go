package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"spcguard/internal/alerts"
	"spcguard/internal/catalog"
	"spcguard/internal/config"
	"spcguard/internal/engine"
	"spcguard/internal/ingest"
	"spcguard/internal/logging"
	"spcguard/internal/model"
)

var (
	analyzeParameter    string
	analyzeProduct      string
	analyzeSubgroupSize int
	analyzeLSL          float64
	analyzeUSL          float64

	analyzeCmd = &cobra.Command{
		Use:   "analyze [file|-]",
		Short: "Replay a measurement export and print charts and the alerts it would raise",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
)

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeParameter, "parameter", "p", "", "only chart this parameter; also the default for records without one")
	f.StringVar(&analyzeProduct, "product", "", "scope charts to one product and its spec limits")
	f.IntVar(&analyzeSubgroupSize, "subgroup-size", 0, "override the configured subgroup size")
	f.Float64Var(&analyzeLSL, "lsl", 0, "lower spec limit for --parameter")
	f.Float64Var(&analyzeUSL, "usl", 0, "upper spec limit for --parameter")
}

type parameterReport struct {
	Chart  model.ChartReport `json:"chart"`
	Alerts []model.Alert     `json:"alerts"`
}

type analyzeReport struct {
	Measurements int               `json:"measurements"`
	Rejected     int               `json:"rejected"`
	Parameters   []parameterReport `json:"parameters"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	manager, err := loadManager()
	if err != nil {
		return err
	}
	cfg := *manager.Get()
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.New(cmd.ErrOrStderr(), level, cfg.LogFormat)

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	if analyzeParameter != "" {
		cfg.Ingest.Parser.DefaultParameterID = analyzeParameter
	}
	measurements, errs := ingest.ParseReader(in, ingest.NewParser(), &cfg)
	for _, err := range errs {
		logger.Warn("record rejected", "err", err)
	}

	// The whole export is one window.
	cfg.SPC.Window.MaxPoints = 0
	cfg.SPC.Window.Retention = 0
	cfg.SPC.DedupeWindow = 0
	cfg.Parameters = withSeenParameters(cfg.Parameters, measurements)
	if analyzeParameter != "" && (cmd.Flags().Changed("lsl") || cmd.Flags().Changed("usl")) {
		for i := range cfg.Parameters {
			if cfg.Parameters[i].ID != analyzeParameter {
				continue
			}
			if cmd.Flags().Changed("lsl") {
				cfg.Parameters[i].Spec.LSL = &analyzeLSL
			}
			if cmd.Flags().Changed("usl") {
				cfg.Parameters[i].Spec.USL = &analyzeUSL
			}
		}
	}
	if err := config.Validate(&cfg); err != nil {
		return err
	}

	report, err := analyze(cmd.Context(), &cfg, logger, measurements)
	if err != nil {
		return err
	}
	report.Rejected = len(errs)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func analyze(ctx context.Context, cfg *config.Config, logger *slog.Logger, measurements []model.Measurement) (analyzeReport, error) {
	eng := engine.NewEngine(cfg, logger, catalog.New(cfg.Parameters), nil, alerts.NewStore(len(measurements)+1), nil)
	slices.SortStableFunc(measurements, func(a, b model.Measurement) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	raised := map[string][]model.Alert{}
	var seen []string
	for _, m := range measurements {
		res, err := eng.ProcessMeasurement(ctx, m)
		if err != nil {
			logger.Warn("measurement skipped", "measurement_id", m.ID, "err", err)
			continue
		}
		if !slices.Contains(seen, m.ParameterID) {
			seen = append(seen, m.ParameterID)
		}
		raised[m.ParameterID] = append(raised[m.ParameterID], res.Alerts...)
	}
	slices.Sort(seen)

	report := analyzeReport{Measurements: len(measurements), Parameters: []parameterReport{}}
	for _, id := range seen {
		if analyzeParameter != "" && id != analyzeParameter {
			continue
		}
		chart, err := eng.Chart(ctx, id, model.SeriesFilter{ProductID: analyzeProduct}, analyzeSubgroupSize)
		if err != nil {
			return analyzeReport{}, fmt.Errorf("chart %s: %w", id, err)
		}
		list := raised[id]
		if list == nil {
			list = []model.Alert{}
		}
		report.Parameters = append(report.Parameters, parameterReport{Chart: chart, Alerts: list})
	}
	return report, nil
}

// withSeenParameters adds a bare catalog entry for every parameter in the
// export that the config does not describe.
func withSeenParameters(params []config.ParameterConfig, measurements []model.Measurement) []config.ParameterConfig {
	out := slices.Clone(params)
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.ID] = true
	}
	for _, m := range measurements {
		if !known[m.ParameterID] {
			known[m.ParameterID] = true
			out = append(out, config.ParameterConfig{ID: m.ParameterID})
		}
	}
	return out
}
