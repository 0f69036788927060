package model

import "time"

type Parameter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit,omitempty"`
}

type Measurement struct {
	ID           string    `json:"id"`
	ParameterID  string    `json:"parameter_id"`
	Timestamp    time.Time `json:"timestamp"`
	Value        float64   `json:"value"`
	Conforming   bool      `json:"conforming"`
	BatchID      string    `json:"batch_id,omitempty"`
	SampleID     string    `json:"sample_id,omitempty"`
	ProductID    string    `json:"product_id,omitempty"`
	SampleTypeID string    `json:"sample_type_id,omitempty"`
	Source       string    `json:"source,omitempty"`
}

// MatchKey pairs measurements of two parameters: batch code, then sample
// code, then the measurement's own id.
func (m Measurement) MatchKey() string {
	switch {
	case m.BatchID != "":
		return m.BatchID
	case m.SampleID != "":
		return m.SampleID
	}
	return m.ID
}

type SeriesFilter struct {
	From         time.Time `json:"from,omitempty"`
	To           time.Time `json:"to,omitempty"`
	BatchID      string    `json:"batch_id,omitempty"`
	ProductID    string    `json:"product_id,omitempty"`
	SampleTypeID string    `json:"sample_type_id,omitempty"`
}

func (f SeriesFilter) Match(m Measurement) bool {
	if !f.From.IsZero() && m.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && m.Timestamp.After(f.To) {
		return false
	}
	if f.BatchID != "" && m.BatchID != f.BatchID {
		return false
	}
	if f.ProductID != "" && m.ProductID != f.ProductID {
		return false
	}
	if f.SampleTypeID != "" && m.SampleTypeID != f.SampleTypeID {
		return false
	}
	return true
}

type Subgroup struct {
	Label  string    `json:"label,omitempty"`
	Start  int       `json:"start"`
	Values []float64 `json:"values"`
	Mean   float64   `json:"mean"`
	Range  float64   `json:"range"`
	StdDev float64   `json:"std_dev"`
}

type SecondaryChart string

const (
	SecondaryRange  SecondaryChart = "range"
	SecondaryStdDev SecondaryChart = "std_dev"
)

type SecondaryLimits struct {
	AverageRange  float64 `json:"average_range"`
	AverageStdDev float64 `json:"average_std_dev"`
	RangeCenter   float64 `json:"range_center"`
	RangeUCL      float64 `json:"range_ucl"`
	RangeLCL      float64 `json:"range_lcl"`
	StdDevCenter  float64 `json:"std_dev_center"`
	StdDevUCL     float64 `json:"std_dev_ucl"`
	StdDevLCL     float64 `json:"std_dev_lcl"`
}

type ControlLimits struct {
	SubgroupSize       int              `json:"subgroup_size"`
	Points             int              `json:"points"`
	Sufficient         bool             `json:"sufficient"`
	Center             float64          `json:"center"`
	SigmaShortTerm     float64          `json:"sigma_short_term"`
	SigmaLongTerm      float64          `json:"sigma_long_term"`
	UCL                float64          `json:"ucl"`
	LCL                float64          `json:"lcl"`
	LCLClipped         bool             `json:"lcl_clipped,omitempty"`
	AverageMovingRange float64          `json:"average_moving_range,omitempty"`
	Secondary          *SecondaryLimits `json:"secondary,omitempty"`
	ChartValues        []float64        `json:"chart_values"`
	Subgroups          []Subgroup       `json:"subgroups,omitempty"`
}

type SpecLimits struct {
	LSL    *float64 `json:"lsl" yaml:"lsl"`
	USL    *float64 `json:"usl" yaml:"usl"`
	Target *float64 `json:"target" yaml:"target"`
}

type ProcessCapability struct {
	Cp  *float64 `json:"cp"`
	Cpu *float64 `json:"cpu"`
	Cpl *float64 `json:"cpl"`
	Cpk *float64 `json:"cpk"`
	Ppk *float64 `json:"ppk"`
}

type RunRuleViolation struct {
	Rule        int    `json:"rule"`
	Description string `json:"description"`
	Points      []int  `json:"point_indexes"`
	Direction   string `json:"direction,omitempty"`
}

func (v RunRuleViolation) Includes(index int) bool {
	for _, p := range v.Points {
		if p == index {
			return true
		}
	}
	return false
}

type Zone string

const (
	ZoneC      Zone = "C"
	ZoneB      Zone = "B"
	ZoneA      Zone = "A"
	ZoneBeyond Zone = "beyond"
)

type CorrelationPoint struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Name string  `json:"name"`
}

type Correlation struct {
	Coefficient float64            `json:"coefficient"`
	Strength    string             `json:"strength"`
	Points      []CorrelationPoint `json:"points"`
}

type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Mid   float64 `json:"mid"`
	Count int     `json:"count"`
	Curve float64 `json:"curve"`
}

type Histogram struct {
	Mean     float64        `json:"mean"`
	StdDev   float64        `json:"std_dev"`
	Skewness float64        `json:"skewness"`
	Min      float64        `json:"min"`
	Max      float64        `json:"max"`
	Bins     []HistogramBin `json:"bins"`
}

type ParameterSummary struct {
	ParameterID  string    `json:"parameter_id"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit,omitempty"`
	Points       int       `json:"points"`
	Sufficient   bool      `json:"sufficient"`
	Mean         float64   `json:"mean"`
	UCL          float64   `json:"ucl"`
	LCL          float64   `json:"lcl"`
	Cpk          *float64  `json:"cpk"`
	OutOfControl int       `json:"out_of_control"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ChartReport struct {
	Parameter    Parameter          `json:"parameter"`
	Spec         SpecLimits         `json:"spec_limits"`
	Limits       ControlLimits      `json:"limits"`
	Capability   ProcessCapability  `json:"capability"`
	Violations   []RunRuleViolation `json:"violations"`
	Zones        []Zone             `json:"zones,omitempty"`
	Histogram    Histogram          `json:"histogram"`
	Measurements []Measurement      `json:"measurements"`
}
