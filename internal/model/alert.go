package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AlertKind string

const (
	AlertRunRuleViolation AlertKind = "run_rule_violation"
	AlertCpkWarning       AlertKind = "cpk_warning"
	AlertCpkCritical      AlertKind = "cpk_critical"
	AlertOutOfSpec        AlertKind = "out_of_spec"
)

func (k AlertKind) Valid() bool {
	switch k {
	case AlertRunRuleViolation, AlertCpkWarning, AlertCpkCritical, AlertOutOfSpec:
		return true
	}
	return false
}

type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
	StatusDismissed    AlertStatus = "dismissed"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusResolved, StatusDismissed:
		return true
	}
	return false
}

func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

// CanTransition reports whether an alert in status from may move to status to.
// active -> acknowledged | resolved | dismissed, acknowledged -> resolved.
func CanTransition(from, to AlertStatus) bool {
	switch from {
	case StatusActive:
		return to == StatusAcknowledged || to == StatusResolved || to == StatusDismissed
	case StatusAcknowledged:
		return to == StatusResolved
	}
	return false
}

type Alert struct {
	ID              string      `json:"id"`
	Kind            AlertKind   `json:"alert_type"`
	Rule            int         `json:"rule_number,omitempty"`
	ParameterID     string      `json:"parameter_id"`
	MeasurementID   string      `json:"measurement_id,omitempty"`
	SampleID        string      `json:"sample_id,omitempty"`
	BatchID         string      `json:"batch_id,omitempty"`
	Description     string      `json:"description"`
	ValueRecorded   *float64    `json:"value_recorded,omitempty"`
	ThresholdValue  *float64    `json:"threshold_value,omitempty"`
	CpkValue        *float64    `json:"cpk_value,omitempty"`
	Status          AlertStatus `json:"status"`
	NonconformityID string      `json:"nonconformity_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	AcknowledgedBy  string      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedBy      string      `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	ResolutionNotes string      `json:"resolution_notes,omitempty"`
	DismissedBy     string      `json:"dismissed_by,omitempty"`
	DismissedAt     *time.Time  `json:"dismissed_at,omitempty"`
}

// IdempotencyKey identifies the alert a given measurement can raise at most
// once. Alerts not tied to a measurement have no key.
func (a Alert) IdempotencyKey() string {
	if a.MeasurementID == "" {
		return ""
	}
	return strings.Join([]string{a.ParameterID, a.MeasurementID, string(a.Kind), strconv.Itoa(a.Rule)}, "|")
}

// Trigger is the closed set of conditions an alert can be raised for.
type Trigger interface {
	Kind() AlertKind
	apply(a *Alert)
}

type RunRuleTrigger struct {
	Rule        int
	Description string
	Value       float64
	Threshold   *float64
}

type OutOfSpecTrigger struct {
	Value float64
	Limit float64
	Above bool
}

type CpkWarningTrigger struct {
	Cpk   float64
	Limit float64
}

type CpkCriticalTrigger struct {
	Cpk   float64
	Limit float64
}

func (RunRuleTrigger) Kind() AlertKind { return AlertRunRuleViolation }
func (OutOfSpecTrigger) Kind() AlertKind { return AlertOutOfSpec }
func (CpkWarningTrigger) Kind() AlertKind { return AlertCpkWarning }
func (CpkCriticalTrigger) Kind() AlertKind { return AlertCpkCritical }

func (t RunRuleTrigger) apply(a *Alert) {
	a.Rule = t.Rule
	a.Description = fmt.Sprintf("Rule %d: %s", t.Rule, t.Description)
	a.ValueRecorded = floatPtr(t.Value)
	if t.Threshold != nil {
		a.ThresholdValue = floatPtr(*t.Threshold)
	}
}

func (t OutOfSpecTrigger) apply(a *Alert) {
	if t.Above {
		a.Description = fmt.Sprintf("Value %s above UCL (%s)", formatFloat(t.Value), formatFloat(t.Limit))
	} else {
		a.Description = fmt.Sprintf("Value %s below LCL (%s)", formatFloat(t.Value), formatFloat(t.Limit))
	}
	a.ValueRecorded = floatPtr(t.Value)
	a.ThresholdValue = floatPtr(t.Limit)
}

func (t CpkWarningTrigger) apply(a *Alert) {
	a.Description = fmt.Sprintf("Cpk warning: %s (< %s) - process marginal", formatFloat(t.Cpk), formatFloat(t.Limit))
	a.CpkValue = floatPtr(t.Cpk)
	a.ThresholdValue = floatPtr(t.Limit)
}

func (t CpkCriticalTrigger) apply(a *Alert) {
	a.Description = fmt.Sprintf("Cpk critical: %s (< %s) - process incapable", formatFloat(t.Cpk), formatFloat(t.Limit))
	a.CpkValue = floatPtr(t.Cpk)
	a.ThresholdValue = floatPtr(t.Limit)
}

type AlertRef struct {
	ParameterID   string `json:"parameter_id" validate:"required"`
	MeasurementID string `json:"measurement_id,omitempty"`
	SampleID      string `json:"sample_id,omitempty"`
	BatchID       string `json:"batch_id,omitempty"`
}

func NewAlert(ref AlertRef, t Trigger, now time.Time) (Alert, error) {
	if strings.TrimSpace(ref.ParameterID) == "" {
		return Alert{}, fmt.Errorf("%w: parameter_id required", ErrInvalidAlert)
	}
	if t == nil {
		return Alert{}, fmt.Errorf("%w: trigger required", ErrInvalidAlert)
	}
	if rr, ok := t.(RunRuleTrigger); ok && (rr.Rule < 1 || rr.Rule > 4) {
		return Alert{}, fmt.Errorf("%w: rule number %d out of range", ErrInvalidAlert, rr.Rule)
	}
	a := Alert{
		ID:            uuid.NewString(),
		Kind:          t.Kind(),
		ParameterID:   ref.ParameterID,
		MeasurementID: ref.MeasurementID,
		SampleID:      ref.SampleID,
		BatchID:       ref.BatchID,
		Status:        StatusActive,
		CreatedAt:     now.UTC(),
	}
	t.apply(&a)
	return a, nil
}

func (a Alert) Trigger() Trigger {
	switch a.Kind {
	case AlertRunRuleViolation:
		t := RunRuleTrigger{Rule: a.Rule, Threshold: a.ThresholdValue}
		if a.ValueRecorded != nil {
			t.Value = *a.ValueRecorded
		}
		return t
	case AlertOutOfSpec:
		t := OutOfSpecTrigger{}
		if a.ValueRecorded != nil {
			t.Value = *a.ValueRecorded
		}
		if a.ThresholdValue != nil {
			t.Limit = *a.ThresholdValue
		}
		t.Above = t.Value > t.Limit
		return t
	case AlertCpkWarning:
		return CpkWarningTrigger{Cpk: deref(a.CpkValue), Limit: deref(a.ThresholdValue)}
	case AlertCpkCritical:
		return CpkCriticalTrigger{Cpk: deref(a.CpkValue), Limit: deref(a.ThresholdValue)}
	}
	return nil
}

type Transition struct {
	To              AlertStatus
	Actor           string
	At              time.Time
	Notes           string
	NonconformityID string
}

func (t Transition) AllowedFrom() []AlertStatus {
	var out []AlertStatus
	for _, s := range []AlertStatus{StatusActive, StatusAcknowledged, StatusResolved, StatusDismissed} {
		if CanTransition(s, t.To) {
			out = append(out, s)
		}
	}
	return out
}

func (t Transition) Apply(a *Alert) {
	at := t.At.UTC()
	a.Status = t.To
	switch t.To {
	case StatusAcknowledged:
		a.AcknowledgedBy = t.Actor
		a.AcknowledgedAt = &at
	case StatusResolved:
		a.ResolvedBy = t.Actor
		a.ResolvedAt = &at
		a.ResolutionNotes = t.Notes
		a.NonconformityID = t.NonconformityID
	case StatusDismissed:
		a.DismissedBy = t.Actor
		a.DismissedAt = &at
	}
}

type AlertFilter struct {
	Status      AlertStatus
	ParameterID string
	Limit       int
	Offset      int
}

func (f AlertFilter) Match(a Alert) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.ParameterID != "" && a.ParameterID != f.ParameterID {
		return false
	}
	return true
}

type AlertStats struct {
	Active       int `json:"active"`
	Acknowledged int `json:"acknowledged"`
	Resolved     int `json:"resolved"`
	Dismissed    int `json:"dismissed"`
	Critical     int `json:"critical"`
	Total        int `json:"total"`
}

func (s *AlertStats) Count(a Alert) {
	s.Total++
	switch a.Status {
	case StatusActive:
		s.Active++
		if a.Kind == AlertCpkCritical {
			s.Critical++
		}
	case StatusAcknowledged:
		s.Acknowledged++
	case StatusResolved:
		s.Resolved++
	case StatusDismissed:
		s.Dismissed++
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
