package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"spcguard/internal/model"
)

type createAlertRequest struct {
	ParameterID    string   `json:"parameter_id" validate:"required"`
	MeasurementID  string   `json:"measurement_id"`
	SampleID       string   `json:"sample_id"`
	BatchID        string   `json:"batch_id"`
	AlertType      string   `json:"alert_type" validate:"required,oneof=run_rule_violation out_of_spec cpk_warning cpk_critical"`
	RuleNumber     int      `json:"rule_number" validate:"gte=0,lte=4"`
	Description    string   `json:"description"`
	ValueRecorded  *float64 `json:"value_recorded"`
	ThresholdValue *float64 `json:"threshold_value"`
	CpkValue       *float64 `json:"cpk_value"`
}

type transitionRequest struct {
	Actor           string `json:"actor" validate:"required"`
	Notes           string `json:"notes"`
	NonconformityID string `json:"nonconformity_id"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return s.validate.Struct(dst)
}

// trigger turns the request into the matching alert variant. Cpk alerts
// without an explicit threshold use the configured limit.
func (s *Server) trigger(req createAlertRequest) (model.Trigger, error) {
	cfg := s.cfg.Get()
	switch model.AlertKind(req.AlertType) {
	case model.AlertRunRuleViolation:
		if req.ValueRecorded == nil {
			return nil, fmt.Errorf("%w: value_recorded required", errBadRequest)
		}
		return model.RunRuleTrigger{
			Rule:        req.RuleNumber,
			Description: req.Description,
			Value:       *req.ValueRecorded,
			Threshold:   req.ThresholdValue,
		}, nil
	case model.AlertOutOfSpec:
		if req.ValueRecorded == nil || req.ThresholdValue == nil {
			return nil, fmt.Errorf("%w: value_recorded and threshold_value required", errBadRequest)
		}
		return model.OutOfSpecTrigger{
			Value: *req.ValueRecorded,
			Limit: *req.ThresholdValue,
			Above: *req.ValueRecorded > *req.ThresholdValue,
		}, nil
	case model.AlertCpkWarning, model.AlertCpkCritical:
		if req.CpkValue == nil {
			return nil, fmt.Errorf("%w: cpk_value required", errBadRequest)
		}
		if req.AlertType == string(model.AlertCpkWarning) {
			limit := cfg.SPC.CpkWarning
			if req.ThresholdValue != nil {
				limit = *req.ThresholdValue
			}
			return model.CpkWarningTrigger{Cpk: *req.CpkValue, Limit: limit}, nil
		}
		limit := cfg.SPC.CpkCritical
		if req.ThresholdValue != nil {
			limit = *req.ThresholdValue
		}
		return model.CpkCriticalTrigger{Cpk: *req.CpkValue, Limit: limit}, nil
	}
	return nil, fmt.Errorf("%w: unknown alert_type %q", errBadRequest, req.AlertType)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.trigger(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	alert, err := s.svc.CreateAlert(r.Context(), model.AlertRef{
		ParameterID:   req.ParameterID,
		MeasurementID: req.MeasurementID,
		SampleID:      req.SampleID,
		BatchID:       req.BatchID,
	}, t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := intParam(q, "offset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, total, err := s.svc.ListAlerts(r.Context(), model.AlertFilter{
		Status:      model.AlertStatus(q.Get("status")),
		ParameterID: q.Get("parameter_id"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
		"total":  total,
	})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.svc.GetAlert(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.AlertStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	if action != "acknowledge" && action != "resolve" && action != "dismiss" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var req transitionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	var (
		alert model.Alert
		err   error
	)
	switch action {
	case "acknowledge":
		alert, err = s.svc.Acknowledge(r.Context(), id, req.Actor)
	case "resolve":
		alert, err = s.svc.Resolve(r.Context(), id, req.Actor, req.Notes, req.NonconformityID)
	case "dismiss":
		alert, err = s.svc.Dismiss(r.Context(), id, req.Actor)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
