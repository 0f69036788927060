package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spcguard/internal/metrics"
	"spcguard/internal/model"
)

func (e *Engine) CreateAlert(ctx context.Context, ref model.AlertRef, t model.Trigger) (model.Alert, error) {
	if _, err := e.catalog.Lookup(ref.ParameterID); err != nil {
		return model.Alert{}, err
	}
	alert, err := model.NewAlert(ref, t, e.now())
	if err != nil {
		return model.Alert{}, err
	}
	inserted, err := e.alerts.CreateAlerts(ctx, []model.Alert{alert})
	if err != nil {
		return model.Alert{}, err
	}
	if len(inserted) == 0 {
		return model.Alert{}, fmt.Errorf("%w: %s", model.ErrDuplicateAlert, alert.IdempotencyKey())
	}
	metrics.AlertsCreated.WithLabelValues(string(alert.Kind)).Inc()
	if e.logger != nil {
		e.logger.Warn("alert created",
			"parameter_id", alert.ParameterID,
			"kind", alert.Kind,
			"rule", alert.Rule,
			"measurement_id", alert.MeasurementID,
		)
	}
	e.publish(ctx, inserted)
	return inserted[0], nil
}

func (e *Engine) Acknowledge(ctx context.Context, id, actor string) (model.Alert, error) {
	return e.transition(ctx, id, model.Transition{To: model.StatusAcknowledged, Actor: actor})
}

// Resolve closes an active or acknowledged alert. nonconformityID links the
// downstream nonconformity record and may be empty.
func (e *Engine) Resolve(ctx context.Context, id, actor, notes, nonconformityID string) (model.Alert, error) {
	return e.transition(ctx, id, model.Transition{
		To:              model.StatusResolved,
		Actor:           actor,
		Notes:           notes,
		NonconformityID: nonconformityID,
	})
}

func (e *Engine) Dismiss(ctx context.Context, id, actor string) (model.Alert, error) {
	return e.transition(ctx, id, model.Transition{To: model.StatusDismissed, Actor: actor})
}

func (e *Engine) transition(ctx context.Context, id string, t model.Transition) (model.Alert, error) {
	if strings.TrimSpace(t.Actor) == "" {
		return model.Alert{}, fmt.Errorf("%w: actor required", model.ErrInvalidAlert)
	}
	t.At = e.now()
	alert, err := e.alerts.Transition(ctx, id, t)
	if err != nil {
		if e.logger != nil && errors.Is(err, model.ErrInvalidTransition) {
			e.logger.Info("alert transition rejected", "alert_id", id, "status", t.To, "actor", t.Actor)
		}
		return model.Alert{}, err
	}
	metrics.AlertTransitions.WithLabelValues(string(t.To)).Inc()
	if e.logger != nil {
		e.logger.Info("alert transitioned", "alert_id", id, "status", t.To, "actor", t.Actor)
	}
	return alert, nil
}

func (e *Engine) GetAlert(ctx context.Context, id string) (model.Alert, error) {
	return e.alerts.Get(ctx, id)
}

func (e *Engine) ListAlerts(ctx context.Context, f model.AlertFilter) ([]model.Alert, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", model.ErrInvalidAlert, f.Status)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, 0, fmt.Errorf("%w: negative limit or offset", model.ErrInvalidAlert)
	}
	return e.alerts.List(ctx, f)
}

func (e *Engine) ActiveAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	out, _, err := e.ListAlerts(ctx, model.AlertFilter{Status: model.StatusActive, Limit: limit})
	return out, err
}

func (e *Engine) AlertStats(ctx context.Context) (model.AlertStats, error) {
	return e.alerts.Stats(ctx)
}
