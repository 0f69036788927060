package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcguard/internal/model"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newAlert(t *testing.T, param string) model.Alert {
	t.Helper()
	a, err := model.NewAlert(model.AlertRef{ParameterID: param, MeasurementID: "m-1"},
		model.CpkCriticalTrigger{Cpk: 0.5, Limit: 0.67}, time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return a
}

func TestPublishBuildsKeyedMessages(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	alerts := []model.Alert{newAlert(t, "ph"), newAlert(t, "brix")}
	require.NoError(t, p.Publish(context.Background(), alerts))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "ph", string(w.msgs[0].Key))
	assert.Equal(t, "brix", string(w.msgs[1].Key))
	assert.Equal(t, "cpk_critical", string(w.msgs[0].Headers[0].Value))

	var ev struct {
		Event string      `json:"event"`
		Alert model.Alert `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "alert_created", ev.Event)
	assert.Equal(t, alerts[0].ID, ev.Alert.ID)
	assert.Equal(t, model.StatusActive, ev.Alert.Status)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w}
	require.NoError(t, p.Publish(context.Background(), nil))
	err := p.Publish(context.Background(), []model.Alert{newAlert(t, "ph")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
