package writer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "priceflow/config"
	"priceflow/models"
)

type fakeMessageWriter struct {
	msgs     []kafka.Message
	deadline bool
	err      error
	closed   bool
}

func (f *fakeMessageWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeMessageWriter) Close() error {
	f.closed = true
	return nil
}

func finishedSummary() *models.RunSummary {
	s := models.NewRunSummary("run-42", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	s.RecordSuccess("AAPL", 100)
	s.RecordFailure("MSFT", models.FailureRateLimited, "quota")
	s.FinishedAt = s.StartedAt.Add(30 * time.Second)
	return s
}

func TestNotifyPublishesSummaryKeyedByRunID(t *testing.T) {
	w := &fakeMessageWriter{}
	n := NewRunNotifierWithWriter(w, appconfig.KafkaConfig{Topic: "priceflow.runs"})

	require.NoError(t, n.Notify(context.Background(), finishedSummary()))
	require.Len(t, w.msgs, 1)
	assert.True(t, w.deadline)

	msg := w.msgs[0]
	assert.Equal(t, "run-42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "partial", string(msg.Headers[0].Value))

	var event struct {
		Event   string            `json:"event"`
		Status  string            `json:"status"`
		Summary models.RunSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "price_ingestion_run", event.Event)
	assert.Equal(t, "partial", event.Status)
	assert.Equal(t, 100, event.Summary.TotalRows)
	assert.Equal(t, []string{"MSFT"}, event.Summary.FailedSymbols())
}

func TestNotifyWrapsWriterError(t *testing.T) {
	w := &fakeMessageWriter{err: errors.New("broker unavailable")}
	n := NewRunNotifierWithWriter(w, appconfig.KafkaConfig{Topic: "priceflow.runs", WriteTimeout: time.Second})

	err := n.Notify(context.Background(), finishedSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-42")
	assert.Contains(t, err.Error(), "broker unavailable")
}

func TestRunStatus(t *testing.T) {
	ok := models.NewRunSummary("r", time.Now())
	ok.RecordSuccess("AAPL", 1)
	assert.Equal(t, "ok", RunStatus(ok))
	assert.Equal(t, "partial", RunStatus(finishedSummary()))
}

func TestNewRunNotifierRequiresBrokers(t *testing.T) {
	_, err := NewRunNotifier(appconfig.KafkaConfig{Topic: "t"})
	assert.Error(t, err)

	n, err := NewRunNotifier(appconfig.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.NoError(t, n.Close())
}
