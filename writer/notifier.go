package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "priceflow/config"
	"priceflow/logger"
	"priceflow/models"
)

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RunNotifier publishes one message per finished run.
type RunNotifier struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	log     *logger.Log
}

type runEvent struct {
	Event   string             `json:"event"`
	Status  string             `json:"status"`
	Summary *models.RunSummary `json:"summary"`
}

func NewRunNotifier(cfg appconfig.KafkaConfig) (*RunNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	n := NewRunNotifierWithWriter(w, cfg)
	n.log.WithComponent("notifier").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Debug("kafka notifier initialized")
	return n, nil
}

func NewRunNotifierWithWriter(w MessageWriter, cfg appconfig.KafkaConfig) *RunNotifier {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RunNotifier{
		writer:  w,
		topic:   cfg.Topic,
		timeout: timeout,
		log:     logger.GetLogger(),
	}
}

// RunStatus is "ok" when every symbol succeeded, "partial" otherwise.
func RunStatus(summary *models.RunSummary) string {
	if summary.HasFailures() {
		return "partial"
	}
	return "ok"
}

// Notify publishes summary keyed by run ID.
func (n *RunNotifier) Notify(ctx context.Context, summary *models.RunSummary) error {
	status := RunStatus(summary)
	value, err := json.Marshal(runEvent{Event: "price_ingestion_run", Status: status, Summary: summary})
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(summary.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(status)},
		},
		Time: summary.FinishedAt,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run %s: %w", summary.RunID, err)
	}

	n.log.WithComponent("notifier").WithFields(logger.Fields{
		"run_id": summary.RunID,
		"topic":  n.topic,
		"status": status,
	}).Info("run summary published")
	return nil
}

func (n *RunNotifier) Close() error {
	return n.writer.Close()
}
