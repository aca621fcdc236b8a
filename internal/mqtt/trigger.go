package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/TorusGroup/reunia/internal/config"
	"github.com/TorusGroup/reunia/internal/ingest"
)

// runTimeout bounds an MQTT-triggered run; the broker gives us no deadline
// of its own.
const runTimeout = 30 * time.Minute

// Trigger subscribes to a broker topic and starts ingestion runs from
// trigger messages. The payload is the same RunRequest JSON the CLI
// surface accepts. Malformed payloads are logged and dropped.
type Trigger struct {
	client       pahomqtt.Client
	orchestrator *ingest.Orchestrator
	topic        string
	logger       *zap.Logger
}

func NewTrigger(cfg *config.MQTTConfig, orchestrator *ingest.Orchestrator, logger *zap.Logger) (*Trigger, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := pahomqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Trigger{
		client:       client,
		orchestrator: orchestrator,
		topic:        cfg.Topic,
		logger:       logger,
	}, nil
}

// Start subscribes; runs execute on the paho callback goroutine, which keeps
// triggered runs sequential the same way the CLI surface is.
func (t *Trigger) Start() error {
	token := t.client.Subscribe(t.topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		t.handleMessage(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", t.topic, token.Error())
	}
	t.logger.Info("MQTT trigger subscribed", zap.String("topic", t.topic))
	return nil
}

func (t *Trigger) handleMessage(topic string, payload []byte) {
	var req ingest.RunRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		t.logger.Warn("dropping malformed trigger message",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err))
		return
	}

	// purge over MQTT is not allowed; the confirmation flow is CLI-only
	if req.Purge {
		t.logger.Warn("dropping trigger message requesting purge", zap.String("topic", topic))
		return
	}

	t.logger.Info("run triggered via MQTT",
		zap.String("source", req.Source), zap.Int("max_pages", req.MaxPages))

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	report := t.orchestrator.Run(ctx, req)

	for _, s := range report.Summaries {
		t.logger.Info("triggered run summary",
			zap.String("source", string(s.Source)),
			zap.String("run_id", s.RunID),
			zap.String("status", string(s.Status)),
			zap.Int("fetched", s.Counters.Fetched),
			zap.Int("inserted", s.Counters.Inserted),
			zap.Int("updated", s.Counters.Updated),
			zap.Int("skipped", s.Counters.Skipped),
			zap.Int("failed", s.Counters.Failed),
		)
	}
}

// Close disconnects from the broker.
func (t *Trigger) Close() {
	t.client.Disconnect(250)
}
