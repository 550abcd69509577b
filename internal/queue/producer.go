package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/fdsender/internal/models"
)

const (
	IngestStreamName  = "INGEST"
	IngestSubjectBase = "ingest"
	SentStreamName    = "SENT"
	SentSubjectBase   = "sender.sent"
)

func IngestSubject(base models.Base) string {
	return IngestSubjectBase + "." + string(base)
}

func SentSubject(cameraID int64) string {
	return fmt.Sprintf("%s.%d", SentSubjectBase, cameraID)
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        IngestStreamName,
			Subjects:    []string{IngestSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Duplicates:  time.Minute,
			Description: "Accepted objects waiting for the indexer",
		},
		{
			Name:        SentStreamName,
			Subjects:    []string{SentSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Description: "Batches dispatched by senders",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure nats stream, retrying", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured nats stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

// PublishIngest hands an accepted object to the indexer. The task id doubles
// as the JetStream dedup id.
func (p *Producer) PublishIngest(ctx context.Context, task models.IngestTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal ingest task: %w", err)
	}
	if _, err := p.js.Publish(ctx, IngestSubject(task.Base), payload, jetstream.WithMsgID(task.TaskID.String())); err != nil {
		return fmt.Errorf("publish ingest task: %w", err)
	}
	return nil
}

// PublishSent announces a dispatched batch.
func (p *Producer) PublishSent(ctx context.Context, notice models.SentNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal sent notice: %w", err)
	}
	if _, err := p.js.Publish(ctx, SentSubject(notice.CameraID), payload); err != nil {
		return fmt.Errorf("publish sent notice: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the INGEST stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, IngestStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping(context.Context) error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
