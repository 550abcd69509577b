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

type TaskHandler func(ctx context.Context, task models.IngestTask) error

type SentHandler func(ctx context.Context, notice models.SentNotice) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeIngest starts consuming ingest tasks from the INGEST stream.
// workerCount determines how many goroutines process messages concurrently.
func (c *Consumer) ConsumeIngest(ctx context.Context, consumerName string, handler TaskHandler, workerCount int) error {
	if workerCount < 1 {
		workerCount = 1
	}
	stream, err := c.js.Stream(ctx, IngestStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", IngestStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    maxDeliver,
		FilterSubject: IngestSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)
	go fetchLoop(ctx, cons, workerCount, msgCh)

	for i := range workerCount {
		go func(workerID int) {
			for msg := range msgCh {
				task, err := decodeTask(msg.Data())
				if err != nil {
					drop(msg, err)
					continue
				}
				settle(msg, handler(ctx, task), "worker", workerID)
			}
		}(i)
	}

	slog.Info("ingest consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeSent follows sent notices published from now on. An empty
// cameraID set follows every camera.
func (c *Consumer) ConsumeSent(ctx context.Context, handler SentHandler, cameraIDs ...int64) error {
	stream, err := c.js.Stream(ctx, SentStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", SentStreamName, err)
	}

	filters := []string{SentSubjectBase + ".>"}
	if len(cameraIDs) > 0 {
		filters = filters[:0]
		for _, id := range cameraIDs {
			filters = append(filters, SentSubject(id))
		}
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		AckPolicy:      jetstream.AckExplicitPolicy,
		AckWait:        10 * time.Second,
		DeliverPolicy:  jetstream.DeliverNewPolicy,
		FilterSubjects: filters,
	})
	if err != nil {
		return fmt.Errorf("create sent consumer: %w", err)
	}

	msgCh := make(chan jetstream.Msg, 20)
	go fetchLoop(ctx, cons, 10, msgCh)
	go func() {
		for msg := range msgCh {
			notice, err := decodeNotice(msg.Data())
			if err != nil {
				drop(msg, err)
				continue
			}
			settle(msg, handler(ctx, notice))
		}
	}()

	slog.Info("sent consumer started", "subjects", filters)
	return nil
}

func fetchLoop(ctx context.Context, cons jetstream.Consumer, batchSize int, msgCh chan<- jetstream.Msg) {
	defer close(msgCh)
	for {
		if ctx.Err() != nil {
			return
		}

		batch, err := cons.Fetch(batchSize, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("fetch messages", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for msg := range batch.Messages() {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func settle(msg jetstream.Msg, err error, attrs ...any) {
	if err != nil {
		slog.Error("process message", append(attrs, "error", err, "subject", msg.Subject())...)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// drop terminates a message that can never be processed.
func drop(msg jetstream.Msg, err error) {
	slog.Error("drop message", "error", err, "subject", msg.Subject())
	_ = msg.Term()
}

func decodeTask(data []byte) (models.IngestTask, error) {
	var task models.IngestTask
	if err := json.Unmarshal(data, &task); err != nil {
		return models.IngestTask{}, fmt.Errorf("decode ingest task: %w", err)
	}
	return task, nil
}

func decodeNotice(data []byte) (models.SentNotice, error) {
	var notice models.SentNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		return models.SentNotice{}, fmt.Errorf("decode sent notice: %w", err)
	}
	return notice, nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
