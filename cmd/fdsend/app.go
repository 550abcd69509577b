package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/your-org/fdsender/internal/client"
	"github.com/your-org/fdsender/internal/config"
	"github.com/your-org/fdsender/internal/factory"
	"github.com/your-org/fdsender/internal/models"
	"github.com/your-org/fdsender/internal/observability"
	"github.com/your-org/fdsender/internal/queue"
	"github.com/your-org/fdsender/internal/sender"
	"github.com/your-org/fdsender/internal/storage"
)

// app lazily builds the sender the first time a subcommand needs it.
// Tests preset sender to skip config and network setup.
type app struct {
	configPath string

	cfg      *config.Config
	sender   *sender.Sender
	producer *queue.Producer
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	return cfg, nil
}

func (a *app) load() (*sender.Sender, error) {
	if a.sender != nil {
		return a.sender, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	images, err := imageSource(cfg)
	if err != nil {
		return nil, err
	}
	s := sender.New(cfg, client.New(cfg.Backend), images)

	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		s.SetNotifier(producer)
		a.producer = producer
	}

	a.sender = s
	return s, nil
}

func (a *app) close() {
	if a.producer != nil {
		a.producer.Close()
	}
}

func imageSource(cfg *config.Config) (factory.ImageSource, error) {
	if cfg.Sender.TemplatesBucket == "" {
		return factory.DirSource{Dir: cfg.Sender.TemplatesDir}, nil
	}
	bucket, err := storage.NewMinIOStoreForBucket(cfg.MinIO, cfg.Sender.TemplatesBucket)
	if err != nil {
		return nil, err
	}
	return factory.BucketSource{Store: bucket}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// parseConditions reads "template=count" arguments.
func parseConditions(args []string) (map[string]int, error) {
	conditions := make(map[string]int, len(args))
	for _, arg := range args {
		tpl, n, ok := strings.Cut(arg, "=")
		if !ok || tpl == "" {
			return nil, fmt.Errorf("condition %q: want template=count", arg)
		}
		count, err := strconv.Atoi(n)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", arg, err)
		}
		conditions[tpl] = count
	}
	return conditions, nil
}

// parseMetadata reads "key=value" flags. Integers and booleans keep their
// type on the wire.
func parseMetadata(pairs []string) (*models.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	raw := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("metadata %q: want key=value", pair)
		}
		if n, err := strconv.Atoi(v); err == nil {
			raw[k] = n
		} else if b, err := strconv.ParseBool(v); err == nil {
			raw[k] = b
		} else {
			raw[k] = v
		}
	}
	meta, err := models.MetadataFromMap(raw)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}
