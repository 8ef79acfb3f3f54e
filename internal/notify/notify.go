package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kversion"
	"github.com/twmb/franz-go/pkg/sasl/aws"

	"github.com/sentimetry/pipeline/internal/metrics"
)

// RunEvent is the JSON record published after each finished partition run.
// Downstream dashboard refreshers key on it instead of polling the lake.
type RunEvent struct {
	Date           string    `json:"date"`
	Status         string    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	DurationMs     int64     `json:"duration_ms"`
	RawCount       int64     `json:"raw_count"`
	ProcessedCount int64     `json:"processed_count"`
	MalformedCount int64     `json:"malformed_count"`
	FilteredCount  int64     `json:"filtered_count"`
	Error          string    `json:"error,omitempty"`
}

type Config struct {
	Logger  *slog.Logger
	Brokers []string
	Topic   string
	AuthIAM bool

	Partitions  int
	Replication int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if len(c.Brokers) == 0 {
		return errors.New("brokers are required")
	}
	if c.Topic == "" {
		return errors.New("topic is required")
	}
	if c.Partitions == 0 {
		c.Partitions = 1
	}
	if c.Replication == 0 {
		c.Replication = 1
	}
	return nil
}

// Publisher produces run events to Kafka. Publishing is asynchronous and
// best-effort: a broker outage never blocks or fails the pipeline.
type Publisher struct {
	log    *slog.Logger
	cfg    *Config
	client *kgo.Client
}

func NewPublisher(ctx context.Context, cfg *Config) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(1 * time.Second),
		kgo.MaxVersions(kversion.V2_8_0()),
	}

	if cfg.AuthIAM {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		opts = append(opts, kgo.SASL(aws.ManagedStreamingIAM(func(ctx context.Context) (aws.Auth, error) {
			creds, err := awsCfg.Credentials.Retrieve(ctx)
			if err != nil {
				return aws.Auth{}, err
			}
			return aws.Auth{
				AccessKey:    creds.AccessKeyID,
				SecretKey:    creds.SecretAccessKey,
				SessionToken: creds.SessionToken,
			}, nil
		})))
		opts = append(opts, kgo.DialTLS())
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	p := &Publisher{log: cfg.Logger, cfg: cfg, client: client}
	if err := p.ensureTopic(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureTopic(ctx context.Context) error {
	adm := kadm.NewClient(p.client)
	_, err := adm.CreateTopic(
		ctx,
		int32(p.cfg.Partitions),
		int16(p.cfg.Replication),
		nil,
		p.cfg.Topic,
	)
	if err != nil {
		if strings.Contains(err.Error(), "TOPIC_ALREADY_EXISTS") {
			return nil
		}
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

// PublishRun produces one run event, keyed by partition date so consumers
// see per-partition ordering. Delivery errors are logged and counted only.
func (p *Publisher) PublishRun(ctx context.Context, event RunEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("notify: failed to marshal run event", "date", event.Date, "error", err)
		metrics.RunEventProduceOutcomes.WithLabelValues("error").Inc()
		return
	}

	rec := &kgo.Record{Topic: p.cfg.Topic, Key: []byte(event.Date), Value: payload}
	p.client.Produce(ctx, rec, func(r *kgo.Record, err error) {
		if err != nil {
			metrics.RunEventProduceOutcomes.WithLabelValues("error").Inc()
			p.log.Error("notify: failed to produce run event",
				"error", err, "date", event.Date,
				"topic", r.Topic, "partition", r.Partition, "offset", r.Offset,
			)
			return
		}
		metrics.RunEventProduceOutcomes.WithLabelValues("ok").Inc()
		p.log.Debug("notify: produced run event",
			"date", event.Date, "topic", r.Topic, "partition", r.Partition, "offset", r.Offset,
		)
	})
}

// Flush drains in-flight produce callbacks, for shutdown.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

func (p *Publisher) Close() {
	p.client.Close()
}
