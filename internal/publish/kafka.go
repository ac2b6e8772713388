// Package publish streams collected locations to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"

	"github.com/sells-group/storemap/internal/model"
)

// Publisher delivers a batch of locations.
type Publisher interface {
	Publish(ctx context.Context, locs []model.Location) error
	Close() error
}

// Config configures the Kafka sink. An empty broker list disables publishing.
type Config struct {
	Brokers   []string `yaml:"brokers" mapstructure:"brokers"`
	Topic     string   `yaml:"topic" mapstructure:"topic"`
	BatchSize int      `yaml:"batch_size" mapstructure:"batch_size"`
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per location, keyed by source and match key
// so updates to a store land on the same partition.
type Kafka struct {
	w     messageWriter
	batch int
}

// Open returns nil when no brokers are configured.
func Open(cfg Config) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Topic == "" {
		return nil, eris.New("publish: topic is required")
	}
	return NewKafka(cfg), nil
}

// NewKafka creates a synchronous writer for cfg.Topic.
func NewKafka(cfg Config) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newKafka(w, cfg.BatchSize)
}

func newKafka(w messageWriter, batch int) *Kafka {
	if batch <= 0 {
		batch = 500
	}
	return &Kafka{w: w, batch: batch}
}

// Publish writes locs in batches.
func (k *Kafka) Publish(ctx context.Context, locs []model.Location) error {
	msgs := make([]kafka.Message, 0, min(len(locs), k.batch))
	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := k.w.WriteMessages(ctx, msgs...); err != nil {
			return eris.Wrapf(err, "publish: write %d messages", len(msgs))
		}
		msgs = msgs[:0]
		return nil
	}

	for _, l := range locs {
		msg, err := message(l)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == k.batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return eris.Wrap(k.w.Close(), "publish: close writer")
}

func message(l model.Location) (kafka.Message, error) {
	value, err := json.Marshal(l)
	if err != nil {
		return kafka.Message{}, eris.Wrap(err, "publish: encode location")
	}
	return kafka.Message{
		Key:   []byte(l.Source + "/" + l.Address.MatchKey()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(l.Source)},
			{Key: "chain", Value: []byte(l.Chain)},
		},
	}, nil
}
