// Package kafkafeed implements a supplementary market-data gateway for
// venues that publish normalized order-book deltas to Kafka/Redpanda
// rather than a direct exchange WebSocket feed: it consumes a topic set
// with franz-go, rate-limits the resulting flow, and pushes ORDER_BOOK
// envelopes onto the backbone's ingress fan-in. Ported in spirit from
// adred-codev-ws_poc's ws/kafka consumer, adapted to the ingress-push
// role instead of browser broadcast.
package kafkafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/odin-trading/sequencer/internal/config"
	"github.com/odin-trading/sequencer/internal/envelope"
	"github.com/odin-trading/sequencer/internal/logging"
	"github.com/odin-trading/sequencer/internal/metrics"
	"github.com/odin-trading/sequencer/internal/ratelimit"
	"github.com/odin-trading/sequencer/internal/transport"
)

// bookDelta is the normalized order-book record this feed expects on
// its topics: one record per symbol snapshot.
type bookDelta struct {
	Symbol    string              `json:"symbol"`
	Timestamp int64               `json:"timestamp"`
	Bids      []envelope.PriceLevel `json:"bids"`
	Asks      []envelope.PriceLevel `json:"asks"`
}

// Consumer wraps a franz-go client consuming a fixed topic set and
// republishing normalized order books onto the ingress fan-in.
type Consumer struct {
	cfg    config.KafkaFeedConfig
	conn   *transport.Conn
	client *kgo.Client
	log    zerolog.Logger

	limiter *ratelimit.OrderLimiter // doubles as a generic token-bucket limiter for inbound message rate
	metrics *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	processed atomic.Uint64
	dropped   atomic.Uint64
}

// New builds a Consumer. Call Start to connect to the Kafka/Redpanda
// cluster and begin consuming.
func New(cfg config.KafkaFeedConfig, conn *transport.Conn, reg *metrics.Registry, log zerolog.Logger) (*Consumer, error) {
	brokers := splitAndTrim(cfg.KafkaBrokers)
	topics := splitAndTrim(cfg.Topics)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafkafeed: at least one broker is required")
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("kafkafeed: at least one topic is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(10*1024*1024),
		kgo.SessionTimeout(30*time.Second),
		kgo.RebalanceTimeout(60*time.Second),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			log.Info().Interface("partitions", assigned).Msg("partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			log.Info().Interface("partitions", revoked).Msg("partitions revoked")
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("kafkafeed: create client: %w", err)
	}

	limit := float64(cfg.MaxMessagesPerSec)
	if limit <= 0 {
		limit = 2000
	}
	return &Consumer{
		cfg:     cfg,
		conn:    conn,
		client:  client,
		log:     log,
		limiter: ratelimit.NewOrderLimiter(limit, int(limit)),
		metrics: reg,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the consume loop in its own goroutine.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.consumeLoop()
}

// Stop cancels the consume loop, waits for it to exit, and closes the
// underlying client.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
	c.client.Close()
	c.log.Info().
		Uint64("messages_processed", c.processed.Load()).
		Uint64("messages_dropped", c.dropped.Load()).
		Msg("kafka feed consumer stopped")
}

func (c *Consumer) consumeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		fetches := c.client.PollFetches(c.ctx)
		for _, err := range fetches.Errors() {
			c.log.Error().Err(err.Err).Str("topic", err.Topic).Int32("partition", err.Partition).Msg("fetch error")
		}
		fetches.EachRecord(func(record *kgo.Record) {
			c.processRecord(record)
		})
	}
}

func (c *Consumer) processRecord(record *kgo.Record) {
	defer logging.RecoverPanic(c.log, "kafkafeed-consumer", map[string]any{"topic": record.Topic})

	if !c.limiter.Allow() {
		c.dropped.Add(1)
		return
	}

	var delta bookDelta
	if err := json.Unmarshal(record.Value, &delta); err != nil {
		c.log.Error().Err(err).Str("topic", record.Topic).Msg("failed to unmarshal book delta")
		c.dropped.Add(1)
		return
	}

	env := envelope.Envelope{
		MsgType:  envelope.MsgOrderBook,
		Exchange: c.cfg.Exchange,
		Symbol:   delta.Symbol,
		Data: envelope.OrderBookData{
			Timestamp: delta.Timestamp,
			Bids:      delta.Bids,
			Asks:      delta.Asks,
		},
	}
	encoded, err := envelope.Encode(env)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode order book envelope")
		c.dropped.Add(1)
		return
	}
	if err := transport.Push(c.conn, transport.IngressSubject, encoded); err != nil {
		c.log.Error().Err(err).Msg("failed to push order book envelope")
		c.metrics.TransportErrors.Inc()
		c.dropped.Add(1)
		return
	}
	c.processed.Add(1)
	c.metrics.MessagesIngested.Inc()
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
