// Command dlq-reprocess переигрывает события из DLQ обратно в исходный topic.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
	"github.com/vladislavdragonenkov/ordersvc/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	envKafkaBrokers = "ORDERS_KAFKA_BROKERS"
)

var (
	errNotDeadLetter = errors.New("message is not a dead letter envelope")
	errEmptyLetter   = errors.New("dead letter does not contain original value")
	errInvalidEvent  = errors.New("original event is not replayable")
)

type envLookup func(string) (string, bool)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	onlyTopic   string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// replayMessage: восстановленное исходное сообщение. dedupKey пуст, когда
// письмо нельзя отождествить с уже переигранным.
type replayMessage struct {
	topic    string
	key      string
	value    []byte
	dedupKey string
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return a.consumer.ConsumePartition(topic, partition, offset)
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// replayDeps: Kafka-клиенты одного запуска; producer есть только в execute-режиме.
type replayDeps struct {
	offsets  offsetClient
	consumer partitionConsumerSource
	producer replayProducer
}

func (d replayDeps) Close() {
	if d.producer != nil {
		_ = d.producer.Close()
	}
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.offsets != nil {
		_ = d.offsets.Close()
	}
}

var newReplayDeps = func(cfg config) (replayDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps := replayDeps{offsets: client, consumer: saramaConsumerAdapter{consumer: consumer}}
	if !cfg.execute {
		return deps, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		deps.Close()
		return replayDeps{}, fmt.Errorf("create kafka producer: %w", err)
	}
	deps.producer = producer
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, lookup envLookup) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOwnerEvents, "fallback topic when a letter has no original topic")
	fs.StringVar(&cfg.onlyTopic, "only-topic", "", "replay only letters bound for this topic (default: all)")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" && lookup != nil {
		brokersRaw, _ = lookup(envKafkaBrokers)
	}

	cfg.brokers = parseBrokers(brokersRaw)
	cfg.onlyTopic = strings.TrimSpace(cfg.onlyTopic)
	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	deps, err := newReplayDeps(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	r, err := newReplayer(cfg, deps, log.WithField("component", "dlq-reprocess"))
	if err != nil {
		return err
	}
	report, err := r.run(ctx)
	if err != nil {
		return err
	}
	report.log(r.logger, cfg.execute)
	return nil
}

// verdict: решение по одному письму из DLQ.
type verdict string

const (
	verdictReplay    verdict = "replayed"
	verdictForeign   verdict = "foreign"
	verdictInvalid   verdict = "invalid"
	verdictFiltered  verdict = "filtered"
	verdictDuplicate verdict = "duplicate"
)

type replayReport struct {
	scanned  int
	verdicts map[verdict]int
	topics   map[string]int
}

func (r replayReport) count(v verdict) int { return r.verdicts[v] }

func (r replayReport) log(logger *log.Entry, execute bool) {
	mode := "dry-run"
	if execute {
		mode = "execute"
	}
	fields := log.Fields{"mode": mode, "scanned": r.scanned}
	for v, n := range r.verdicts {
		fields[string(v)] = n
	}
	for topic, n := range r.topics {
		fields["topic."+topic] = n
	}
	logger.WithFields(fields).Info("dlq replay finished")
}

// partitionWindow: полуинтервал смещений [start, end), который будет прочитан.
type partitionWindow struct {
	partition  int32
	start, end int64
}

func (w partitionWindow) empty() bool { return w.end <= w.start }

type replayer struct {
	cfg    config
	deps   replayDeps
	logger *log.Entry
	seen   map[string]struct{}
	report replayReport
}

func newReplayer(cfg config, deps replayDeps, logger *log.Entry) (*replayer, error) {
	if deps.offsets == nil || deps.consumer == nil {
		return nil, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && deps.producer == nil {
		return nil, fmt.Errorf("producer is required in execute mode")
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &replayer{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		seen:   make(map[string]struct{}),
		report: replayReport{verdicts: make(map[verdict]int), topics: make(map[string]int)},
	}, nil
}

// run обходит партиции DLQ по возрастанию номера, пока не исчерпан лимит.
func (r *replayer) run(ctx context.Context) (replayReport, error) {
	r.logger.WithFields(log.Fields{
		"source_topic": r.cfg.sourceTopic,
		"only_topic":   r.cfg.onlyTopic,
		"limit":        r.cfg.limit,
		"execute":      r.cfg.execute,
		"from_newest":  r.cfg.fromNewest,
	}).Info("starting dlq replay")

	partitions, err := r.deps.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return r.report, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return r.report, nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - r.report.scanned
		if budget <= 0 {
			break
		}
		w, err := r.window(partition, budget)
		if err != nil {
			return r.report, err
		}
		if w.empty() {
			continue
		}
		if err := r.drain(ctx, w); err != nil {
			return r.report, err
		}
	}
	return r.report, nil
}

// window выбирает диапазон смещений партиции. Режим from-newest берёт
// последние budget сообщений.
func (r *replayer) window(partition int32, budget int) (partitionWindow, error) {
	oldest, err := r.deps.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return partitionWindow{}, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.deps.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return partitionWindow{}, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}

	w := partitionWindow{partition: partition, start: oldest, end: newest}
	if r.cfg.fromNewest {
		w.start = max(oldest, newest-int64(budget))
	}
	return w, nil
}

// drain читает окно до его конца, исчерпания лимита или простоя партиции.
func (r *replayer) drain(ctx context.Context, w partitionWindow) error {
	pc, err := r.deps.consumer.ConsumePartition(r.cfg.sourceTopic, w.partition, w.start)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", w.partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for r.report.scanned < r.cfg.limit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", w.partition).Debug("partition idle, moving on")
			return nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return fmt.Errorf("partition %d consumer error: %w", w.partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= w.end {
				return nil
			}
			idle.Reset(r.cfg.idleTimeout)

			r.report.scanned++
			if err := r.handle(msg); err != nil {
				return err
			}
			if msg.Offset+1 >= w.end {
				return nil
			}
		}
	}
	return nil
}

// handle выносит вердикт по письму и в execute-режиме публикует его.
// Ошибкой считается только сбой отправки.
func (r *replayer) handle(msg *sarama.ConsumerMessage) error {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	replay, err := restoreLetter(msg, r.cfg.targetTopic)
	switch {
	case errors.Is(err, errNotDeadLetter):
		r.report.verdicts[verdictForeign]++
		return nil
	case err != nil:
		r.report.verdicts[verdictInvalid]++
		entry.WithError(err).Warn("skip unreplayable dlq message")
		return nil
	}

	if r.cfg.onlyTopic != "" && replay.topic != r.cfg.onlyTopic {
		r.report.verdicts[verdictFiltered]++
		return nil
	}
	if replay.dedupKey != "" {
		if _, dup := r.seen[replay.dedupKey]; dup {
			r.report.verdicts[verdictDuplicate]++
			entry.WithField("dedup_key", replay.dedupKey).Debug("skip duplicate dlq message")
			return nil
		}
		r.seen[replay.dedupKey] = struct{}{}
	}

	entry = entry.WithFields(log.Fields{"target_topic": replay.topic, "key": replay.key})
	if r.cfg.execute {
		if err := publishReplay(r.deps.producer, replay); err != nil {
			return fmt.Errorf("publish replay message (partition %d offset %d): %w", msg.Partition, msg.Offset, err)
		}
		entry.Info("dlq message replayed")
	} else {
		entry.Info("dlq replay candidate")
	}
	r.report.verdicts[verdictReplay]++
	r.report.topics[replay.topic]++
	return nil
}

func publishReplay(producer replayProducer, msg replayMessage) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// restoreLetter достаёт исходное сообщение из конверта DLQ. События,
// адресованные topic владельцев или заказов, проверяются на декодируемость,
// чтобы не возвращать в поток заведомо битые данные.
func restoreLetter(msg *sarama.ConsumerMessage, defaultTopic string) (replayMessage, error) {
	letter, err := kafka.ParseDeadLetter(msg)
	if err != nil {
		return replayMessage{}, fmt.Errorf("%w: %v", errNotDeadLetter, err)
	}
	if letter.OriginalValue == "" {
		return replayMessage{}, errEmptyLetter
	}

	out := replayMessage{
		topic: strings.TrimSpace(letter.OriginalTopic),
		key:   letter.OriginalKey,
		value: []byte(letter.OriginalValue),
	}
	if out.topic == "" {
		out.topic = defaultTopic
	} else {
		out.dedupKey = fmt.Sprintf("%s/%d/%d", out.topic, letter.OriginalPartition, letter.OriginalOffset)
	}

	original := &sarama.ConsumerMessage{Topic: out.topic, Value: out.value}
	switch out.topic {
	case kafka.TopicOwnerEvents:
		event, err := kafka.ParseOwnerEvent(original)
		if err != nil {
			return replayMessage{}, fmt.Errorf("%w: %v", errInvalidEvent, err)
		}
		if !event.EventType.IsDeletion() || event.OwnerID == "" {
			return replayMessage{}, fmt.Errorf("%w: owner event %q for owner %q", errInvalidEvent, event.EventType, event.OwnerID)
		}
		// Удаление владельца идемпотентно: достаточно одного повтора на владельца.
		out.dedupKey = "owner/" + event.OwnerID
		if out.key == "" {
			out.key = string(domain.OwnerEventDeleted)
		}
	case kafka.TopicOrderEvents:
		event, err := kafka.ParseOrderEvent(original)
		if err != nil {
			return replayMessage{}, fmt.Errorf("%w: %v", errInvalidEvent, err)
		}
		if event.OrderID == "" || event.EventType == "" {
			return replayMessage{}, fmt.Errorf("%w: order event without order id or type", errInvalidEvent)
		}
		out.dedupKey = fmt.Sprintf("order/%s/%s/%d", event.OrderID, event.EventType, event.Version)
		if out.key == "" {
			out.key = event.OrderID
		}
	}
	return out, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
