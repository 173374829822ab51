package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/ordersvc/internal/messaging/kafka"
)

const ownerLetter = `{"original_topic":"users","original_partition":1,"original_offset":7,"original_key":"USER_DELETED","original_value":"{\"id\":42,\"eventType\":\"USER_DELETED\"}"}`

func letter(t *testing.T, fields map[string]any) []byte {
	t.Helper()

	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal letter: %v", err)
	}
	return raw
}

func messagesAt(values ...[]byte) []*sarama.ConsumerMessage {
	out := make([]*sarama.ConsumerMessage, len(values))
	for i, v := range values {
		out[i] = &sarama.ConsumerMessage{Offset: int64(i), Value: v}
	}
	return out
}

func singlePartition(values ...[]byte) (*stubOffsetClient, *stubPartitionConsumerSource) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: int64(len(values))}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{0: closedPartitionConsumer(messagesAt(values...))},
	}
	return client, consumer
}

func testConfig() config {
	return config{
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicOwnerEvents,
		limit:       100,
		idleTimeout: 20 * time.Millisecond,
	}
}

func runTestReplayer(t *testing.T, cfg config, deps replayDeps) (replayReport, error) {
	t.Helper()

	r, err := newReplayer(cfg, deps, nil)
	if err != nil {
		t.Fatalf("newReplayer: %v", err)
	}
	return r.run(context.Background())
}

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 || brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
	if got := parseBrokers(" , "); len(got) != 0 {
		t.Fatalf("expected no brokers, got %+v", got)
	}
}

func TestRestoreLetter_OwnerDeletion(t *testing.T) {
	got, err := restoreLetter(&sarama.ConsumerMessage{Value: []byte(ownerLetter)}, "fallback-topic")
	if err != nil {
		t.Fatalf("restoreLetter failed: %v", err)
	}
	if got.topic != kafka.TopicOwnerEvents || got.key != "USER_DELETED" {
		t.Fatalf("unexpected replay target: %+v", got)
	}
	if string(got.value) != `{"id":42,"eventType":"USER_DELETED"}` {
		t.Fatalf("unexpected replay value: %s", got.value)
	}
	if got.dedupKey != "owner/42" {
		t.Fatalf("owner deletions must dedupe by owner, got %q", got.dedupKey)
	}
}

func TestRestoreLetter_FallbackTopicAndKey(t *testing.T) {
	raw := letter(t, map[string]any{
		"original_value": `{"owner_id":"owner-7","event_type":"OWNER_DELETED"}`,
	})

	got, err := restoreLetter(&sarama.ConsumerMessage{Value: raw}, kafka.TopicOwnerEvents)
	if err != nil {
		t.Fatalf("restoreLetter failed: %v", err)
	}
	if got.topic != kafka.TopicOwnerEvents || got.key != "OWNER_DELETED" {
		t.Fatalf("expected fallback topic and kind as key, got %+v", got)
	}
}

func TestRestoreLetter_OrderEvents(t *testing.T) {
	raw := letter(t, map[string]any{
		"original_topic": kafka.TopicOrderEvents,
		"original_value": `{"order_id":"o-1","event_type":"ORDER_UPDATED","version":3}`,
	})

	got, err := restoreLetter(&sarama.ConsumerMessage{Value: raw}, kafka.TopicOwnerEvents)
	if err != nil {
		t.Fatalf("restoreLetter failed: %v", err)
	}
	if got.topic != kafka.TopicOrderEvents || got.key != "o-1" {
		t.Fatalf("expected order id as default key, got %+v", got)
	}
	if got.dedupKey != "order/o-1/ORDER_UPDATED/3" {
		t.Fatalf("unexpected dedup key %q", got.dedupKey)
	}

	for name, value := range map[string]string{
		"not json":    `{"order_id":`,
		"no order id": `{"event_type":"ORDER_CREATED"}`,
		"no type":     `{"order_id":"o-1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			raw := letter(t, map[string]any{"original_topic": kafka.TopicOrderEvents, "original_value": value})
			if _, err := restoreLetter(&sarama.ConsumerMessage{Value: raw}, kafka.TopicOwnerEvents); !errors.Is(err, errInvalidEvent) {
				t.Fatalf("expected errInvalidEvent, got %v", err)
			}
		})
	}
}

func TestRestoreLetter_OtherTopicIsNotValidated(t *testing.T) {
	raw := letter(t, map[string]any{
		"original_topic":     "audit",
		"original_partition": 2,
		"original_offset":    9,
		"original_key":       "k",
		"original_value":     `opaque`,
	})

	got, err := restoreLetter(&sarama.ConsumerMessage{Value: raw}, kafka.TopicOwnerEvents)
	if err != nil {
		t.Fatalf("restoreLetter failed: %v", err)
	}
	if got.topic != "audit" || got.key != "k" || got.dedupKey != "audit/2/9" {
		t.Fatalf("unexpected replay message: %+v", got)
	}
}

func TestRestoreLetter_RejectsBrokenOwnerEvents(t *testing.T) {
	cases := map[string]string{
		"not json":       `not-json`,
		"not a deletion": `{"owner_id":"owner-7","event_type":"OWNER_CREATED"}`,
		"bad identifier": `{"id":{"nested":true},"eventType":"USER_DELETED"}`,
		"no owner":       `{"event_type":"OWNER_DELETED"}`,
	}

	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			raw := letter(t, map[string]any{"original_topic": kafka.TopicOwnerEvents, "original_value": value})
			if _, err := restoreLetter(&sarama.ConsumerMessage{Value: raw}, kafka.TopicOwnerEvents); !errors.Is(err, errInvalidEvent) {
				t.Fatalf("expected errInvalidEvent, got %v", err)
			}
		})
	}
}

func TestRestoreLetter_EnvelopeErrors(t *testing.T) {
	if _, err := restoreLetter(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}, kafka.TopicOwnerEvents); !errors.Is(err, errEmptyLetter) {
		t.Fatalf("expected errEmptyLetter, got %v", err)
	}
	if _, err := restoreLetter(&sarama.ConsumerMessage{Value: []byte(`garbage`)}, kafka.TopicOwnerEvents); !errors.Is(err, errNotDeadLetter) {
		t.Fatalf("expected errNotDeadLetter, got %v", err)
	}
}

func TestReadConfig_FromFlags(t *testing.T) {
	cfg, err := readConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-source-topic=orders.dlq",
		"-target-topic=users",
		"-only-topic= orders ",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, noEnv)
	if err != nil {
		t.Fatalf("readConfig failed: %v", err)
	}
	if len(cfg.brokers) != 2 || cfg.limit != 10 || !cfg.execute || !cfg.fromNewest {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.onlyTopic != "orders" {
		t.Fatalf("expected trimmed only-topic, got %q", cfg.onlyTopic)
	}
	if cfg.idleTimeout != 3*time.Second {
		t.Fatalf("unexpected idle-timeout: %s", cfg.idleTimeout)
	}
}

func TestReadConfig_DefaultsAndEnvBrokers(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == envKafkaBrokers {
			return "env-broker:9092", true
		}
		return "", false
	}

	cfg, err := readConfig(nil, lookup)
	if err != nil {
		t.Fatalf("readConfig failed: %v", err)
	}
	if len(cfg.brokers) != 1 || cfg.brokers[0] != "env-broker:9092" {
		t.Fatalf("unexpected brokers: %+v", cfg.brokers)
	}
	if cfg.sourceTopic != kafka.TopicDeadLetterQueue || cfg.targetTopic != kafka.TopicOwnerEvents || cfg.onlyTopic != "" {
		t.Fatalf("unexpected default topics: %+v", cfg)
	}
	if cfg.limit != defaultReplayLimit || cfg.idleTimeout != defaultIdleTimeout || cfg.execute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		args    []string
		message string
	}{
		{[]string{"-brokers=", "-source-topic=orders.dlq"}, "kafka brokers are required"},
		{[]string{"-brokers=broker:9092", "-source-topic= "}, "source-topic is required"},
		{[]string{"-brokers=broker:9092", "-target-topic="}, "target-topic is required"},
		{[]string{"-brokers=broker:9092", "-limit=0"}, "limit must be > 0"},
		{[]string{"-brokers=broker:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
		{[]string{"-unknown-flag"}, "flag provided but not defined"},
	}

	for _, tc := range cases {
		_, err := readConfig(tc.args, noEnv)
		if err == nil || !strings.Contains(err.Error(), tc.message) {
			t.Fatalf("args %v: expected %q, got: %v", tc.args, tc.message, err)
		}
	}
}

func TestPublishReplay(t *testing.T) {
	if err := publishReplay(nil, replayMessage{}); err == nil {
		t.Fatal("expected error for nil producer")
	}

	producer := &stubReplayProducer{}
	if err := publishReplay(producer, replayMessage{topic: "users", key: "OWNER_DELETED", value: []byte(`{"x":1}`)}); err != nil {
		t.Fatalf("publishReplay failed: %v", err)
	}
	if producer.calls != 1 || producer.lastMsg.Topic != "users" {
		t.Fatalf("unexpected producer state: calls=%d msg=%+v", producer.calls, producer.lastMsg)
	}
	key, _ := producer.lastMsg.Key.Encode()
	if string(key) != "OWNER_DELETED" {
		t.Fatalf("unexpected key %q", key)
	}

	producer.sendErr = errors.New("send failed")
	if err := publishReplay(producer, replayMessage{topic: "users"}); err == nil {
		t.Fatal("expected publishReplay error")
	}
}

func TestNewReplayer_RequiresDeps(t *testing.T) {
	client, consumer := singlePartition()

	if _, err := newReplayer(testConfig(), replayDeps{}, nil); err == nil {
		t.Fatal("expected missing deps error")
	}
	cfg := testConfig()
	cfg.execute = true
	if _, err := newReplayer(cfg, replayDeps{offsets: client, consumer: consumer}, nil); err == nil {
		t.Fatal("expected execute mode to require producer")
	}
}

func TestReplayer_DryRunVerdicts(t *testing.T) {
	sameOwner := []byte(`{"original_topic":"users","original_partition":3,"original_offset":1,"original_value":"{\"owner_id\":\"42\",\"event_type\":\"OWNER_DELETED\"}"}`)
	client, consumer := singlePartition(
		[]byte(ownerLetter),
		sameOwner,
		[]byte(`garbage`),
		[]byte(`{"payload":"not-an-envelope"}`),
		letter(t, map[string]any{"original_topic": "orders", "original_value": `{"order_id":"o-1","event_type":"ORDER_CREATED","version":0}`}),
	)

	report, err := runTestReplayer(t, testConfig(), replayDeps{offsets: client, consumer: consumer})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.scanned != 5 {
		t.Fatalf("expected 5 scanned, got %d", report.scanned)
	}
	want := map[verdict]int{verdictReplay: 2, verdictDuplicate: 1, verdictForeign: 1, verdictInvalid: 1}
	for v, n := range want {
		if report.count(v) != n {
			t.Fatalf("verdict %s: want %d, got %d (%+v)", v, n, report.count(v), report.verdicts)
		}
	}
	if report.topics[kafka.TopicOwnerEvents] != 1 || report.topics[kafka.TopicOrderEvents] != 1 {
		t.Fatalf("unexpected per-topic counts: %+v", report.topics)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].offset != 0 {
		t.Fatalf("unexpected consume calls: %+v", consumer.calls)
	}
}

func TestReplayer_ExecutePublishesOncePerOwner(t *testing.T) {
	client, consumer := singlePartition([]byte(ownerLetter), []byte(ownerLetter))
	producer := &stubReplayProducer{}

	cfg := testConfig()
	cfg.execute = true
	report, err := runTestReplayer(t, cfg, replayDeps{offsets: client, consumer: consumer, producer: producer})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if producer.calls != 1 || report.count(verdictReplay) != 1 || report.count(verdictDuplicate) != 1 {
		t.Fatalf("expected a single publish, calls=%d report=%+v", producer.calls, report.verdicts)
	}
	if producer.lastMsg.Topic != kafka.TopicOwnerEvents {
		t.Fatalf("unexpected target topic %s", producer.lastMsg.Topic)
	}
}

func TestReplayer_OnlyTopicFilter(t *testing.T) {
	client, consumer := singlePartition(
		[]byte(ownerLetter),
		letter(t, map[string]any{"original_topic": "orders", "original_value": `{"order_id":"o-1","event_type":"ORDER_DELETED"}`}),
	)
	producer := &stubReplayProducer{}

	cfg := testConfig()
	cfg.execute = true
	cfg.onlyTopic = kafka.TopicOrderEvents
	report, err := runTestReplayer(t, cfg, replayDeps{offsets: client, consumer: consumer, producer: producer})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.count(verdictFiltered) != 1 || producer.calls != 1 || producer.lastMsg.Topic != kafka.TopicOrderEvents {
		t.Fatalf("expected only the order letter replayed: report=%+v calls=%d", report.verdicts, producer.calls)
	}
}

func TestReplayer_FromNewestWindowAndLimit(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 10},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				{Partition: 0, Offset: 8, Value: []byte(`garbage`)},
				{Partition: 0, Offset: 9, Value: []byte(ownerLetter)},
			}),
		},
	}

	cfg := testConfig()
	cfg.limit = 2
	cfg.fromNewest = true
	report, err := runTestReplayer(t, cfg, replayDeps{offsets: client, consumer: consumer})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].partition != 0 || consumer.calls[0].offset != 8 {
		t.Fatalf("expected sorted partitions and a window of the last 2 offsets, got %+v", consumer.calls)
	}
	if report.scanned != 2 || report.count(verdictReplay) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestReplayer_SkipsEmptyPartitions(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0, 1},
		offsets: map[int32]offsetRange{
			0: {oldest: 5, newest: 5},
			1: {oldest: 0, newest: 1},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			1: closedPartitionConsumer([]*sarama.ConsumerMessage{{Partition: 1, Offset: 0, Value: []byte(ownerLetter)}}),
		},
	}

	report, err := runTestReplayer(t, testConfig(), replayDeps{offsets: client, consumer: consumer})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].partition != 1 || report.count(verdictReplay) != 1 {
		t.Fatalf("expected empty partition 0 to be skipped: calls=%+v report=%+v", consumer.calls, report.verdicts)
	}

	if report, err := runTestReplayer(t, testConfig(), replayDeps{offsets: &stubOffsetClient{}, consumer: consumer}); err != nil || report.scanned != 0 {
		t.Fatalf("expected no-op for topic without partitions, report=%+v err=%v", report, err)
	}
}

func TestReplayer_ErrorBranches(t *testing.T) {
	cfg := testConfig()
	cfg.execute = true

	partitionsErr := &stubOffsetClient{partitionsErr: errors.New("metadata")}
	if _, err := runTestReplayer(t, cfg, replayDeps{offsets: partitionsErr, consumer: &stubPartitionConsumerSource{}, producer: &stubReplayProducer{}}); err == nil {
		t.Fatal("expected partitions error")
	}

	offsetErr := &stubOffsetClient{partitions: []int32{0}, offsetErr: map[int32]error{0: errors.New("offset")}}
	if _, err := runTestReplayer(t, cfg, replayDeps{offsets: offsetErr, consumer: &stubPartitionConsumerSource{}, producer: &stubReplayProducer{}}); err == nil {
		t.Fatal("expected offset error")
	}

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumeErr := &stubPartitionConsumerSource{consumeErr: errors.New("consume")}
	if _, err := runTestReplayer(t, cfg, replayDeps{offsets: client, consumer: consumeErr, producer: &stubReplayProducer{}}); err == nil {
		t.Fatal("expected consume error")
	}

	pcWithErr := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	pcWithErr.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcWithErr}}
	if _, err := runTestReplayer(t, cfg, replayDeps{offsets: client, consumer: consumer, producer: &stubReplayProducer{}}); err == nil {
		t.Fatal("expected consumer error branch")
	}
	if !pcWithErr.closed {
		t.Fatal("partition consumer must be closed after failure")
	}

	_, okConsumer := singlePartition([]byte(ownerLetter))
	producer := &stubReplayProducer{sendErr: errors.New("send fail")}
	if _, err := runTestReplayer(t, cfg, replayDeps{offsets: client, consumer: okConsumer, producer: producer}); err == nil || !strings.Contains(err.Error(), "send fail") {
		t.Fatalf("expected producer send error, got %v", err)
	}
}

func TestReplayer_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}

	idleConsumer := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idleConsumer}}

	cfg := testConfig()
	cfg.idleTimeout = 10 * time.Millisecond
	report, err := runTestReplayer(t, cfg, replayDeps{offsets: client, consumer: consumer})
	if err != nil {
		t.Fatalf("unexpected idle-timeout error: %v", err)
	}
	if report.scanned != 0 {
		t.Fatalf("expected nothing scanned, got %+v", report)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := newReplayer(cfg, replayDeps{offsets: client, consumer: consumer}, nil)
	if err != nil {
		t.Fatalf("newReplayer: %v", err)
	}
	if _, err := r.run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDeps
	defer func() { newReplayDeps = oldDeps }()

	cfg := testConfig()
	cfg.limit = 1

	newReplayDeps = func(config) (replayDeps, error) {
		return replayDeps{}, errors.New("deps failed")
	}
	if err := run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "deps failed") {
		t.Fatalf("expected deps error, got %v", err)
	}

	client, consumer := singlePartition([]byte(ownerLetter))
	producer := &stubReplayProducer{}
	newReplayDeps = func(config) (replayDeps, error) {
		return replayDeps{offsets: client, consumer: consumer, producer: producer}, nil
	}
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !client.closed || !consumer.closed || !producer.closed {
		t.Fatalf("expected all deps to be closed: client=%v consumer=%v producer=%v", client.closed, consumer.closed, producer.closed)
	}
	if producer.calls != 0 {
		t.Fatalf("dry-run must not publish, got %d calls", producer.calls)
	}
}

func TestMain_SuccessWithStubbedDeps(t *testing.T) {
	oldDeps := newReplayDeps
	oldArgs := os.Args
	defer func() {
		newReplayDeps = oldDeps
		os.Args = oldArgs
	}()

	client, consumer := singlePartition([]byte(ownerLetter))
	newReplayDeps = func(config) (replayDeps, error) {
		return replayDeps{offsets: client, consumer: consumer}, nil
	}

	os.Args = []string{"dlq-reprocess", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}

	main()
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func noEnv(string) (string, bool) { return "", false }

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}

	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &stubPartitionConsumer{messages: msgCh, errors: errCh}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
