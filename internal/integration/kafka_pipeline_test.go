//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/kafka"
	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/source"
	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/storage"
	"github.com/couchcryptid/heatspot-etl-service/internal/config"
	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
	"github.com/couchcryptid/heatspot-etl-service/internal/observability"
	"github.com/couchcryptid/heatspot-etl-service/internal/pipeline"
	"github.com/couchcryptid/heatspot-etl-service/internal/synthetic"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testSinkTopic = "test-enriched-heat-spots"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	kc, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("heatspot-test"))
	testcontainers.CleanupContainer(t, kc)
	require.NoError(t, err, "start kafka container")

	brokers, err := kc.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type sinkMessage struct {
	Record  domain.EnrichedRecord
	Key     string
	Headers map[string]string
}

func readSink(ctx context.Context, t *testing.T, consumer *kafkago.Reader, n int) []sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	out := make([]sinkMessage, 0, n)
	for range n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from sink topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		var rec domain.EnrichedRecord
		require.NoError(t, json.Unmarshal(msg.Value, &rec), "unmarshal sink message")
		out = append(out, sinkMessage{Record: rec, Key: string(msg.Key), Headers: headers})
	}
	return out
}

// TestRunnerPublishesEnrichedChunks runs the full pipeline over a synthetic
// CSV with the Kafka sink attached and checks every record reaches the topic.
func TestRunnerPublishesEnrichedChunks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	root := t.TempDir()
	in := filepath.Join(root, "in")
	require.NoError(t, os.MkdirAll(in, 0o755))
	f, err := os.Create(filepath.Join(in, "focos.csv"))
	require.NoError(t, err)
	const count = 250
	require.NoError(t, synthetic.NewGenerator(1, time.Date(2024, time.August, 31, 0, 0, 0, 0, time.UTC)).WriteCSV(f, count))
	require.NoError(t, f.Close())

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	runner := pipeline.NewRunner(source.NewDir(in), nil, storage.NewDir(filepath.Join(root, "out")),
		[]pipeline.BatchLoader{writer},
		pipeline.RunnerConfig{BatchSize: 100, Workers: 2, Version: "integration"},
		discardLogger(), observability.NewMetricsForTesting())

	stats, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, count, stats.Total)
	assert.Equal(t, 3, stats.Batches)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	records, ok := runner.Records()
	require.True(t, ok)

	msgs := readSink(ctx, t, consumer, count)
	for i, m := range msgs {
		assert.Equal(t, m.Record.ID, m.Key)
		assert.Equal(t, m.Record.Biome, m.Headers["biome"])
		_, err := time.Parse(time.RFC3339, m.Headers["processed_at"])
		assert.NoError(t, err, "processed_at should be valid RFC3339")
		assert.Equal(t, records[i].ID, m.Record.ID, "single partition preserves chunk order")
		assert.NotEqual(t, domain.SourcePolygon, m.Record.Sources.Biome)
	}
}
