//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/tb-calibration/internal/calibration"
	"github.com/couchcryptid/tb-calibration/internal/ingest"
	"github.com/couchcryptid/tb-calibration/internal/observability"
)

func discardLogger() *slog.Logger {
	return observability.NewLogger(io.Discard, "debug", "json")
}

// startKafka runs a single-node broker for the duration of the test and
// returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	kc, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("tb-calibration-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = kc.Terminate(stopCtx)
	})

	brokers, err := kc.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck // test cleanup

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close() //nolint:errcheck // test cleanup

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// loadFieldTrial builds a calibration request from the mock field trial CSV.
func loadFieldTrial(t *testing.T) calibration.Request {
	t.Helper()
	f, err := os.Open(filepath.Join("..", "..", "data", "mock", "field_trial.csv"))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck // read-only

	ds, err := ingest.ReadCSV(f, ingest.Options{})
	require.NoError(t, err)

	req := calibration.Request{Groups: make(map[string][]calibration.ObservationDTO, len(ds.Groups))}
	for name, obs := range ds.Groups {
		for _, o := range obs {
			tmin, tmax, nf := o.Tmin, o.Tmax, o.NF
			req.Groups[name] = append(req.Groups[name], calibration.ObservationDTO{
				Date: o.Date.Format(time.DateOnly),
				Tmin: &tmin,
				Tmax: &tmax,
				NF:   &nf,
			})
		}
	}
	return req
}
