package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/krobus00/order-trigger-service/internal/constant"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

func ProcessWithTimeout(timeout time.Duration, msg *nats.Msg, callback func(ctx context.Context, msg *nats.Msg) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- callback(ctx, msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("processing timeout for message: %s", string(msg.Data))
	case err := <-done:
		return err
	}
}

// ExecutionStreamConfig is the shared stream definition used by both the
// publisher and the subscriber side of the execution stream.
func ExecutionStreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      constant.ExecutionStreamName,
		Subjects:  []string{constant.ExecutionStreamSubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Replicas:  1,
	}
}

// UpsertStream creates the stream when absent and updates it otherwise.
func UpsertStream(ctx context.Context, js nats.JetStreamContext, streamConfig *nats.StreamConfig) error {
	stream, err := js.StreamInfo(streamConfig.Name, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", streamConfig.Name)
		_, err = js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", streamConfig.Name)
	_, err = js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

func PublishEvent(js nats.JetStreamContext, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = js.Publish(subject, payload)
	if err != nil {
		return err
	}

	return nil
}
