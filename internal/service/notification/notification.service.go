package notification

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/krobus00/order-trigger-service/internal/config"
	"github.com/krobus00/order-trigger-service/internal/constant"
	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/krobus00/order-trigger-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Service consumes execution events from the execution stream and fans them
// out to the hub's websocket observers.
type Service struct {
	js  nats.JetStreamContext
	hub *Hub
}

func NewService(js nats.JetStreamContext, hub *Hub) *Service {
	return &Service{
		js:  js,
		hub: hub,
	}
}

func (s *Service) JetstreamEventInit(ctx context.Context) error {
	return util.UpsertStream(ctx, s.js, util.ExecutionStreamConfig())
}

func (s *Service) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = s.js.QueueSubscribe(
		constant.ExecutionStreamSubjectEvent,
		constant.ExecutionQueueName,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(config.Env.NatsJetstream.TimeoutHandler["broadcast_event"], msg, s.handleExecutionEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.Durable(constant.ExecutionQueueGroup),
	)
	util.ContinueOrFatal(err)

	return nil
}

func (s *Service) handleExecutionEvent(ctx context.Context, msg *nats.Msg) error {
	var event entity.ExecutionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logrus.Errorf("failed to decode execution event: %v", err)
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"message": event.Message(),
		"event":   event,
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"order_id":  event.OrderID,
		"user_id":   event.UserID,
		"type":      event.Kind,
		"observers": s.hub.ClientCount(),
	}).Info("broadcasting execution event")

	s.hub.Broadcast(payload)

	return nil
}
