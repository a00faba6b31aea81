package trigger

import (
	"context"

	"github.com/krobus00/order-trigger-service/internal/constant"
	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/krobus00/order-trigger-service/internal/util"
	"github.com/nats-io/nats.go"
)

// JetstreamSink publishes execution events on the execution stream so the
// gateway's broadcaster can fan them out to websocket observers.
type JetstreamSink struct {
	js nats.JetStreamContext
}

func NewJetstreamSink(js nats.JetStreamContext) *JetstreamSink {
	return &JetstreamSink{js: js}
}

func (s *JetstreamSink) JetstreamEventInit(ctx context.Context) error {
	return util.UpsertStream(ctx, s.js, util.ExecutionStreamConfig())
}

func (s *JetstreamSink) Publish(_ context.Context, event entity.ExecutionEvent) error {
	return util.PublishEvent(s.js, constant.ExecutionStreamSubjectEvent, event)
}
