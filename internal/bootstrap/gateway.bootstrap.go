package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/krobus00/order-trigger-service/internal/config"
	"github.com/krobus00/order-trigger-service/internal/entity"
	orderHandler "github.com/krobus00/order-trigger-service/internal/handler/order/http"
	"github.com/krobus00/order-trigger-service/internal/infrastructure"
	"github.com/krobus00/order-trigger-service/internal/repository"
	"github.com/krobus00/order-trigger-service/internal/service/notification"
	"github.com/krobus00/order-trigger-service/internal/service/position"
	"github.com/krobus00/order-trigger-service/internal/service/pricecache"
	"github.com/krobus00/order-trigger-service/internal/service/trigger"
	"github.com/krobus00/order-trigger-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// StartGateway runs the external-facing API surface: the order HTTP API and
// the websocket notification broadcaster. Execution events produced by the
// trigger worker (or by this process's on-demand path) arrive over the
// execution stream.
func StartGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tradingDB, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["trading"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, tradingDB, config.Env.Database["trading"].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	priceCache, err := pricecache.NewRedisStore(config.Env.Redis["price_cache"].CacheDSN)
	util.ContinueOrFatal(err)

	orderRepo := repository.NewOrderRepository(tradingDB)
	positionRepo := repository.NewPositionRepository(tradingDB)

	positionService := position.NewService(positionRepo, priceCache)
	executionSink := trigger.NewJetstreamSink(js)
	triggerService := trigger.NewService(orderRepo, positionService, executionSink)

	hub := notification.NewHub(config.Env.Broadcast.ClientSendBuffer, config.Env.Broadcast.WriteTimeout)
	notificationService := notification.NewService(js, hub)

	publishers := []entity.Publisher{executionSink}
	for _, v := range publishers {
		err = v.JetstreamEventInit(ctx)
		util.ContinueOrFatal(err)
	}

	subscribers := []entity.Subscriber{notificationService}
	for _, v := range subscribers {
		err = v.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}

	orderHTTPHandler := orderHandler.NewOrderHTTPHandler(triggerService)
	httpMux := http.NewServeMux()
	infrastructure.RegisterHealthEndpoints(httpMux)
	orderHTTPHandler.Register(httpMux)
	httpMux.Handle("/ws", hub)

	httpPort := fmt.Sprintf(":%s", config.Env.Port["gateway_http"])
	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.HTTPServerConfig{
		Addr:            httpPort,
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()
	logrus.Info(fmt.Sprintf("http server started on %s", httpPort))

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"trading database": func(ctx context.Context) error {
			cancel()
			return tradingDB.Close()
		},
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"websocket hub": func(ctx context.Context) error {
			hub.Shutdown()
			return nil
		},
		"price cache": func(ctx context.Context) error {
			return priceCache.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
