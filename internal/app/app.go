// Package app собирает процесс сервиса заказов: зависимости, HTTP API,
// сервер метрик и потребителей событий владельцев.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	healthcheck "github.com/vladislavdragonenkov/ordersvc/internal/health"
	httpapi "github.com/vladislavdragonenkov/ordersvc/internal/transport/http"
	"github.com/vladislavdragonenkov/ordersvc/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// Run запускает сервис и блокируется до отмены ctx или ошибки одного из серверов.
// При отмене ctx возвращает ctx.Err().
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(version.Fields()).Info("starting order service")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to release dependencies")
		}
	}()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	registerHealthChecks(healthHandler, deps)
	logger.WithField("checks", healthHandler.Names()).Debug("health checks registered")

	api := httpapi.NewOrderHandler(deps.engine,
		httpapi.WithIdentityHeader(cfg.IdentityHeader),
		httpapi.WithLogger(logger.WithField("component", "http-api")),
	)

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = apiLis.Close()
		return err
	}

	apiSrv := &http.Server{Handler: api.Routes(), ReadHeaderTimeout: readHeaderTimeout}
	metricsSrv := &http.Server{Handler: newMetricsMux(healthHandler), ReadHeaderTimeout: readHeaderTimeout}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("order API listening on %s", apiLis.Addr())
		return serveHTTP(apiSrv, apiLis)
	})
	group.Go(func() error {
		logger.Infof("metrics available at %s/metrics", metricsLis.Addr())
		return serveHTTP(metricsSrv, metricsLis)
	})
	if cfg.KafkaEnabled() {
		workers, err := newOwnerWorkers(cfg, deps, logger.WithField("component", "owner-consumers"))
		if err != nil {
			// Без потребителей API продолжает работать, удаление владельцев запускается вручную.
			logger.WithError(err).Warn("owner event consumers are disabled")
		} else {
			logger.WithField("members", workers.Size()).Info("starting owner event consumers")
			group.Go(func() error {
				return workers.Run(groupCtx)
			})
		}
	}
	if deps.sweeper != nil {
		group.Go(func() error {
			return deps.sweeper.Run(groupCtx)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested, stopping servers")
		shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)
		return nil
	})

	err = group.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func newMetricsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
