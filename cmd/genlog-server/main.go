// Package main 是生成日志服务的入口点。
// 服务接收设计插件提交的生成事件，将截图解码为 PNG 文件，并把元数据追加到日志文件中。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/oriys/genlog/internal/api"
	"github.com/oriys/genlog/internal/config"
	"github.com/oriys/genlog/internal/events"
	"github.com/oriys/genlog/internal/metrics"
	"github.com/oriys/genlog/internal/recorder"
	"github.com/oriys/genlog/internal/storage"
	"github.com/oriys/genlog/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	envFile := flag.String("env-file", ".env", "Path to .env file (optional)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// .env 只补充尚未设置的环境变量
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Failed to load env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if err := configureLogger(logger, cfg.Logging); err != nil {
		logger.WithError(err).Fatal("Invalid logging config")
	}

	logger.WithFields(logrus.Fields{
		"data_dir": cfg.Storage.DataDir,
		"format":   cfg.Storage.Format,
	}).Info("Starting genlog server")

	if cfg.Telemetry.Enabled {
		tel, err := telemetry.New(context.Background(), cfg.Telemetry)
		if err != nil {
			// 追踪不可用不影响日志收集
			logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
		} else {
			defer tel.Shutdown(context.Background())
			logger.AddHook(telemetry.NewLogrusHook())
			logger.WithFields(logrus.Fields{
				"endpoint":    cfg.Telemetry.Endpoint,
				"sample_rate": cfg.Telemetry.SampleRate,
			}).Info("Telemetry initialized")
		}
	}

	var (
		m        *metrics.Metrics
		registry *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.NewMetrics(cfg.Metrics.Namespace, registry)
	}

	store, err := storage.NewLogStore(cfg.Storage.Format, cfg.Storage.DataDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize log store")
	}
	media, err := storage.NewMediaStore(cfg.Storage.DataDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize media directory")
	}

	broadcaster := api.NewRecordBroadcaster(m)
	notifiers := []recorder.Notifier{broadcaster}

	if cfg.Events.NATSURL != "" {
		bus, err := events.NewEventBus(cfg.Events.NATSURL, logger, m)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to NATS, record events disabled")
		} else {
			defer bus.Close()
			notifiers = append(notifiers, bus)
			logger.WithField("url", cfg.Events.NATSURL).Info("Publishing record events to NATS")
		}
	}

	rec := recorder.New(store, media, m, logger, notifiers...)

	// 启动时读取一次日志，用于初始化记录数指标并提前暴露损坏的日志文件
	if res, err := rec.List(context.Background(), 0); err != nil {
		logger.WithError(err).Warn("Existing log could not be read")
	} else {
		logger.WithField("records", res.Total).Info("Log store ready")
	}

	handler := api.NewHandler(api.HandlerConfig{
		Service:      rec,
		Metrics:      m,
		Logger:       logger,
		ServerName:   cfg.Server.Name,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	routerCfg := &api.RouterConfig{
		Handler:     handler,
		Stream:      api.NewStreamHandler(broadcaster, logger),
		Logger:      logger,
		ServiceName: cfg.Telemetry.ServiceName,
		CORS: api.CORSOptions{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Server.ServeMedia {
		routerCfg.MediaDir = media.Dir()
	}

	// 指标端口与主端口不同时单独启动指标服务器，避免公开暴露
	var metricsServer *http.Server
	if registry != nil {
		if cfg.Metrics.Port == 0 || cfg.Metrics.Port == cfg.Server.HTTPPort {
			routerCfg.Gatherer = registry
		} else {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			metricsServer = &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Metrics.Port),
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			go func() {
				logger.WithField("port", cfg.Metrics.Port).Info("Starting metrics server")
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Fatal("Metrics server failed")
				}
			}()
		}
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     api.NewRouter(routerCfg),
		ReadTimeout: cfg.Server.ReadTimeout,
		// 不设置 WriteTimeout：/logs/stream 是长连接，普通请求由路由层的超时中间件限制
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown error")
		}
	}

	logger.Info("Server stopped")
}

// configureLogger 按配置设置日志级别与格式。
func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "", "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}
