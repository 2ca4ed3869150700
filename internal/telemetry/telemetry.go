// Package telemetry 提供 OpenTelemetry 分布式追踪功能的封装。
// 追踪默认关闭；启用后通过 OTLP gRPC 将 Span 导出到兼容后端（如 Tempo、Jaeger 等）。
// 主要功能包括：
//   - 初始化和配置追踪提供者
//   - 为提交、查询等操作创建 Span
//   - 从上下文中提取 Trace ID 用于日志关联
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerName 是本服务内部 Span 使用的追踪器名称。
const TracerName = "genlog"

// Config 定义遥测配置结构体。
type Config struct {
	// Enabled 控制是否启用遥测功能，设为 false 时将跳过追踪器初始化
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Endpoint 指定 OTLP 接收器的 gRPC 端点地址
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"` // e.g., tempo:4317
	// ServiceName 标识当前服务的名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// SampleRate 采样率，取值范围 0.0 到 1.0
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// Environment 标识当前运行环境，如 production、development
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
}

// Telemetry 持有追踪提供者和追踪器实例。
type Telemetry struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
}

// New 根据给定配置创建新的 Telemetry 实例。
//
// 未启用时返回仅包含空操作追踪器的实例；启用时建立到 OTLP 接收器的 gRPC 连接，
// 配置采样器与资源信息，并设置全局追踪提供者和上下文传播器。
//
// 参数：
//   - ctx: 上下文，用于控制连接超时
//   - cfg: 遥测配置
//
// 返回：
//   - *Telemetry: 初始化完成的遥测实例
//   - error: 初始化过程中的错误
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{
			config: cfg,
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "genlog-server"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to %s: %w", cfg.Endpoint, err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
			attribute.String("environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(newSampler(cfg.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{
		config:         cfg,
		tracerProvider: tp,
		tracer:         tp.Tracer(TracerName),
	}, nil
}

// newSampler 按采样率选择采样器：大于等于 1 全部采样，小于等于 0 不采样，
// 其余按 TraceID 比率采样，同一追踪的采样决策一致。
func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer 返回用于创建 Span 的追踪器实例。
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Shutdown 刷新待发送的追踪数据并释放资源，应在进程退出前调用。
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tracerProvider == nil {
		return nil
	}
	return t.tracerProvider.Shutdown(ctx)
}

// IsEnabled 返回遥测功能是否已启用。
func (t *Telemetry) IsEnabled() bool {
	return t.config.Enabled
}

// TraceIDFromContext 从上下文中提取 Trace ID，上下文中没有有效 Span 时返回空字符串。
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// StartSpan 基于全局追踪提供者创建一个新的 Span。
// 返回的 Span 使用完毕后需调用 End()。
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, opts...)
}

// AddSpanAttributes 向当前 Span 添加属性。
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// RecordError 在当前 Span 上记录错误。
func RecordError(ctx context.Context, err error) {
	trace.SpanFromContext(ctx).RecordError(err)
}
