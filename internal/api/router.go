package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oriys/genlog/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RouterConfig 路由器配置选项
type RouterConfig struct {
	// Handler API处理器
	Handler *Handler
	// Stream 记录流处理器（可选）
	Stream *StreamHandler
	// Logger 日志记录器
	Logger *logrus.Logger
	// ServiceName 追踪中使用的服务名
	ServiceName string
	// CORS 跨域策略
	CORS CORSOptions
	// MediaDir 媒体目录，非空时通过 /media/ 提供截图文件
	MediaDir string
	// Gatherer 指标采集器，非空时挂载 /metrics
	Gatherer prometheus.Gatherer
	// RequestTimeout 普通请求的处理超时，默认 60 秒
	RequestTimeout time.Duration
}

// CORSOptions 跨域策略。列表中包含 "*" 表示允许任意值。
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// NewRouter 创建并配置HTTP路由器。
//
// 路由结构：
//
//	/               - 服务信息
//	/health         - 基本健康检查
//	/health/ready   - 就绪探针（检查日志文件）
//	/health/live    - 存活探针
//	/log            - 提交生成日志
//	/logs           - 查询最近的日志
//	/logs/stream    - WebSocket 实时记录流
//	/media/*        - 截图文件
//	/metrics        - Prometheus指标端点
//
// 记录流是长连接，注册在压缩和超时中间件之外。
func NewRouter(cfg *RouterConfig) *chi.Mux {
	h := cfg.Handler
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "genlog-server"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Use(telemetry.HTTPMiddleware(serviceName))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.CORS))

	if cfg.Stream != nil {
		r.Get("/logs/stream", cfg.Stream.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5, "application/json"))
		r.Use(middleware.Timeout(timeout))

		r.Get("/", h.Root)
		r.Get("/health", h.Health)
		r.Get("/health/ready", h.Ready)
		r.Get("/health/live", h.Live)

		r.Post("/log", h.SubmitLog)
		r.Get("/logs", h.ListLogs)

		if cfg.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
		}
	})

	if cfg.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", noDirListing(http.FileServer(http.Dir(cfg.MediaDir)))))
	}

	return r
}

// noDirListing 对目录请求返回 404，只允许访问具体文件。
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware 是处理跨域资源共享(CORS)的中间件。
//
// 功能说明：
//   - 按配置设置 Access-Control-Allow-Origin；允许携带凭据且来源为 "*" 时回显请求的 Origin
//     （浏览器不接受凭据请求搭配通配来源）
//   - 方法或请求头配置为 "*" 时回显预检请求中声明的值
//   - 直接以 200 响应预检请求（OPTIONS方法）
func corsMiddleware(opts CORSOptions) func(http.Handler) http.Handler {
	anyOrigin := contains(opts.AllowedOrigins, "*")
	anyMethod := len(opts.AllowedMethods) == 0 || contains(opts.AllowedMethods, "*")
	anyHeader := len(opts.AllowedHeaders) == 0 || contains(opts.AllowedHeaders, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case anyOrigin && opts.AllowCredentials && origin != "":
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			case anyOrigin:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && contains(opts.AllowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			if opts.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if anyMethod {
				if m := r.Header.Get("Access-Control-Request-Method"); m != "" {
					w.Header().Set("Access-Control-Allow-Methods", m)
				} else {
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				}
			} else {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(opts.AllowedMethods, ", "))
			}

			if anyHeader {
				if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
					w.Header().Set("Access-Control-Allow-Headers", hdr)
				} else {
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				}
			} else {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(opts.AllowedHeaders, ", "))
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
