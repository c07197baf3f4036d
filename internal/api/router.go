package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/mobile-money-service/internal/gateway"
	"github.com/akylbek/payment-system/mobile-money-service/internal/handlers"
	"github.com/akylbek/payment-system/mobile-money-service/internal/middleware"
	"github.com/akylbek/payment-system/mobile-money-service/internal/telemetry"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	IdempotencyTTL time.Duration
	Cache          middleware.ResponseCache
	Gatherer       prometheus.Gatherer
	// MockCheckout serves the mock gateway's payment page under /mock-checkout.
	MockCheckout bool
}

func NewRouter(service handlers.PaymentService, cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", middleware.IdempotencyHeader)
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	paymentHandler := handlers.NewPaymentHandler(service)
	payments := r.Group("/payments/mobile-money")
	{
		payments.POST("", middleware.IdempotencyMiddleware(cfg.Cache, cfg.IdempotencyTTL), paymentHandler.InitiatePayment)
		payments.GET("/operators/:country", paymentHandler.GetOperators)
		payments.POST("/webhooks/:provider", paymentHandler.GatewayWebhook)
		payments.GET("/:id", paymentHandler.GetPaymentStatus)
	}

	if cfg.MockCheckout {
		r.GET(gateway.MockCheckoutPath+"/pay/:transaction_id", paymentHandler.MockCheckout)
	}

	return r
}
