package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/carebill/internal/allocation"
	allocationdomain "github.com/smallbiznis/carebill/internal/allocation/domain"
	"github.com/smallbiznis/carebill/internal/audit"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/billingsummary"
	billingsummarydomain "github.com/smallbiznis/carebill/internal/billingsummary/domain"
	"github.com/smallbiznis/carebill/internal/catalog"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/coverage"
	"github.com/smallbiznis/carebill/internal/encounter"
	"github.com/smallbiznis/carebill/internal/fulfillment"
	fulfillmentdomain "github.com/smallbiznis/carebill/internal/fulfillment/domain"
	"github.com/smallbiznis/carebill/internal/leak"
	leakdomain "github.com/smallbiznis/carebill/internal/leak/domain"
	"github.com/smallbiznis/carebill/internal/lineitem"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	"github.com/smallbiznis/carebill/internal/observability"
	obslogger "github.com/smallbiznis/carebill/internal/observability/logger"
	obstracing "github.com/smallbiznis/carebill/internal/observability/tracing"
	"github.com/smallbiznis/carebill/internal/payment"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/smallbiznis/carebill/internal/paymentevent"
	"github.com/smallbiznis/carebill/internal/paymentgate"
	paymentgatedomain "github.com/smallbiznis/carebill/internal/paymentgate/domain"
	"github.com/smallbiznis/carebill/internal/ratelimit"
	"github.com/smallbiznis/carebill/internal/reconciliation"
	reconciliationdomain "github.com/smallbiznis/carebill/internal/reconciliation/domain"
	"github.com/smallbiznis/carebill/internal/wallet"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Services groups the billing modules behind the HTTP surface. The scheduler
// binary reuses it without the gin engine.
var Services = fx.Options(
	clock.Module,
	authorization.Module,
	audit.Module,
	catalog.Module,
	encounter.Module,
	coverage.Module,
	wallet.Module,
	fulfillment.Module,
	paymentevent.Module,
	lineitem.Module,
	allocation.Module,
	billingsummary.Module,
	paymentgate.Module,
	payment.Module,
	leak.Module,
	reconciliation.Module,
)

var Module = fx.Module("http.server",
	Services,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		SkipPaths:       []string{"/health", "/metrics"},
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Params struct {
	fx.In

	Engine         *gin.Engine
	Log            *zap.Logger
	Authz          authorization.Service
	AuditSvc       auditdomain.Service
	LineItemSvc    lineitemdomain.Service
	AllocationSvc  allocationdomain.Service
	SummarySvc     billingsummarydomain.Service
	GateSvc        paymentgatedomain.Service
	PaymentSvc     paymentdomain.Service
	WebhookSvc     paymentdomain.WebhookService
	FulfillmentSvc fulfillmentdomain.Service
	LeakSvc        leakdomain.Service
	ReconSvc       reconciliationdomain.Service
	Limiter        *ratelimit.WebhookLimiter `optional:"true"`
}

type Server struct {
	engine         *gin.Engine
	log            *zap.Logger
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	lineItemSvc    lineitemdomain.Service
	allocationSvc  allocationdomain.Service
	summarySvc     billingsummarydomain.Service
	gateSvc        paymentgatedomain.Service
	paymentSvc     paymentdomain.Service
	webhookSvc     paymentdomain.WebhookService
	fulfillmentSvc fulfillmentdomain.Service
	leakSvc        leakdomain.Service
	reconSvc       reconciliationdomain.Service
	limiter        *ratelimit.WebhookLimiter
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:         p.Engine,
		log:            p.Log.Named("http.server"),
		authzSvc:       p.Authz,
		auditSvc:       p.AuditSvc,
		lineItemSvc:    p.LineItemSvc,
		allocationSvc:  p.AllocationSvc,
		summarySvc:     p.SummarySvc,
		gateSvc:        p.GateSvc,
		paymentSvc:     p.PaymentSvc,
		webhookSvc:     p.WebhookSvc,
		fulfillmentSvc: p.FulfillmentSvc,
		leakSvc:        p.LeakSvc,
		reconSvc:       p.ReconSvc,
		limiter:        p.Limiter,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	s.engine.POST("/webhooks/:provider", s.WebhookRateLimit(), s.HandlePaymentWebhook)

	v1 := s.engine.Group("/v1")
	v1.Use(s.RequireActor())

	v1.POST("/line-items", s.CreateLineItem)
	v1.GET("/line-items/:id", s.GetLineItem)
	v1.PATCH("/line-items/:id", s.UpdateLineItem)
	v1.DELETE("/line-items/:id", s.DeleteLineItem)
	v1.POST("/line-items/:id/payments", s.ApplyPayment)

	v1.GET("/encounters/:id/line-items", s.ListEncounterLineItems)
	v1.POST("/encounters/:id/allocations", s.AllocatePayment)
	v1.GET("/encounters/:id/summary", s.ComputeSummary)
	v1.GET("/encounters/:id/payment-gates", s.GetPaymentGates)
	v1.GET("/encounters/:id/payments", s.ListEncounterPayments)
	v1.GET("/encounters/:id/timeline", s.ListTimeline)

	v1.POST("/payments", s.RecordPayment)
	v1.GET("/payments/:id", s.GetPayment)
	v1.GET("/payments/:id/allocations", s.ListPaymentAllocations)

	v1.POST("/fulfillment-events", s.RecordFulfillment)

	v1.POST("/leaks/detect", s.DetectLeak)
	v1.POST("/leaks/sweep", s.SweepLeaks)
	v1.GET("/leaks", s.ListUnresolvedLeaks)
	v1.GET("/leaks/:id", s.GetLeak)
	v1.POST("/leaks/:id/resolve", s.ResolveLeak)

	v1.POST("/reconciliations", s.CreateReconciliation)
	v1.GET("/reconciliations", s.ListReconciliations)
	v1.GET("/reconciliations/by-date/:date", s.GetReconciliationByDate)
	v1.GET("/reconciliations/:id", s.GetReconciliation)
	v1.POST("/reconciliations/:id/finalize", s.FinalizeReconciliation)
	v1.POST("/reconciliations/:id/cancel", s.CancelReconciliation)
	v1.PATCH("/reconciliations/:id/notes", s.UpdateReconciliationNotes)

	v1.GET("/audit-logs", s.ListAuditLogs)
}
