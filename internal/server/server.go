package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tally/internal/billingperiod"
	"github.com/smallbiznis/tally/internal/cache"
	"github.com/smallbiznis/tally/internal/commitment"
	"github.com/smallbiznis/tally/internal/config"
	"github.com/smallbiznis/tally/internal/credit"
	"github.com/smallbiznis/tally/internal/customer"
	customerdomain "github.com/smallbiznis/tally/internal/customer/domain"
	"github.com/smallbiznis/tally/internal/event"
	eventdomain "github.com/smallbiznis/tally/internal/event/domain"
	"github.com/smallbiznis/tally/internal/invoice"
	invoicedomain "github.com/smallbiznis/tally/internal/invoice/domain"
	"github.com/smallbiznis/tally/internal/metric"
	"github.com/smallbiznis/tally/internal/observability"
	obsmiddleware "github.com/smallbiznis/tally/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tally/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tally/internal/observability/tracing"
	"github.com/smallbiznis/tally/internal/plan"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	"github.com/smallbiznis/tally/internal/pricing"
	"github.com/smallbiznis/tally/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/tally/internal/subscription/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	cache.Module,
	pricing.Module,
	billingperiod.Module,
	commitment.Module,
	credit.Module,
	customer.Module,
	event.Module,
	invoice.Module,
	metric.Module,
	plan.Module,
	subscription.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type Server struct {
	engine          *gin.Engine
	customerSvc     customerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	planSvc         plandomain.Service
	eventSvc        eventdomain.Service
	invoiceSvc      invoicedomain.Service
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	CustomerSvc     customerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	PlanSvc         plandomain.Service
	EventSvc        eventdomain.Service
	InvoiceSvc      invoicedomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		customerSvc:     p.CustomerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		planSvc:         p.PlanSvc,
		eventSvc:        p.EventSvc,
		invoiceSvc:      p.InvoiceSvc,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerCustomerRoutes()
	svc.registerPlanRoutes()
	svc.registerEventRoutes()
	svc.registerInvoiceRoutes()
	svc.registerUsageRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerCustomerRoutes() {
	customers := s.engine.Group("/customers")

	customers.POST("", s.CreateCustomer)
	customers.GET("", s.ListCustomers)
	customers.GET("/:id", s.GetCustomerByID)
	customers.PUT("/:id", s.UpdateCustomer)

	customers.POST("/:id/subscriptions", s.CreateSubscription)
	customers.GET("/:id/subscriptions", s.ListCustomerSubscriptions)
	customers.PUT("/:id/subscriptions/:sid/cancel", s.CancelSubscription)
}

func (s *Server) registerPlanRoutes() {
	plans := s.engine.Group("/plans")

	plans.POST("", s.CreatePlan)
	plans.GET("", s.ListPlans)
	plans.GET("/:id", s.GetPlanByID)
	plans.PUT("/:id", s.UpdatePlan)
	plans.PUT("/:id/deactivate", s.DeactivatePlan)

	plans.POST("/:id/components", s.AddPlanComponent)
	plans.DELETE("/:id/components/:cid", s.RemovePlanComponent)
}

func (s *Server) registerEventRoutes() {
	events := s.engine.Group("/events")

	events.POST("", s.TrackEvent)
	events.POST("/batch", s.BatchTrackEvents)
	events.GET("/customers/:id", s.ListCustomerEvents)
	events.GET("/customers/:id/usage", s.GetCustomerEventUsage)
}

func (s *Server) registerInvoiceRoutes() {
	invoices := s.engine.Group("/invoices")

	invoices.POST("", s.CreateInvoice)
	invoices.POST("/generate", s.GenerateInvoices)
	invoices.GET("/:id", s.GetInvoiceByID)
	invoices.GET("/customer/:id", s.ListCustomerInvoices)
	invoices.PUT("/:id/status", s.UpdateInvoiceStatus)
	invoices.PUT("/:id/finalize", s.FinalizeInvoice)
	invoices.PUT("/:id/void", s.VoidInvoice)
	invoices.POST("/:id/items", s.AddInvoiceItem)
	invoices.DELETE("/:id/items/:iid", s.RemoveInvoiceItem)
}

func (s *Server) registerUsageRoutes() {
	usage := s.engine.Group("/usage")

	usage.POST("/track", s.TrackUsage)
	usage.GET("/customer/:id", s.GetCustomerUsage)
}
