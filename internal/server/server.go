package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/broadbill/broadbill/internal/auth"
	"github.com/broadbill/broadbill/internal/authorization"
	"github.com/broadbill/broadbill/internal/billing"
	"github.com/broadbill/broadbill/internal/config"
	"github.com/broadbill/broadbill/internal/customer"
	"github.com/broadbill/broadbill/internal/observability/logger"
	"github.com/broadbill/broadbill/internal/observability/metrics"
	"github.com/broadbill/broadbill/internal/payment"
	"github.com/broadbill/broadbill/internal/paymentmethod"
	"github.com/broadbill/broadbill/internal/plan"
	"github.com/broadbill/broadbill/internal/reporting"
	"github.com/broadbill/broadbill/internal/role"
	"github.com/broadbill/broadbill/internal/subscription"
	"github.com/broadbill/broadbill/internal/user"
	"github.com/broadbill/broadbill/internal/zone"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server owns the HTTP surface: routing, identity, permission gates
// and translation between wire shapes and domain services.
type Server struct {
	log     *zap.Logger
	cfg     config.Config
	metrics *metrics.HTTPMetrics

	auth          *auth.Service
	authz         authorization.Service
	zones         *zone.Service
	customers     *customer.Service
	plans         *plan.Service
	methods       *paymentmethod.Service
	subscriptions *subscription.Service
	users         *user.Service
	roles         *role.Service
	invoices      *billing.Service
	engine        *billing.Engine
	payments      *payment.Processor
	reports       *reporting.Service
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Metrics *metrics.HTTPMetrics

	Auth          *auth.Service
	Authz         authorization.Service
	Zones         *zone.Service
	Customers     *customer.Service
	Plans         *plan.Service
	Methods       *paymentmethod.Service
	Subscriptions *subscription.Service
	Users         *user.Service
	Roles         *role.Service
	Invoices      *billing.Service
	Engine        *billing.Engine
	Payments      *payment.Processor
	Reports       *reporting.Service
}

func NewServer(p Params) *Server {
	return &Server{
		log:           p.Log.Named("server"),
		cfg:           p.Cfg,
		metrics:       p.Metrics,
		auth:          p.Auth,
		authz:         p.Authz,
		zones:         p.Zones,
		customers:     p.Customers,
		plans:         p.Plans,
		methods:       p.Methods,
		subscriptions: p.Subscriptions,
		users:         p.Users,
		roles:         p.Roles,
		invoices:      p.Invoices,
		engine:        p.Engine,
		payments:      p.Payments,
		reports:       p.Reports,
	}
}

// Router assembles the gin engine with middleware and all API routes.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{SkipPaths: []string{"/healthz"}}))
	engine.Use(metrics.GinMiddleware(s.metrics))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.registerAPIRoutes(engine.Group("/api"))
	return engine
}

func (s *Server) registerAPIRoutes(api *gin.RouterGroup) {
	limiter := newLoginLimiter(10, 0.5)
	api.POST("/auth/login", limiter.Middleware(), s.login)

	authed := api.Group("", Authenticate(s.auth))
	perm := func(capability string) gin.HandlerFunc {
		return RequirePermission(s.authz, capability)
	}

	zones := authed.Group("/zones", perm(authorization.CanManageZones))
	{
		zones.POST("", s.createZone)
		zones.GET("", s.listZones)
		zones.GET("/:id", s.getZone)
		zones.PUT("/:id", s.updateZone)
		zones.DELETE("/:id", s.deleteZone)
	}

	customers := authed.Group("/customers", perm(authorization.CanManageCustomers))
	{
		customers.POST("", s.createCustomer)
		customers.GET("", s.listCustomers)
		customers.GET("/:id", s.getCustomer)
		customers.PUT("/:id", s.updateCustomer)
		customers.DELETE("/:id", s.deleteCustomer)
	}

	plans := authed.Group("/plans", perm(authorization.CanManagePlans))
	{
		plans.POST("", s.createPlan)
		plans.GET("", s.listPlans)
		plans.GET("/:id", s.getPlan)
		plans.PUT("/:id", s.updatePlan)
		plans.DELETE("/:id", s.deletePlan)
	}

	methods := authed.Group("/payment-methods", perm(authorization.CanManagePaymentMethods))
	{
		methods.POST("", s.createPaymentMethod)
		methods.GET("", s.listPaymentMethods)
		methods.PUT("/:id", s.updatePaymentMethod)
		methods.DELETE("/:id", s.deletePaymentMethod)
	}

	subscriptions := authed.Group("/subscriptions", perm(authorization.CanManageSubscriptions))
	{
		subscriptions.POST("", s.createSubscription)
		subscriptions.GET("/customer/:customerId", s.listSubscriptionsByCustomer)
		subscriptions.GET("/:id", s.getSubscription)
		subscriptions.PUT("/:id", s.updateSubscription)
		subscriptions.DELETE("/:id", s.deleteSubscription)
	}

	users := authed.Group("/users", perm(authorization.CanManageUsers))
	{
		users.POST("", s.createUser)
		users.GET("", s.listUsers)
		users.GET("/:id", s.getUser)
		users.PUT("/:id", s.updateUser)
		users.DELETE("/:id", s.deleteUser)
	}

	roles := authed.Group("/roles", perm(authorization.CanManageRoles))
	{
		roles.POST("", s.createRole)
		roles.GET("", s.listRoles)
		roles.GET("/:id", s.getRole)
		roles.PUT("/:id", s.updateRole)
		roles.DELETE("/:id", s.deleteRole)
		roles.GET("/permissions", s.listPermissions)
	}

	billingGroup := authed.Group("/billing")
	{
		billingGroup.POST("/generate-invoices", perm(authorization.CanGenerateInvoices), s.generateInvoices)
		billingGroup.GET("/invoices/customer/:customerId", perm(authorization.CanViewBilling), s.listInvoicesByCustomer)
		billingGroup.GET("/overview", perm(authorization.CanViewBilling), s.billingOverview)
		billingGroup.GET("/overview/zones", perm(authorization.CanViewBilling), s.outstandingByZone)
	}

	payments := authed.Group("/payments")
	{
		payments.POST("/create-order", perm(authorization.CanViewBilling), s.createOrder)
		payments.POST("/verify", perm(authorization.CanViewBilling), s.verifyPayment)
		payments.POST("/manual", perm(authorization.CanRecordManualPayments), s.recordManualPayment)
		payments.GET("/manual/pending", perm(authorization.CanViewPaymentApprovals), s.pendingManualPayments)
		payments.PUT("/manual/:transactionId/approve", perm(authorization.CanApprovePayments), s.approveManualPayment)
		payments.PUT("/manual/:transactionId/reject", perm(authorization.CanApprovePayments), s.rejectManualPayment)
	}
}

// RunHTTP starts the server under the fx lifecycle with a graceful
// drain on shutdown.
func RunHTTP(lc fx.Lifecycle, s *Server) {
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				s.log.Info("http server listening", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)
