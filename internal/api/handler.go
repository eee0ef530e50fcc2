package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agri-storefront/internal/backend"
	"agri-storefront/internal/cart"
	"agri-storefront/internal/checkout"
	"agri-storefront/internal/models"
	"agri-storefront/internal/service"
	"agri-storefront/internal/store"
	"agri-storefront/internal/util"
	"agri-storefront/internal/verification"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionHeader identifies the shopper. Carts, checkouts and confirmations
// are all scoped to it.
const SessionHeader = "X-Session-ID"

const sessionKey = "session_id"

type CartProvider interface {
	Cart(ctx context.Context, sessionID string) (*cart.Store, error)
}

type CheckoutService interface {
	ActivePaymentMethods(ctx context.Context) ([]models.PaymentMethod, error)
	Checkout(ctx context.Context, sessionID string, req service.CheckoutRequest) (*service.CheckoutResult, error)
	Verification(sessionID, verificationID string) (verification.Snapshot, error)
	CloseVerification(sessionID, verificationID string) (verification.Snapshot, error)
}

type ConfirmationService interface {
	Confirmation(ctx context.Context, sessionID string) (*service.Confirmation, error)
	DismissConfirmation(ctx context.Context, sessionID string) error
}

type OrderLookup interface {
	MyOrders(ctx context.Context) ([]models.OrderRecord, error)
	LookupOrder(ctx context.Context, orderNo string) (*models.OrderRecord, error)
}

type ReconciliationService interface {
	ListPending(ctx context.Context, limit int) ([]models.Reconciliation, error)
	Get(ctx context.Context, id int64) (*models.Reconciliation, error)
	Resolve(ctx context.Context, id int64) error
}

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	carts           CartProvider
	checkout        CheckoutService
	confirmations   ConfirmationService
	orders          OrderLookup
	reconciliations ReconciliationService
	checks          map[string]ReadinessCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(
	carts CartProvider,
	checkout CheckoutService,
	confirmations ConfirmationService,
	orders OrderLookup,
	reconciliations ReconciliationService,
	checks map[string]ReadinessCheck,
) *Handler {
	return &Handler{
		carts:           carts,
		checkout:        checkout,
		confirmations:   confirmations,
		orders:          orders,
		reconciliations: reconciliations,
		checks:          checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(bearerTokenMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/payment-methods", h.listPaymentMethods)
		v1.GET("/orders/my", h.myOrders)
		v1.GET("/orders/lookup/:orderNo", h.lookupOrder)

		shopper := v1.Group("", requireSession())
		shopper.GET("/cart", h.getCart)
		shopper.POST("/cart/items", h.addCartItem)
		shopper.PUT("/cart/items/:productId", h.updateCartItem)
		shopper.DELETE("/cart/items/:productId", h.removeCartItem)
		shopper.DELETE("/cart", h.clearCart)

		shopper.POST("/checkout", h.startCheckout)
		shopper.GET("/checkout/sessions/:id", h.getVerification)
		shopper.DELETE("/checkout/sessions/:id", h.closeVerification)
		shopper.GET("/checkout/confirmation", h.getConfirmation)
		shopper.DELETE("/checkout/confirmation", h.dismissConfirmation)

		admin := v1.Group("/admin")
		admin.GET("/reconciliations", h.listReconciliations)
		admin.GET("/reconciliations/:id", h.getReconciliation)
		admin.POST("/reconciliations/:id/resolve", h.resolveReconciliation)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every registered dependency check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listPaymentMethods(c *gin.Context) {
	methods, err := h.checkout.ActivePaymentMethods(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, methods)
}

func (h *Handler) myOrders(c *gin.Context) {
	if _, ok := c.Get(tokenKey); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	orders, err := h.orders.MyOrders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) lookupOrder(c *gin.Context) {
	order, err := h.orders.LookupOrder(c.Request.Context(), c.Param("orderNo"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listReconciliations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	recs, err := h.reconciliations.ListPending(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) getReconciliation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reconciliation ID"})
		return
	}
	rec, err := h.reconciliations.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) resolveReconciliation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reconciliation ID"})
		return
	}
	if err := h.reconciliations.Resolve(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

const tokenKey = "bearer_token"

// bearerTokenMiddleware forwards the shopper's token to backend calls
func bearerTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
			c.Set(tokenKey, token)
			c.Request = c.Request.WithContext(backend.ContextWithToken(c.Request.Context(), token))
		}
		c.Next()
	}
}

func requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Missing " + SessionHeader + " header",
			})
			return
		}
		c.Set(sessionKey, sessionID)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// writeError maps domain errors to HTTP statuses
func writeError(c *gin.Context, err error) {
	var verr *checkout.ValidationError
	var oce *service.OrderCreationError
	var se *backend.StatusError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "Checkout form is incomplete",
			"fields": verr.Fields,
		})
	case errors.Is(err, cart.ErrSessionRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateCommit):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrVerificationNotFound),
		errors.Is(err, service.ErrNoConfirmation),
		errors.Is(err, store.ErrReconciliationNotFound),
		errors.Is(err, backend.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &oce), errors.As(err, &se), errors.Is(err, backend.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Order service unavailable",
			"details": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal error",
			"details": err.Error(),
		})
	}
}
