package api

import (
	"net/http"

	"agri-storefront/internal/models"
	"agri-storefront/internal/service"

	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	models.CheckoutForm
	Profile        *models.UserProfile `json:"profile,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
}

// startCheckout commits COD orders directly and opens a transfer
// verification for prepaid ones
func (h *Handler) startCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	res, err := h.checkout.Checkout(c.Request.Context(), sessionID(c), service.CheckoutRequest{
		Form:           req.CheckoutForm,
		Profile:        req.Profile,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if res.Payment != nil {
		c.JSON(http.StatusAccepted, res.Payment)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) getVerification(c *gin.Context) {
	snap, err := h.checkout.Verification(sessionID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) closeVerification(c *gin.Context) {
	snap, err := h.checkout.CloseVerification(sessionID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) getConfirmation(c *gin.Context) {
	conf, err := h.confirmations.Confirmation(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conf)
}

func (h *Handler) dismissConfirmation(c *gin.Context) {
	if err := h.confirmations.DismissConfirmation(c.Request.Context(), sessionID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
