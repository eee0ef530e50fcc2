package api

import (
	"net/http"
	"strconv"

	"agri-storefront/internal/cart"
	"agri-storefront/internal/models"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	Product  models.ProductRef `json:"product"`
	Quantity int               `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type addItemResponse struct {
	cart.AddResult
	Cart cart.Snapshot `json:"cart"`
}

func (h *Handler) shopperCart(c *gin.Context) (*cart.Store, bool) {
	store, err := h.carts.Cart(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return store, true
}

func (h *Handler) getCart(c *gin.Context) {
	store, ok := h.shopperCart(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, store.Snapshot())
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if req.Product.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Product ID is required"})
		return
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	store, ok := h.shopperCart(c)
	if !ok {
		return
	}

	res := store.AddItem(c.Request.Context(), req.Product, req.Quantity)
	status := http.StatusOK
	if res.Action == cart.ActionAdded {
		status = http.StatusCreated
	}
	c.JSON(status, addItemResponse{AddResult: res, Cart: store.Snapshot()})
}

func (h *Handler) updateCartItem(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	store, ok := h.shopperCart(c)
	if !ok {
		return
	}
	store.UpdateQuantity(c.Request.Context(), productID, req.Quantity)
	c.JSON(http.StatusOK, store.Snapshot())
}

func (h *Handler) removeCartItem(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}
	store, ok := h.shopperCart(c)
	if !ok {
		return
	}
	store.RemoveItem(c.Request.Context(), productID)
	c.JSON(http.StatusOK, store.Snapshot())
}

func (h *Handler) clearCart(c *gin.Context) {
	store, ok := h.shopperCart(c)
	if !ok {
		return
	}
	store.Clear(c.Request.Context())
	c.JSON(http.StatusOK, store.Snapshot())
}

func parseProductID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return 0, false
	}
	return id, true
}
