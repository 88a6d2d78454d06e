package settlement

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tidewell/storeops/internal/ledger"
	"github.com/tidewell/storeops/internal/logging"
	"github.com/tidewell/storeops/internal/pagination"
	"github.com/tidewell/storeops/internal/shop"
)

// Handler provides HTTP endpoints for reservation completion and ledger
// inquiry.
type Handler struct {
	service *Service
}

// NewHandler creates a new settlement handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up settlement routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/stores/:storeId/reservations/complete", h.CompleteBatch)
	r.POST("/stores/:storeId/reservations/:reservationId/complete", h.Complete)
	r.GET("/stores/:storeId/ledger", h.GetStoreLedger)
	r.GET("/stores/:storeId/ledger/verify", h.VerifyStoreLedger)
	r.GET("/stores/:storeId/customers/:customerId/credit-ledger", h.GetCreditLedger)
	r.GET("/stores/:storeId/customers/:customerId/fiat-ledger", h.GetFiatLedger)
	r.GET("/stores/:storeId/customers/:customerId/balance", h.GetBalance)
}

// Complete handles POST /stores/:storeId/reservations/:reservationId/complete
func (h *Handler) Complete(c *gin.Context) {
	r, err := h.service.CompleteReservation(c.Request.Context(), c.Param("storeId"), c.Param("reservationId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation": r})
}

// BatchRequest is the body of a batch completion.
type BatchRequest struct {
	ReservationIDs []string `json:"reservationIds" binding:"required,min=1,max=200,dive,required"`
}

// CompleteBatch handles POST /stores/:storeId/reservations/complete
func (h *Handler) CompleteBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reservationIds must list between 1 and 200 ids",
		})
		return
	}

	result, err := h.service.CompleteReservations(c.Request.Context(), c.Param("storeId"), req.ReservationIDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetStoreLedger handles GET /stores/:storeId/ledger
func (h *Handler) GetStoreLedger(c *gin.Context) {
	page, err := h.service.StoreLedger(c.Request.Context(), c.Param("storeId"), c.Query("cursor"), queryLimit(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// VerifyStoreLedger handles GET /stores/:storeId/ledger/verify
func (h *Handler) VerifyStoreLedger(c *gin.Context) {
	report, err := h.service.VerifyStoreLedger(c.Request.Context(), c.Param("storeId"), queryLimit(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetCreditLedger handles GET /stores/:storeId/customers/:customerId/credit-ledger
func (h *Handler) GetCreditLedger(c *gin.Context) {
	h.customerLedger(c, ledger.BookCredit)
}

// GetFiatLedger handles GET /stores/:storeId/customers/:customerId/fiat-ledger
func (h *Handler) GetFiatLedger(c *gin.Context) {
	h.customerLedger(c, ledger.BookFiat)
}

func (h *Handler) customerLedger(c *gin.Context, book ledger.Book) {
	page, err := h.service.CustomerLedger(c.Request.Context(), c.Param("storeId"), c.Param("customerId"), book, c.Query("cursor"), queryLimit(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetBalance handles GET /stores/:storeId/customers/:customerId/balance
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.service.CustomerBalance(c.Request.Context(), c.Param("storeId"), c.Param("customerId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var insufficient *InsufficientBalanceError
	var cfgErr *shop.ConfigError

	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "insufficient_balance",
			"message":   "Customer credit balance is too low",
			"required":  insufficient.Required.String(),
			"available": insufficient.Available.String(),
		})
	case errors.Is(err, ErrReservationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Reservation not found"})
	case errors.Is(err, ErrStoreNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Store not found"})
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status", "message": err.Error()})
	case errors.Is(err, pagination.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": "cursor is malformed"})
	case errors.Is(err, ErrInvalidBatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "configuration_error",
			"message": "Store is missing a " + cfgErr.Missing,
		})
	case errors.Is(err, ErrCompletionFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "completion_failed", "message": "Failed to complete reservation"})
	default:
		logging.L(c.Request.Context()).Error("settlement request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal error"})
	}
}

func queryLimit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return ledger.ClampLimit(limit)
}
