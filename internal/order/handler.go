package order

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"orderflow/internal/logger"
	apperrors "orderflow/pkg/errors"
)

// Handler exposes order creation over HTTP.
type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) Register(router gin.IRouter) {
	router.POST("/orders", h.createOrder)
}

func (h *Handler) createOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid request body",
			"error_code": "BAD_REQUEST",
		})
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      "validation failed",
				"error_code": "VALIDATION_ERROR",
				"violations": validationErr.Violations,
			})
			return
		}

		h.logger.ErrorwCtx(c.Request.Context(), "Failed to create order",
			"error", err,
		)
		c.JSON(apperrors.ToHTTPStatus(err), apperrors.ToErrorResponse(err))
		return
	}

	c.JSON(http.StatusCreated, order)
}
