package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dinehall/tableside/internal/adapter/gateway"
	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/server/http/dto"
)

// PaymentHandler manages checkout and the gateway webhook.
type PaymentHandler struct {
	facade PaymentFacade
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(facade PaymentFacade) *PaymentHandler {
	return &PaymentHandler{facade: facade}
}

// Checkout handles POST /api/sessions/:sessionID/checkout.
func (h *PaymentHandler) Checkout(c *gin.Context) {
	sessionID := c.Param("sessionID")

	attempt, err := h.facade.Checkout(c.Request.Context(), sessionID)
	if err != nil {
		var rateLimited gateway.RateLimitedError
		switch {
		case errors.Is(err, domainErrors.ErrNotFound):
			c.Status(http.StatusNotFound)
		case errors.Is(err, domainErrors.ErrSessionNotOpen), errors.Is(err, domainErrors.ErrAttemptInFlight):
			c.Status(http.StatusConflict)
		case errors.Is(err, domainErrors.ErrEmptyItems):
			c.Status(http.StatusUnprocessableEntity)
		case errors.As(err, &rateLimited):
			c.Header("Retry-After", strconv.Itoa(int(rateLimited.RetryAfter.Seconds())))
			c.Status(http.StatusServiceUnavailable)
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.CheckoutResponse{
		PaymentAttemptID: attempt.ID,
		Amount:           attempt.Amount,
		Status:           string(attempt.Status),
	})
}

// GatewayCallback handles POST /api/gateway/callback.
func (h *PaymentHandler) GatewayCallback(c *gin.Context) {
	var req dto.GatewayCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	outcome := model.GatewayOutcome(req.Outcome)
	if req.GatewayRef == "" || (outcome != model.GatewayOutcomeSucceeded && outcome != model.GatewayOutcomeFailed) {
		c.Status(http.StatusBadRequest)
		return
	}

	if err := h.facade.HandleGatewayCallback(c.Request.Context(), req.GatewayRef, outcome); err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrNotFound):
			c.Status(http.StatusNotFound)
		case errors.Is(err, domainErrors.ErrAlreadyTerminal):
			c.Status(http.StatusConflict)
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Status(http.StatusOK)
}
