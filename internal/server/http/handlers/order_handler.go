package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/domain/model"
	"github.com/dinehall/tableside/internal/server/http/dto"
)

// OrderHandler manages ledger endpoints.
type OrderHandler struct {
	facade OrderFacade
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(facade OrderFacade) *OrderHandler {
	return &OrderHandler{facade: facade}
}

// Submit handles POST /api/sessions/:sessionID/orders.
func (h *OrderHandler) Submit(c *gin.Context) {
	sessionID := c.Param("sessionID")

	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	items := make([]model.OrderItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, model.OrderItemRequest{DishID: item.DishID, Quantity: item.Quantity})
	}

	order, err := h.facade.SubmitOrder(c.Request.Context(), sessionID, items)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrEmptyItems), errors.Is(err, domainErrors.ErrDishNotFound):
			c.Status(http.StatusUnprocessableEntity)
		case errors.Is(err, domainErrors.ErrSessionNotOpen):
			c.Status(http.StatusConflict)
		case errors.Is(err, domainErrors.ErrNotFound):
			c.Status(http.StatusNotFound)
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.JSON(http.StatusCreated, dto.SubmitOrderResponse{
		OrderID: order.ID,
		Status:  string(order.Status),
	})
}

// List handles GET /api/sessions/:sessionID/orders.
func (h *OrderHandler) List(c *gin.Context) {
	sessionID := c.Param("sessionID")

	orders, err := h.facade.SessionOrders(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]dto.OrderResponse, 0, len(orders))
	for _, order := range orders {
		response = append(response, toOrderResponse(order))
	}

	c.JSON(http.StatusOK, response)
}

func toOrderResponse(order model.Order) dto.OrderResponse {
	items := make([]dto.LineItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, dto.LineItemResponse{
			DishID:    item.DishID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return dto.OrderResponse{
		OrderID:     order.ID,
		Items:       items,
		Status:      string(order.Status),
		SubmittedAt: order.SubmittedAt,
	}
}
