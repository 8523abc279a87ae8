package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/dinehall/tableside/internal/domain/errors"
	"github.com/dinehall/tableside/internal/server/http/dto"
)

// SessionHandler manages session lifecycle endpoints.
type SessionHandler struct {
	facade SessionFacade
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(facade SessionFacade) *SessionHandler {
	return &SessionHandler{facade: facade}
}

// Start handles POST /api/tables/:tableID/session. Scanning a table
// that already hosts a live session returns that session instead of a
// bare conflict, so a re-scan of the QR code resumes the visit.
func (h *SessionHandler) Start(c *gin.Context) {
	tableID := c.Param("tableID")

	session, err := h.facade.StartSession(c.Request.Context(), tableID)
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrTableOccupied):
			if live, liveErr := h.facade.LiveSessionForTable(c.Request.Context(), tableID); liveErr == nil {
				c.JSON(http.StatusConflict, dto.SessionResponse{
					SessionID: live.ID,
					TableID:   live.TableID,
					Status:    string(live.Status),
				})
				return
			}
			c.Status(http.StatusConflict)
		case errors.Is(err, domainErrors.ErrNotFound):
			c.Status(http.StatusNotFound)
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.JSON(http.StatusCreated, dto.SessionResponse{
		SessionID: session.ID,
		TableID:   session.TableID,
		Status:    string(session.Status),
	})
}

// Abandon handles POST /api/sessions/:sessionID/abandon.
func (h *SessionHandler) Abandon(c *gin.Context) {
	sessionID := c.Param("sessionID")

	if err := h.facade.AbandonSession(c.Request.Context(), sessionID); err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrNotFound):
			c.Status(http.StatusNotFound)
		case errors.Is(err, domainErrors.ErrInvalidTransition):
			c.Status(http.StatusConflict)
		default:
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Status(http.StatusOK)
}
