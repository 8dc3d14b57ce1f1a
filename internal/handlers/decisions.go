package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/untibullet/teamfinder/internal/models"
	"go.uber.org/zap"
)

// ListInvitations возвращает приглашения вызывающего пользователя
func (h *Handler) ListInvitations(c echo.Context) error {
	userID := currentUser(c)

	invitations, err := h.svc.ListInvitations(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, "ListInvitations", err, zap.String("user_id", userID.String()))
	}

	h.logger.Info("ListInvitations: приглашения получены", zap.String("user_id", userID.String()), zap.Int("count", len(invitations)))
	return c.JSON(http.StatusOK, map[string]interface{}{"invitations": invitations})
}

// respondToInvitation возвращает обработчик решения приглашенного
func (h *Handler) respondToInvitation(decision models.Decision) echo.HandlerFunc {
	return func(c echo.Context) error {
		invitationID, err := pathID(c, "id")
		if err != nil {
			return h.badRequest(c, "RespondToInvitation", "invalid invitation id", err)
		}

		userID := currentUser(c)
		h.logger.Info("RespondToInvitation: решение по приглашению",
			zap.String("invitation_id", invitationID.String()),
			zap.String("decision", string(decision)))

		res, err := h.svc.RespondToInvitation(c.Request().Context(), invitationID, userID, decision)
		if err != nil {
			return h.fail(c, "RespondToInvitation", err, zap.String("invitation_id", invitationID.String()))
		}

		h.logger.Info("RespondToInvitation: приглашение обработано",
			zap.String("invitation_id", invitationID.String()),
			zap.String("status", string(res.Invitation.Status)))
		return c.JSON(http.StatusOK, res)
	}
}

// ListJoinRequests возвращает заявки в команды вызывающего пользователя
func (h *Handler) ListJoinRequests(c echo.Context) error {
	ownerID := currentUser(c)

	requests, err := h.svc.ListJoinRequests(c.Request().Context(), ownerID)
	if err != nil {
		return h.fail(c, "ListJoinRequests", err, zap.String("owner_id", ownerID.String()))
	}

	h.logger.Info("ListJoinRequests: заявки получены", zap.String("owner_id", ownerID.String()), zap.Int("count", len(requests)))
	return c.JSON(http.StatusOK, map[string]interface{}{"join_requests": requests})
}

// respondToJoinRequest возвращает обработчик решения владельца команды
func (h *Handler) respondToJoinRequest(decision models.Decision) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID, err := pathID(c, "id")
		if err != nil {
			return h.badRequest(c, "RespondToJoinRequest", "invalid join request id", err)
		}

		ownerID := currentUser(c)
		h.logger.Info("RespondToJoinRequest: решение по заявке",
			zap.String("request_id", requestID.String()),
			zap.String("decision", string(decision)))

		res, err := h.svc.RespondToJoinRequest(c.Request().Context(), requestID, ownerID, decision)
		if err != nil {
			return h.fail(c, "RespondToJoinRequest", err, zap.String("request_id", requestID.String()))
		}

		h.logger.Info("RespondToJoinRequest: заявка обработана",
			zap.String("request_id", requestID.String()),
			zap.String("status", string(res.Request.Status)))
		return c.JSON(http.StatusOK, res)
	}
}
