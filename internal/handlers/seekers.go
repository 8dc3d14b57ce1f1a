package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/untibullet/teamfinder/internal/service"
	"go.uber.org/zap"
)

// FindTeams подбирает команды соревнования по навыкам участника
func (h *Handler) FindTeams(c echo.Context) error {
	competitionID, err := pathID(c, "id")
	if err != nil {
		return h.badRequest(c, "FindTeams", "invalid competition id", err)
	}

	var req struct {
		Skills string `json:"skills"`
	}
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "FindTeams", "invalid request body", err)
	}

	userID := currentUser(c)
	h.logger.Info("FindTeams: подбор команд",
		zap.String("user_id", userID.String()),
		zap.String("competition_id", competitionID.String()))

	res, err := h.svc.FindTeams(c.Request().Context(), service.FindTeamsInput{
		UserID:        userID,
		CompetitionID: competitionID,
		Skills:        req.Skills,
	})
	if err != nil {
		return h.fail(c, "FindTeams", err, zap.String("user_id", userID.String()))
	}

	h.logger.Info("FindTeams: подбор завершен",
		zap.String("user_id", userID.String()),
		zap.Int("matches", res.AllMatches),
		zap.Bool("no_team_found", res.NoTeamFound))
	return c.JSON(http.StatusOK, res)
}

// RequestToJoin отправляет заявку на вступление в команду
func (h *Handler) RequestToJoin(c echo.Context) error {
	teamID, err := pathID(c, "id")
	if err != nil {
		return h.badRequest(c, "RequestToJoin", "invalid team id", err)
	}

	userID := currentUser(c)
	h.logger.Info("RequestToJoin: заявка на вступление", zap.String("team_id", teamID.String()), zap.String("user_id", userID.String()))

	req, err := h.svc.RequestToJoin(c.Request().Context(), userID, teamID)
	if err != nil {
		return h.fail(c, "RequestToJoin", err, zap.String("team_id", teamID.String()), zap.String("user_id", userID.String()))
	}

	h.logger.Info("RequestToJoin: заявка создана", zap.String("request_id", req.ID.String()))
	return c.JSON(http.StatusCreated, map[string]interface{}{"join_request": req})
}

// ListUserSuggestions возвращает команды, подобранные для вызывающего пользователя
func (h *Handler) ListUserSuggestions(c echo.Context) error {
	userID := currentUser(c)

	suggestions, err := h.svc.ListUserSuggestions(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, "ListUserSuggestions", err, zap.String("user_id", userID.String()))
	}

	h.logger.Info("ListUserSuggestions: предложения получены", zap.String("user_id", userID.String()), zap.Int("count", len(suggestions)))
	return c.JSON(http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}
