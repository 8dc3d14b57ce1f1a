package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/untibullet/teamfinder/internal/service"
	"go.uber.org/zap"
)

// CreateTeam создает команду, вызывающий пользователь становится капитаном
func (h *Handler) CreateTeam(c echo.Context) error {
	h.logger.Info("CreateTeam: начало обработки запроса")

	var req struct {
		CompetitionID uuid.UUID `json:"competition_id"`
		Name          string    `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "CreateTeam", "invalid request body", err)
	}

	userID := currentUser(c)
	team, err := h.svc.CreateTeam(c.Request().Context(), service.CreateTeamInput{
		CompetitionID: req.CompetitionID,
		OwnerID:       userID,
		Name:          req.Name,
	})
	if err != nil {
		return h.fail(c, "CreateTeam", err, zap.String("owner_id", userID.String()))
	}

	h.logger.Info("CreateTeam: команда успешно создана", zap.String("team_id", team.ID.String()), zap.String("name", team.Name))
	return c.JSON(http.StatusCreated, map[string]interface{}{"team": team})
}

// GetTeam возвращает команду с составом и потребностями
func (h *Handler) GetTeam(c echo.Context) error {
	teamID, err := pathID(c, "id")
	if err != nil {
		return h.badRequest(c, "GetTeam", "invalid team id", err)
	}
	h.logger.Info("GetTeam: получение команды", zap.String("team_id", teamID.String()))

	details, err := h.svc.GetTeam(c.Request().Context(), teamID)
	if err != nil {
		return h.fail(c, "GetTeam", err, zap.String("team_id", teamID.String()))
	}

	h.logger.Info("GetTeam: команда успешно получена", zap.String("team_id", teamID.String()), zap.Int("members_count", len(details.Members)))
	return c.JSON(http.StatusOK, details)
}

// DeclareNeeds сохраняет требуемые навыки и возвращает подходящих кандидатов
func (h *Handler) DeclareNeeds(c echo.Context) error {
	teamID, err := pathID(c, "id")
	if err != nil {
		return h.badRequest(c, "DeclareNeeds", "invalid team id", err)
	}
	h.logger.Info("DeclareNeeds: начало обработки запроса", zap.String("team_id", teamID.String()))

	var req struct {
		NeededRole string `json:"needed_role"`
		Skills     string `json:"skills"`
	}
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "DeclareNeeds", "invalid request body", err)
	}

	res, err := h.svc.DeclareNeeds(c.Request().Context(), service.DeclareNeedsInput{
		TeamID:     teamID,
		ActorID:    currentUser(c),
		NeededRole: req.NeededRole,
		Skills:     req.Skills,
	})
	if err != nil {
		return h.fail(c, "DeclareNeeds", err, zap.String("team_id", teamID.String()))
	}

	h.logger.Info("DeclareNeeds: потребности сохранены",
		zap.String("team_id", teamID.String()),
		zap.Int("skills_count", len(res.Need.NeededSkills)),
		zap.Int("matches", res.AllMatches))
	return c.JSON(http.StatusOK, res)
}

// SearchCandidates повторяет поиск кандидатов по сохраненным потребностям
func (h *Handler) SearchCandidates(c echo.Context) error {
	teamID, err := pathID(c, "id")
	if err != nil {
		return h.badRequest(c, "SearchCandidates", "invalid team id", err)
	}
	h.logger.Info("SearchCandidates: поиск кандидатов", zap.String("team_id", teamID.String()))

	res, err := h.svc.SearchCandidates(c.Request().Context(), teamID, currentUser(c))
	if err != nil {
		return h.fail(c, "SearchCandidates", err, zap.String("team_id", teamID.String()))
	}

	h.logger.Info("SearchCandidates: поиск завершен", zap.String("team_id", teamID.String()), zap.Int("matches", res.AllMatches))
	return c.JSON(http.StatusOK, res)
}

// ListTeamSuggestions возвращает сохраненных кандидатов команды
func (h *Handler) ListTeamSuggestions(c echo.Context) error {
	teamID, err := pathID(c, "id")
	if err != nil {
		return h.badRequest(c, "ListTeamSuggestions", "invalid team id", err)
	}

	suggestions, err := h.svc.ListTeamSuggestions(c.Request().Context(), teamID, currentUser(c))
	if err != nil {
		return h.fail(c, "ListTeamSuggestions", err, zap.String("team_id", teamID.String()))
	}

	h.logger.Info("ListTeamSuggestions: кандидаты получены", zap.String("team_id", teamID.String()), zap.Int("count", len(suggestions)))
	return c.JSON(http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

// SendInvitations приглашает выбранных кандидатов в команду
func (h *Handler) SendInvitations(c echo.Context) error {
	teamID, err := pathID(c, "id")
	if err != nil {
		return h.badRequest(c, "SendInvitations", "invalid team id", err)
	}
	h.logger.Info("SendInvitations: начало обработки запроса", zap.String("team_id", teamID.String()))

	var req struct {
		UserIDs []uuid.UUID `json:"user_ids"`
	}
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "SendInvitations", "invalid request body", err)
	}

	outcomes, err := h.svc.SendInvitations(c.Request().Context(), service.SendInvitationsInput{
		TeamID:  teamID,
		ActorID: currentUser(c),
		UserIDs: req.UserIDs,
	})
	if err != nil {
		return h.fail(c, "SendInvitations", err, zap.String("team_id", teamID.String()))
	}

	h.logger.Info("SendInvitations: приглашения обработаны", zap.String("team_id", teamID.String()), zap.Int("count", len(outcomes)))
	return c.JSON(http.StatusOK, map[string]interface{}{"results": outcomes})
}

// RegisterTeam регистрирует команду в соревновании
func (h *Handler) RegisterTeam(c echo.Context) error {
	teamID, err := pathID(c, "id")
	if err != nil {
		return h.badRequest(c, "RegisterTeam", "invalid team id", err)
	}
	h.logger.Info("RegisterTeam: регистрация команды", zap.String("team_id", teamID.String()))

	reg, err := h.svc.RegisterTeam(c.Request().Context(), teamID, currentUser(c))
	if err != nil {
		return h.fail(c, "RegisterTeam", err, zap.String("team_id", teamID.String()))
	}

	h.logger.Info("RegisterTeam: команда зарегистрирована", zap.String("team_id", teamID.String()))
	return c.JSON(http.StatusOK, map[string]interface{}{"registration": reg})
}
