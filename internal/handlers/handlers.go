package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/untibullet/teamfinder/internal/models"
	"github.com/untibullet/teamfinder/internal/realtime"
	"github.com/untibullet/teamfinder/internal/repository"
	"github.com/untibullet/teamfinder/internal/service"
	"go.uber.org/zap"
)

// Коды ошибок для API
const (
	ErrCodeValidation        = "VALIDATION"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeTeamExists        = "TEAM_EXISTS"
	ErrCodeInvitePending     = "INVITE_PENDING"
	ErrCodeRequestPending    = "REQUEST_PENDING"
	ErrCodeAlreadyMember     = "ALREADY_MEMBER"
	ErrCodeAlreadyOnTeam     = "ALREADY_ON_TEAM"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInternal          = "INTERNAL"
)

// UserIDHeader задает заголовок с идентификатором вызывающего пользователя
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// Subscriber выдает подписки на события изменений
type Subscriber interface {
	Subscribe(f realtime.Filter, handler realtime.Handler) *realtime.Subscription
}

type Handler struct {
	svc    *service.TeamService
	events Subscriber
	logger *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New создает новый экземпляр обработчика
func New(svc *service.TeamService, events Subscriber, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		events: events,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Close завершает открытые потоки событий. Обычные запросы не затрагиваются.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ErrorResponse представляет структуру ошибки API
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newErrorResponse создает стандартный ответ с ошибкой
func newErrorResponse(code, message string) ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	return resp
}

// errorStatus сопоставляет ошибку сервиса с HTTP-статусом, кодом и текстом для клиента
func errorStatus(err error) (int, string, string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrCodeValidation, ve.Error()
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "resource not found"
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden, ErrCodeForbidden, "action is not allowed for this user"
	case errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict, ErrCodeTeamExists, "team already exists"
	case errors.Is(err, repository.ErrInvitePending):
		return http.StatusConflict, ErrCodeInvitePending, "invitation already pending"
	case errors.Is(err, repository.ErrRequestPending):
		return http.StatusConflict, ErrCodeRequestPending, "join request already pending"
	case errors.Is(err, repository.ErrAlreadyMember):
		return http.StatusConflict, ErrCodeAlreadyMember, "user is already a team member"
	case errors.Is(err, repository.ErrAlreadyOnTeam):
		return http.StatusConflict, ErrCodeAlreadyOnTeam, "user already has a team in this competition"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, ErrCodeInvalidTransition, err.Error()
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
	}
}

// fail пишет ответ с ошибкой и логирует ее: 5xx как ошибку, остальное как предупреждение
func (h *Handler) fail(c echo.Context, op string, err error, fields ...zap.Field) error {
	status, code, message := errorStatus(err)
	fields = append(fields, zap.String("code", code), zap.Error(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+": ошибка обработки запроса", fields...)
	} else {
		h.logger.Warn(op+": запрос отклонен", fields...)
	}
	return c.JSON(status, newErrorResponse(code, message))
}

func (h *Handler) badRequest(c echo.Context, op, message string, err error) error {
	h.logger.Warn(op+": некорректный запрос", zap.String("reason", message), zap.Error(err))
	return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, message))
}

// requireUser извлекает пользователя из заголовка X-User-ID
func (h *Handler) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get(UserIDHeader)
		if raw == "" {
			h.logger.Warn("requireUser: заголовок пользователя отсутствует", zap.String("uri", c.Request().RequestURI))
			return c.JSON(http.StatusUnauthorized, newErrorResponse(ErrCodeUnauthorized, "X-User-ID header is required"))
		}
		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			h.logger.Warn("requireUser: некорректный идентификатор пользователя", zap.String("value", raw))
			return c.JSON(http.StatusUnauthorized, newErrorResponse(ErrCodeUnauthorized, "X-User-ID must be a valid uuid"))
		}
		c.Set(userIDKey, userID)
		return next(c)
	}
}

func currentUser(c echo.Context) uuid.UUID {
	id, _ := c.Get(userIDKey).(uuid.UUID)
	return id
}

// pathID разбирает uuid из параметра маршрута
func pathID(c echo.Context, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Param(name))
}

// RegisterRoutes регистрирует все маршруты API
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	auth := h.requireUser

	// Teams
	e.POST("/teams", h.CreateTeam, auth)
	e.GET("/teams/:id", h.GetTeam, auth)
	e.PUT("/teams/:id/needs", h.DeclareNeeds, auth)
	e.POST("/teams/:id/candidates/search", h.SearchCandidates, auth)
	e.GET("/teams/:id/suggestions", h.ListTeamSuggestions, auth)
	e.POST("/teams/:id/invitations", h.SendInvitations, auth)
	e.POST("/teams/:id/registration", h.RegisterTeam, auth)
	e.POST("/teams/:id/join-requests", h.RequestToJoin, auth)

	// Seekers
	e.POST("/competitions/:id/matches", h.FindTeams, auth)
	e.GET("/me/suggestions", h.ListUserSuggestions, auth)

	// Invitations
	e.GET("/invitations", h.ListInvitations, auth)
	e.POST("/invitations/:id/accept", h.respondToInvitation(models.DecisionAccept), auth)
	e.POST("/invitations/:id/reject", h.respondToInvitation(models.DecisionReject), auth)

	// Join requests
	e.GET("/join-requests", h.ListJoinRequests, auth)
	e.POST("/join-requests/:id/accept", h.respondToJoinRequest(models.DecisionAccept), auth)
	e.POST("/join-requests/:id/reject", h.respondToJoinRequest(models.DecisionReject), auth)

	// Realtime
	e.GET("/events", h.Events, auth)
}
