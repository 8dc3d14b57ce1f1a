package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/untibullet/teamfinder/internal/realtime"
	"go.uber.org/zap"
)

const (
	streamBuffer      = 32
	keepAliveInterval = 20 * time.Second
)

// Events отдает поток Server-Sent Events с изменениями, касающимися пользователя.
// Подписки снимаются при отключении клиента или остановке сервера.
func (h *Handler) Events(c echo.Context) error {
	userID := currentUser(c).String()

	stream := make(chan realtime.Event, streamBuffer)
	deliver := func(e realtime.Event) {
		select {
		case stream <- e:
		default:
			h.logger.Warn("Events: клиент не успевает читать поток, событие пропущено",
				zap.String("user_id", userID), zap.String("table", e.Table))
		}
	}

	filters := []realtime.Filter{
		// приглашения пользователю и ответы на приглашения его команд
		{Table: realtime.TableInvitations, Event: realtime.EventAll, Column: "user_id", Value: userID},
		{Table: realtime.TableInvitations, Event: realtime.EventDelete, Column: "owner_id", Value: userID},
		// заявки в команды пользователя и решения по его собственным заявкам
		{Table: realtime.TableJoinRequests, Event: realtime.EventAll, Column: "owner_id", Value: userID},
		{Table: realtime.TableJoinRequests, Event: realtime.EventDelete, Column: "user_id", Value: userID},
		{Table: realtime.TableMembers, Event: realtime.EventInsert, Column: "owner_id", Value: userID},
	}
	subs := make([]*realtime.Subscription, 0, len(filters))
	for _, f := range filters {
		subs = append(subs, h.events.Subscribe(f, deliver))
	}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
		h.logger.Info("Events: клиент отключился", zap.String("user_id", userID))
	}()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	h.logger.Info("Events: клиент подключился", zap.String("user_id", userID))

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil
		case e := <-stream:
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("Events: ошибка сериализации события", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Table, data); err != nil {
				return nil
			}
			w.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
