// Package realtime реализует подписки на изменения таблиц
package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Типы событий изменения
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventAll    = "*"
)

// Таблицы, по которым публикуются события
const (
	TableInvitations  = "team_invitations"
	TableJoinRequests = "team_join_requests"
	TableMembers      = "team_members"
)

// Event описывает изменение одной строки таблицы
type Event struct {
	Table      string         `json:"table"`
	Type       string         `json:"type"`
	Record     map[string]any `json:"record"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Filter выбирает события по таблице, типу и равенству колонки
type Filter struct {
	Table  string
	Event  string
	Column string
	Value  string
}

// Match проверяет, подходит ли событие под фильтр
func (f Filter) Match(e Event) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if f.Event != "" && f.Event != EventAll && f.Event != e.Type {
		return false
	}
	if f.Column == "" {
		return true
	}
	v, ok := e.Record[f.Column]
	if !ok {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

// Handler получает события подписки
type Handler func(Event)

// Subscription представляет активную подписку, Unsubscribe можно вызывать повторно
type Subscription struct {
	hub     *Hub
	id      uint64
	filter  Filter
	handler Handler
	events  chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// Unsubscribe удаляет подписку из хаба и останавливает доставку
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		close(s.done)
	})
}

// Dropped возвращает количество событий, отброшенных из-за переполнения буфера
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.events:
			s.handler(e)
		}
	}
}

// Hub рассылает события подписчикам. Доставка не более одного раза и без повторов:
// публикация никогда не блокируется, при переполнении буфера событие теряется.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	logger *zap.Logger
}

// NewHub создает хаб с заданным размером буфера на подписку
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe регистрирует обработчик для событий, подходящих под фильтр
func (h *Hub) Subscribe(f Filter, handler Handler) *Subscription {
	h.mu.Lock()
	h.nextID++
	sub := &Subscription{
		hub:     h,
		id:      h.nextID,
		filter:  f,
		handler: handler,
		events:  make(chan Event, h.buffer),
		done:    make(chan struct{}),
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	go sub.run()
	return sub
}

// Publish доставляет событие всем подходящим подпискам
func (h *Hub) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.filter.Match(e) {
			continue
		}
		select {
		case sub.events <- e:
		default:
			sub.dropped.Add(1)
			h.logger.Warn("realtime event dropped",
				zap.String("table", e.Table),
				zap.String("type", e.Type),
				zap.Uint64("subscription", sub.id))
		}
	}
}

// Len возвращает число активных подписок
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}
