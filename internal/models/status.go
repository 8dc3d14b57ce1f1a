package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition возвращается при недопустимой смене статуса
var ErrInvalidTransition = errors.New("invalid status transition")

// TeamStatus описывает статус команды
type TeamStatus string

const (
	// TeamOpen: команда создана или для нее нашлись кандидаты
	TeamOpen TeamStatus = "open"
	// TeamPending: поиск по потребностям пока никого не нашел
	TeamPending TeamStatus = "pending"
)

var teamTransitions = map[TeamStatus][]TeamStatus{
	TeamOpen:    {TeamOpen, TeamPending},
	TeamPending: {TeamPending, TeamOpen},
}

// Valid сообщает, известен ли статус
func (s TeamStatus) Valid() bool {
	_, ok := teamTransitions[s]
	return ok
}

// CanTransition проверяет переход по таблице статусов команды
func (s TeamStatus) CanTransition(to TeamStatus) bool {
	return contains(teamTransitions[s], to)
}

// Transition возвращает новый статус или ErrInvalidTransition
func (s TeamStatus) Transition(to TeamStatus) (TeamStatus, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("team %q -> %q: %w", s, to, ErrInvalidTransition)
	}
	return to, nil
}

// DecisionStatus описывает статус приглашения или заявки на вступление
type DecisionStatus string

const (
	StatusPending  DecisionStatus = "pending"
	StatusAccepted DecisionStatus = "accepted"
	StatusRejected DecisionStatus = "rejected"
)

// accepted и rejected терминальные
var decisionTransitions = map[DecisionStatus][]DecisionStatus{
	StatusPending:  {StatusAccepted, StatusRejected},
	StatusAccepted: nil,
	StatusRejected: nil,
}

// Valid сообщает, известен ли статус
func (s DecisionStatus) Valid() bool {
	_, ok := decisionTransitions[s]
	return ok
}

// Terminal сообщает, что из статуса нет переходов
func (s DecisionStatus) Terminal() bool {
	return s.Valid() && len(decisionTransitions[s]) == 0
}

// CanTransition проверяет переход по таблице статусов решения
func (s DecisionStatus) CanTransition(to DecisionStatus) bool {
	return contains(decisionTransitions[s], to)
}

// Transition возвращает новый статус или ErrInvalidTransition
func (s DecisionStatus) Transition(to DecisionStatus) (DecisionStatus, error) {
	if !s.CanTransition(to) {
		return s, fmt.Errorf("decision %q -> %q: %w", s, to, ErrInvalidTransition)
	}
	return to, nil
}

// Decision описывает ответ на приглашение или заявку
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Target возвращает статус, в который переводит решение
func (d Decision) Target() (DecisionStatus, error) {
	switch d {
	case DecisionAccept:
		return StatusAccepted, nil
	case DecisionReject:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("unknown decision %q: %w", d, ErrInvalidTransition)
	}
}

// MemberStatus описывает статус участника команды
type MemberStatus string

const (
	MemberAccepted MemberStatus = "accepted"
	MemberActive   MemberStatus = "active"
	MemberPending  MemberStatus = "pending"
)

// Counts сообщает, занимает ли участник место в составе
func (s MemberStatus) Counts() bool {
	return s == MemberAccepted || s == MemberActive
}

// IntentStatus описывает статус намерения вступить в команду
type IntentStatus string

const IntentPending IntentStatus = "pending"

// RegistrationStatus описывает статус регистрации команды на соревнование
type RegistrationStatus string

const RegistrationRegistered RegistrationStatus = "registered"

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
