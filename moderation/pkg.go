// Package moderation is the top-level surface of the content moderation
// pipeline: automated scoring, community consensus review, authority
// overrides, and the append-only audit trail behind them.
//
// Most callers only need this package; the sub-packages hold the engine
// itself and its pluggable storage backends.
package moderation

import (
	"github.com/Agathx/climact/moderation/countstore"
	"github.com/Agathx/climact/moderation/engine"
)

type Engine = engine.Engine
type EngineConfig = engine.EngineConfig
type SubmitParams = engine.SubmitParams
type StatusView = engine.StatusView

type Notifier = engine.Notifier
type SlackNotifier = engine.SlackNotifier
type LogNotifier = engine.LogNotifier
type Event = engine.Event

type RoleDirectory = engine.RoleDirectory
type StaticRoleDirectory = engine.StaticRoleDirectory
type HTTPRoleDirectory = engine.HTTPRoleDirectory

var (
	ErrValidation       = engine.ErrValidation
	ErrAlreadyVoted     = engine.ErrAlreadyVoted
	ErrAlreadyDecided   = engine.ErrAlreadyDecided
	ErrPermissionDenied = engine.ErrPermissionDenied
	ErrInvalidState     = engine.ErrInvalidState
	ErrRateLimited      = engine.ErrRateLimited

	RoleAdmin        = engine.RoleAdmin
	RoleCivilDefense = engine.RoleCivilDefense
	RoleCitizen      = engine.RoleCitizen

	DirectionUp   = engine.DirectionUp
	DirectionDown = engine.DirectionDown

	DecisionApprove = engine.DecisionApprove
	DecisionReject  = engine.DecisionReject

	PeriodTotal = countstore.PeriodTotal
	PeriodDay   = countstore.PeriodDay
	PeriodHour  = countstore.PeriodHour
)
