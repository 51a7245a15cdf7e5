// Package notify carries the fire-and-forget transition events. Emission is
// detached from the triggering operation: an enqueue failure is logged and
// swallowed, never rolled back into the caller.
package notify

import (
	"context"
	"encoding/json"

	"kolmarket/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TaskCampaignActivated = "campaign:activated"
	TaskCampaignFilled    = "campaign:filled"
	TaskCampaignCompleted = "campaign:completed"
	TaskCampaignExpired   = "campaign:expired"
	TaskCampaignCancelled = "campaign:cancelled"
	TaskSlotAccepted      = "slot:accepted"
	TaskPayoutPaid        = "payout:paid"
)

const queue = "notify"

type CampaignEvent struct {
	CampaignID    string `json:"campaign_id"`
	ProjectName   string `json:"project_name"`
	Status        string `json:"status"`
	AcceptedCount int    `json:"accepted_count"`
	SlotCount     int    `json:"slot_count"`
}

type SlotAcceptedEvent struct {
	CampaignID    string `json:"campaign_id"`
	AcceptanceID  string `json:"acceptance_id"`
	KOLChatID     int64  `json:"kol_chat_id"`
	AcceptedCount int    `json:"accepted_count"`
	SlotCount     int    `json:"slot_count"`
	Filled        bool   `json:"filled"`
}

type PayoutPaidEvent struct {
	AcceptanceID string `json:"acceptance_id"`
	CampaignID   string `json:"campaign_id"`
	KOLChatID    int64  `json:"kol_chat_id"`
	Amount       int64  `json:"amount"`
}

var Module = fx.Module("notify",
	fx.Provide(NewEvents, NewTask),
	fx.Invoke(RegisterHandlers),
)

// Events emits transition events. A nil Enqueuer yields a no-op emitter,
// which tests and offline tools rely on.
type Events struct {
	enq task.Enqueuer
}

type EventsParams struct {
	fx.In

	Enqueuer task.Enqueuer `optional:"true"`
}

func NewEvents(p EventsParams) *Events {
	return &Events{enq: p.Enqueuer}
}

// NopEvents returns an emitter that drops everything.
func NopEvents() *Events {
	return &Events{}
}

func (e *Events) emit(ctx context.Context, taskType string, payload any) {
	if e == nil || e.enq == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("failed to marshal event payload", zap.String("task_type", taskType), zap.Error(err))
		return
	}

	if _, err := e.enq.Enqueue(ctx, asynq.NewTask(taskType, body), asynq.Queue(queue), asynq.MaxRetry(3)); err != nil {
		zap.L().Warn("failed to enqueue event, dropping",
			zap.String("task_type", taskType),
			zap.Error(err),
		)
	}
}

func (e *Events) CampaignActivated(ctx context.Context, ev CampaignEvent) {
	e.emit(ctx, TaskCampaignActivated, ev)
}

func (e *Events) CampaignFilled(ctx context.Context, ev CampaignEvent) {
	e.emit(ctx, TaskCampaignFilled, ev)
}

func (e *Events) CampaignCompleted(ctx context.Context, ev CampaignEvent) {
	e.emit(ctx, TaskCampaignCompleted, ev)
}

func (e *Events) CampaignExpired(ctx context.Context, ev CampaignEvent) {
	e.emit(ctx, TaskCampaignExpired, ev)
}

func (e *Events) CampaignCancelled(ctx context.Context, ev CampaignEvent) {
	e.emit(ctx, TaskCampaignCancelled, ev)
}

func (e *Events) SlotAccepted(ctx context.Context, ev SlotAcceptedEvent) {
	e.emit(ctx, TaskSlotAccepted, ev)
}

func (e *Events) PayoutPaid(ctx context.Context, ev PayoutPaidEvent) {
	e.emit(ctx, TaskPayoutPaid, ev)
}
