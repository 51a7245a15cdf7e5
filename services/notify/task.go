package notify

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Task consumes transition events from the notify queue. Delivery to the chat
// transport (admin pings, channel-post edits) happens here, out of band from
// the state machine that produced the event; the handlers never feed anything
// back into campaign state.
type Task struct{}

func NewTask() *Task {
	return &Task{}
}

func RegisterHandlers(lc fx.Lifecycle, mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(TaskCampaignActivated, t.HandleCampaignEvent)
	mux.HandleFunc(TaskCampaignFilled, t.HandleCampaignEvent)
	mux.HandleFunc(TaskCampaignCompleted, t.HandleCampaignEvent)
	mux.HandleFunc(TaskCampaignExpired, t.HandleCampaignEvent)
	mux.HandleFunc(TaskCampaignCancelled, t.HandleCampaignEvent)
	mux.HandleFunc(TaskSlotAccepted, t.HandleSlotAccepted)
	mux.HandleFunc(TaskPayoutPaid, t.HandlePayoutPaid)
}

func (t *Task) HandleCampaignEvent(ctx context.Context, task *asynq.Task) error {
	var ev CampaignEvent
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return err
	}

	zap.L().Info("campaign transition",
		zap.String("task_type", task.Type()),
		zap.String("campaign_id", ev.CampaignID),
		zap.String("project", ev.ProjectName),
		zap.String("status", ev.Status),
		zap.Int("accepted_count", ev.AcceptedCount),
		zap.Int("slot_count", ev.SlotCount),
	)
	return nil
}

func (t *Task) HandleSlotAccepted(ctx context.Context, task *asynq.Task) error {
	var ev SlotAcceptedEvent
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return err
	}

	zap.L().Info("slot accepted",
		zap.String("campaign_id", ev.CampaignID),
		zap.String("acceptance_id", ev.AcceptanceID),
		zap.Int64("kol_chat_id", ev.KOLChatID),
		zap.Int("accepted_count", ev.AcceptedCount),
		zap.Int("slot_count", ev.SlotCount),
		zap.Bool("filled", ev.Filled),
	)
	return nil
}

func (t *Task) HandlePayoutPaid(ctx context.Context, task *asynq.Task) error {
	var ev PayoutPaidEvent
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return err
	}

	zap.L().Info("payout marked paid",
		zap.String("acceptance_id", ev.AcceptanceID),
		zap.String("campaign_id", ev.CampaignID),
		zap.Int64("kol_chat_id", ev.KOLChatID),
		zap.Int64("amount", ev.Amount),
	)
	return nil
}
