package notify

import (
	"context"
	"encoding/json"
	"testing"

	"kolmarket/pkg/task"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, t)
	return &asynq.TaskInfo{}, nil
}

var _ task.Enqueuer = (*captureEnqueuer)(nil)

func TestEmitPayloads(t *testing.T) {
	enq := &captureEnqueuer{}
	ev := &Events{enq: enq}
	ctx := context.Background()

	ev.SlotAccepted(ctx, SlotAcceptedEvent{
		CampaignID: "c1", AcceptanceID: "a1", KOLChatID: 200,
		AcceptedCount: 3, SlotCount: 5,
	})
	ev.CampaignFilled(ctx, CampaignEvent{CampaignID: "c1", Status: "filled"})

	require.Len(t, enq.tasks, 2)
	require.Equal(t, TaskSlotAccepted, enq.tasks[0].Type())
	require.Equal(t, TaskCampaignFilled, enq.tasks[1].Type())

	var got SlotAcceptedEvent
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &got))
	require.Equal(t, int64(200), got.KOLChatID)
	require.Equal(t, 3, got.AcceptedCount)
}

func TestEmitNeverPropagatesFailure(t *testing.T) {
	ctx := context.Background()

	// Nop emitter: no enqueuer wired at all.
	NopEvents().CampaignActivated(ctx, CampaignEvent{CampaignID: "c1"})

	// Broken enqueuer: the error is swallowed.
	ev := &Events{enq: &captureEnqueuer{err: context.DeadlineExceeded}}
	ev.PayoutPaid(ctx, PayoutPaidEvent{AcceptanceID: "a1", Amount: 1000})
}

func TestHandlersDecodeTheirPayloads(t *testing.T) {
	h := NewTask()
	ctx := context.Background()

	body, err := json.Marshal(CampaignEvent{CampaignID: "c1", Status: "live"})
	require.NoError(t, err)
	require.NoError(t, h.HandleCampaignEvent(ctx, asynq.NewTask(TaskCampaignActivated, body)))

	require.Error(t, h.HandleCampaignEvent(ctx, asynq.NewTask(TaskCampaignActivated, []byte("{"))))
}
