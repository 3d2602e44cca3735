package ivr

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/calendarx"
	"dialer-platform/internal/events"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/telephony"
)

var testNow = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

type fixture struct {
	h          *Handler
	broadcasts *broadcast.Service
	queue      *queue.Service
	leadDir    *leads.MemoryDirectory
	scheduler  *calendarx.MemoryScheduler
	gate       *MemoryTransferGate
	b          broadcast.Broadcast
	item       queue.QueueItem
}

func newFixture(t *testing.T, actions []broadcast.DTMFAction, mutate func(*broadcast.CreateRequest)) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return testNow }

	bsvc := broadcast.NewService(broadcast.NewMemoryStore())
	bsvc.SetClock(clock)
	qsvc := queue.NewService(queue.NewMemoryStore())
	qsvc.SetClock(clock)

	leadDir := leads.NewMemoryDirectory()
	if err := leadDir.Upsert(ctx, leads.Lead{ID: "lead-1", WorkspaceID: "ws1", Phone: "+14155550100"}); err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	scheduler := calendarx.NewMemoryScheduler()
	gate := NewMemoryTransferGate()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	req := broadcast.CreateRequest{
		WorkspaceID:    "ws1",
		Name:           "spring sale",
		MessageText:    "press one to talk to us",
		DTMFActions:    actions,
		CallsPerMinute: 10,
		MaxAttempts:    2,
		CallingHours:   broadcast.CallingHours{Bypass: true},
	}
	if mutate != nil {
		mutate(&req)
	}
	b, err := bsvc.Create(ctx, req)
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	b, err = bsvc.SetAudio(ctx, "ws1", b.ID, "https://cdn.example.com/msg.mp3")
	if err != nil {
		t.Fatalf("set audio: %v", err)
	}
	if _, err := bsvc.SetStatus(ctx, "ws1", b.ID, broadcast.StatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if _, err := qsvc.Enqueue(ctx, "ws1", b.ID, []queue.LeadRef{{LeadID: "lead-1", Phone: "+14155550100"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	items, err := qsvc.ClaimBatch(ctx, "ws1", b.ID, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("claim: %v items=%d", err, len(items))
	}
	item, err := qsvc.MarkDispatched(ctx, items[0], "CA100")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	h := NewHandler(bsvc, qsvc, leads.NewDNCMarker(leadDir, log), scheduler,
		events.NewBus(16), NewMemoryDeduper(), gate,
		"https://dialer.example.com/webhooks/twilio/gather", log)
	h.SetClock(clock)

	b, _ = bsvc.Get(ctx, "ws1", b.ID)
	return &fixture{h: h, broadcasts: bsvc, queue: qsvc, leadDir: leadDir, scheduler: scheduler, gate: gate, b: b, item: item}
}

func transferActions() []broadcast.DTMFAction {
	return []broadcast.DTMFAction{
		{Digit: "1", Type: broadcast.ActionTransfer, TransferTo: "+18005550199"},
		{Digit: "2", Type: broadcast.ActionCallback, DelayHours: 4, CreateCalendarEvent: true, SendSMSReminder: true},
		{Digit: "9", Type: broadcast.ActionDNC},
		{Digit: "0", Type: broadcast.ActionReplay},
	}
}

func TestAnswerByHumanPlaysAndGathers(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	reply, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{
		ProviderCallID: "CA100",
		AnsweredBy:     telephony.AnsweredByHuman,
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if reply.PlayURL == "" || !reply.Gather {
		t.Fatalf("reply = %+v, want play with gather", reply)
	}

	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusAnswered {
		t.Fatalf("status = %s, want answered", item.Status)
	}
	b, _ := f.broadcasts.Get(ctx, "ws1", f.b.ID)
	if b.Counters.Answered != 1 {
		t.Fatalf("answered counter = %d", b.Counters.Answered)
	}
}

func TestDuplicateAnswerCountsOnce(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()
	cb := telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}

	for i := 0; i < 3; i++ {
		if _, err := f.h.HandleAnswer(ctx, cb); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	b, _ := f.broadcasts.Get(ctx, "ws1", f.b.ID)
	if b.Counters.Answered != 1 {
		t.Fatalf("answered counter = %d, want 1", b.Counters.Answered)
	}
}

func TestAnswerByMachineHangsUp(t *testing.T) {
	f := newFixture(t, transferActions(), func(req *broadcast.CreateRequest) {
		req.AMD = broadcast.AMDPolicy{Enabled: true, OnDetect: broadcast.AMDHangup}
	})
	ctx := context.Background()

	reply, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{
		ProviderCallID: "CA100",
		AnsweredBy:     telephony.AnsweredByMachine,
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !reply.Hangup || reply.PlayURL != "" {
		t.Fatalf("reply = %+v, want bare hangup", reply)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed", item.Status)
	}
}

func TestAnswerByMachineLeavesMessage(t *testing.T) {
	f := newFixture(t, transferActions(), func(req *broadcast.CreateRequest) {
		req.AMD = broadcast.AMDPolicy{
			Enabled:           true,
			OnDetect:          broadcast.AMDLeaveMessage,
			VoicemailAudioURL: "https://cdn.example.com/vm.mp3",
		}
	})
	ctx := context.Background()

	reply, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{
		ProviderCallID: "CA100",
		AnsweredBy:     telephony.AnsweredByMachine,
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if reply.PlayURL != "https://cdn.example.com/vm.mp3" || !reply.Hangup {
		t.Fatalf("reply = %+v, want voicemail audio then hangup", reply)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed", item.Status)
	}
}

func TestGatherTransferDigit(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	if _, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	reply, err := f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "1"})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if reply.TransferTo != "+18005550199" {
		t.Fatalf("reply = %+v, want transfer", reply)
	}

	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusTransferred || item.Digit != "1" {
		t.Fatalf("item = %+v", item)
	}
	b, _ := f.broadcasts.Get(ctx, "ws1", f.b.ID)
	if b.Counters.Transferred != 1 {
		t.Fatalf("transferred counter = %d, want 1", b.Counters.Transferred)
	}
}

func TestGatherTransferRespectsAgentCap(t *testing.T) {
	f := newFixture(t, transferActions(), func(req *broadcast.CreateRequest) {
		req.Transfer = broadcast.TransferTarget{MaxConcurrent: 1}
	})
	ctx := context.Background()

	// Another transferred call already holds the only slot.
	if ok, _ := f.gate.TryAcquire(ctx, f.b.ID, 1); !ok {
		t.Fatal("could not pre-fill the gate")
	}

	if _, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	reply, err := f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "1"})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if reply.TransferTo != "" || !reply.Gather {
		t.Fatalf("reply = %+v, want replay instead of transfer", reply)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusAnswered {
		t.Fatalf("status = %s, want still answered", item.Status)
	}
}

func TestGatherCallbackSchedulesFollowups(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	if _, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	reply, err := f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "2"})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !reply.Hangup {
		t.Fatalf("reply = %+v, want hangup", reply)
	}

	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusCallback {
		t.Fatalf("status = %s, want callback", item.Status)
	}
	wantAt := testNow.Add(4 * time.Hour)
	if item.CallbackAt == nil || !item.CallbackAt.Equal(wantAt) {
		t.Fatalf("callback_at = %v, want %v", item.CallbackAt, wantAt)
	}
	if f.scheduler.EventCount() != 1 || f.scheduler.ReminderCount() != 1 {
		t.Fatalf("events=%d reminders=%d, want 1 each", f.scheduler.EventCount(), f.scheduler.ReminderCount())
	}
	b, _ := f.broadcasts.Get(ctx, "ws1", f.b.ID)
	if b.Counters.Callbacks != 1 {
		t.Fatalf("callbacks counter = %d", b.Counters.Callbacks)
	}
}

func TestGatherCallbackSurvivesSchedulerFailure(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()
	f.scheduler.EventErr = calendarx.ErrInvalidInput

	if _, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "2"}); err != nil {
		t.Fatalf("gather should not fail on scheduler error: %v", err)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusCallback {
		t.Fatalf("status = %s, want callback despite scheduler failure", item.Status)
	}
}

func TestGatherDNCFlagsLead(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	if _, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	reply, err := f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "9"})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !reply.Hangup {
		t.Fatalf("reply = %+v", reply)
	}

	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusDNC {
		t.Fatalf("status = %s, want dnc", item.Status)
	}
	lead, _ := f.leadDir.Get(ctx, "ws1", "lead-1")
	if !lead.DNC {
		t.Fatal("lead not flagged dnc")
	}
	b, _ := f.broadcasts.Get(ctx, "ws1", f.b.ID)
	if b.Counters.DNC != 1 {
		t.Fatalf("dnc counter = %d", b.Counters.DNC)
	}
}

func TestGatherReplayDigit(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	if _, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	reply, err := f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "0"})
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !reply.Gather || reply.PlayURL == "" {
		t.Fatalf("reply = %+v, want replay with gather", reply)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusAnswered {
		t.Fatalf("status = %s, replay must not change it", item.Status)
	}
}

func TestGatherUnmappedDigitReplaysOnceThenCompletes(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	if _, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// First unmapped press replays.
	reply, err := f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "5"})
	if err != nil {
		t.Fatalf("first gather: %v", err)
	}
	if !reply.Gather {
		t.Fatalf("reply = %+v, want replay", reply)
	}

	// Second unmapped press gives up.
	reply, err = f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "5"})
	if err != nil {
		t.Fatalf("second gather: %v", err)
	}
	if !reply.Hangup {
		t.Fatalf("reply = %+v, want hangup", reply)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed", item.Status)
	}
}

func TestStatusNoAnswerRequeues(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	err := f.h.HandleStatus(ctx, telephony.StatusCallback{
		ProviderCallID: "CA100",
		Status:         telephony.CallStateNoAnswer,
	})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusPending {
		t.Fatalf("status = %s, want pending (attempt 1 of 2)", item.Status)
	}
}

func TestStatusDuplicateDeliveryIgnored(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()
	cb := telephony.StatusCallback{ProviderCallID: "CA100", Status: telephony.CallStateCompleted}

	if err := f.h.HandleStatus(ctx, cb); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := f.h.HandleStatus(ctx, cb); err != nil {
		t.Fatalf("duplicate status: %v", err)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusCompleted {
		t.Fatalf("status = %s", item.Status)
	}
}

func TestStatusCanceledNeverRedials(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	err := f.h.HandleStatus(ctx, telephony.StatusCallback{
		ProviderCallID: "CA100",
		Status:         telephony.CallStateCanceled,
	})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed with no redial", item.Status)
	}
}

func TestStatusReleasesTransferSlot(t *testing.T) {
	f := newFixture(t, transferActions(), func(req *broadcast.CreateRequest) {
		req.Transfer = broadcast.TransferTarget{MaxConcurrent: 1}
	})
	ctx := context.Background()

	if _, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "1"}); err != nil {
		t.Fatalf("gather: %v", err)
	}
	if f.gate.Active(f.b.ID) != 1 {
		t.Fatalf("active slots = %d, want 1", f.gate.Active(f.b.ID))
	}

	if err := f.h.HandleStatus(ctx, telephony.StatusCallback{ProviderCallID: "CA100", Status: telephony.CallStateCompleted}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if f.gate.Active(f.b.ID) != 0 {
		t.Fatalf("active slots = %d, want 0 after call end", f.gate.Active(f.b.ID))
	}
	// The transferred outcome is preserved.
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusTransferred {
		t.Fatalf("status = %s, want transferred", item.Status)
	}
}

func TestProgressStatusTouchesItem(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	before, _ := f.queue.Get(ctx, "ws1", f.item.ID)

	later := testNow.Add(30 * time.Second)
	f.h.SetClock(func() time.Time { return later })
	f.queue.SetClock(func() time.Time { return later })

	if err := f.h.HandleStatus(ctx, telephony.StatusCallback{ProviderCallID: "CA100", Status: telephony.CallStateRinging}); err != nil {
		t.Fatalf("status: %v", err)
	}
	after, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatal("progress callback did not refresh updated_at")
	}
	if after.Status != queue.StatusCalling {
		t.Fatalf("status = %s, want unchanged", after.Status)
	}
}

func TestReleaseDueCallbacks(t *testing.T) {
	f := newFixture(t, transferActions(), nil)
	ctx := context.Background()

	if _, err := f.h.HandleAnswer(ctx, telephony.AnswerCallback{ProviderCallID: "CA100", AnsweredBy: telephony.AnsweredByHuman}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := f.h.HandleGather(ctx, telephony.GatherCallback{ProviderCallID: "CA100", Digits: "2"}); err != nil {
		t.Fatalf("gather: %v", err)
	}

	// Not due yet.
	n, err := f.queue.ReleaseDueCallbacks(ctx, "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if n != 0 {
		t.Fatalf("released %d, want 0 before due time", n)
	}

	// After the 4h delay the item goes back to pending.
	f.queue.SetClock(func() time.Time { return testNow.Add(5 * time.Hour) })
	n, err = f.queue.ReleaseDueCallbacks(ctx, "ws1", f.b.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if n != 1 {
		t.Fatalf("released %d, want 1", n)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusPending || item.CallbackAt != nil {
		t.Fatalf("item = %+v", item)
	}
}

func conversationalFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixture(t, nil, func(req *broadcast.CreateRequest) {
		req.IVRMode = broadcast.IVRModeConversational
		req.Transfer = broadcast.TransferTarget{Destination: "+18005550199", MaxConcurrent: 1}
	})
}

func TestAgentOutcomeTransferred(t *testing.T) {
	f := conversationalFixture(t)
	ctx := context.Background()

	err := f.h.HandleAgentOutcome(ctx, telephony.AgentOutcomeCallback{
		ProviderCallID: "CA100",
		Outcome:        AgentOutcomeTransferred,
		TransferTo:     "+18005550199",
	})
	if err != nil {
		t.Fatalf("agent outcome: %v", err)
	}

	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusTransferred {
		t.Fatalf("status = %s, want transferred", item.Status)
	}
	b, _ := f.broadcasts.Get(ctx, "ws1", f.b.ID)
	if b.Counters.Transferred != 1 {
		t.Fatalf("transferred counter = %d", b.Counters.Transferred)
	}
	if f.gate.Active(f.b.ID) != 1 {
		t.Fatalf("gate active = %d, want the agent's slot held", f.gate.Active(f.b.ID))
	}
}

func TestAgentOutcomeDNCFlagsLead(t *testing.T) {
	f := conversationalFixture(t)
	ctx := context.Background()

	err := f.h.HandleAgentOutcome(ctx, telephony.AgentOutcomeCallback{
		ProviderCallID: "CA100",
		Outcome:        AgentOutcomeDNC,
	})
	if err != nil {
		t.Fatalf("agent outcome: %v", err)
	}

	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusDNC {
		t.Fatalf("status = %s, want dnc", item.Status)
	}
	lead, _ := f.leadDir.Get(ctx, "ws1", "lead-1")
	if !lead.DNC {
		t.Fatal("lead not flagged dnc")
	}
}

func TestAgentOutcomeCallbackDefaultsDelay(t *testing.T) {
	f := conversationalFixture(t)
	ctx := context.Background()

	err := f.h.HandleAgentOutcome(ctx, telephony.AgentOutcomeCallback{
		ProviderCallID: "CA100",
		Outcome:        AgentOutcomeCallback,
	})
	if err != nil {
		t.Fatalf("agent outcome: %v", err)
	}

	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusCallback {
		t.Fatalf("status = %s, want callback", item.Status)
	}
	want := testNow.Add(24 * time.Hour)
	if item.CallbackAt == nil || !item.CallbackAt.Equal(want) {
		t.Fatalf("callback_at = %v, want %v", item.CallbackAt, want)
	}
}

func TestAgentOutcomeDuplicateIgnored(t *testing.T) {
	f := conversationalFixture(t)
	ctx := context.Background()

	cb := telephony.AgentOutcomeCallback{ProviderCallID: "CA100", Outcome: AgentOutcomeCompleted}
	if err := f.h.HandleAgentOutcome(ctx, cb); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.h.HandleAgentOutcome(ctx, cb); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	item, _ := f.queue.Get(ctx, "ws1", f.item.ID)
	if item.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed", item.Status)
	}
}

func TestAgentOutcomeRejectedInDTMFMode(t *testing.T) {
	f := newFixture(t, transferActions(), nil)

	err := f.h.HandleAgentOutcome(context.Background(), telephony.AgentOutcomeCallback{
		ProviderCallID: "CA100",
		Outcome:        AgentOutcomeCompleted,
	})
	if err == nil {
		t.Fatal("agent outcome accepted for a dtmf broadcast")
	}
}

func TestAgentOutcomeUnknownValue(t *testing.T) {
	f := conversationalFixture(t)

	err := f.h.HandleAgentOutcome(context.Background(), telephony.AgentOutcomeCallback{
		ProviderCallID: "CA100",
		Outcome:        "voicemail-maybe",
	})
	if err == nil {
		t.Fatal("unknown outcome accepted")
	}
	item, _ := f.queue.Get(context.Background(), "ws1", f.item.ID)
	if item.Status != queue.StatusCalling {
		t.Fatalf("status = %s, unknown outcome must not move the item", item.Status)
	}
}
