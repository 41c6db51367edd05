package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/soaringjerry/Archetype/internal/models"
)

func entryFor(t *testing.T, entity, op string, payload any) models.SyncEntry {
	t.Helper()
	doc, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return models.SyncEntry{ID: "e1", Entity: entity, Op: op, Payload: doc}
}

func TestDelivererRoutesByEntityAndOp(t *testing.T) {
	api := &fakeRemote{}
	d := NewRemoteDeliverer(api)
	ctx := context.Background()

	cases := []struct {
		entry    models.SyncEntry
		wantCall string
	}{
		{entryFor(t, models.EntityRespondent, models.OpCreate, models.Respondent{ID: "r1"}), "CreateRespondent"},
		{entryFor(t, models.EntityRespondent, models.OpUpdate, models.Respondent{ID: "r1"}), "UpdateRespondent"},
		{entryFor(t, models.EntitySession, models.OpCreate, models.TestSession{ID: "s1"}), "CreateSession"},
		{entryFor(t, models.EntitySession, models.OpUpdate, models.TestSession{ID: "s1"}), "UpdateSession"},
		{entryFor(t, models.EntityAnswer, models.OpCreate, models.AnswerRecord{ID: "a1"}), "SaveAnswer"},
		{entryFor(t, models.EntityAnswer, models.OpUpdate, models.AnswerRecord{ID: "a1"}), "SaveAnswer"},
		{entryFor(t, models.EntityAnswer, models.OpDelete, models.AnswerRecord{ID: "a1"}), "DeleteAnswer"},
		{entryFor(t, models.EntityOrder, models.OpCreate, models.PaymentOrder{ID: "o1"}), "CreateOrder"},
		{entryFor(t, models.EntityOrder, models.OpUpdate, models.PaymentOrder{ID: "o1"}), "UpdateOrder"},
		{entryFor(t, models.EntityBehavior, models.OpCreate, models.BehaviorLog{ID: "l1"}), "CreateLog"},
		{entryFor(t, models.EntityShare, models.OpCreate, models.ShareRecord{ID: "sh1"}), "CreateShare"},
		{entryFor(t, models.EntityShare, models.OpUpdate, models.ShareRecord{ID: "sh1"}), "UpdateShare"},
	}
	for _, tc := range cases {
		before := api.callCount(tc.wantCall)
		if err := d.Deliver(ctx, tc.entry); err != nil {
			t.Fatalf("Deliver %s/%s: %v", tc.entry.Entity, tc.entry.Op, err)
		}
		if got := api.callCount(tc.wantCall); got != before+1 {
			t.Fatalf("%s/%s must call %s", tc.entry.Entity, tc.entry.Op, tc.wantCall)
		}
	}
}

func TestDelivererRejectsUnknownEntity(t *testing.T) {
	d := NewRemoteDeliverer(&fakeRemote{})
	err := d.Deliver(context.Background(), models.SyncEntry{Entity: "widget", Op: models.OpCreate, Payload: []byte("{}")})
	if err == nil {
		t.Fatal("unknown entity must fail delivery")
	}
}
