package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soaringjerry/Archetype/internal/models"
)

// RemoteDeliverer replays persisted queue entries against the remote API.
// Entities created offline are posted with their locally-assigned ids, so
// the server can detect and adopt duplicates.
type RemoteDeliverer struct {
	api RemoteAPI
}

func NewRemoteDeliverer(api RemoteAPI) *RemoteDeliverer {
	return &RemoteDeliverer{api: api}
}

func (d *RemoteDeliverer) Deliver(ctx context.Context, entry models.SyncEntry) error {
	switch entry.Entity {
	case models.EntityRespondent:
		var r models.Respondent
		if err := json.Unmarshal(entry.Payload, &r); err != nil {
			return fmt.Errorf("decode respondent payload: %w", err)
		}
		if entry.Op == models.OpUpdate {
			_, err := d.api.UpdateRespondent(ctx, &r)
			return err
		}
		_, err := d.api.CreateRespondent(ctx, &r)
		return err

	case models.EntitySession:
		var s models.TestSession
		if err := json.Unmarshal(entry.Payload, &s); err != nil {
			return fmt.Errorf("decode session payload: %w", err)
		}
		if entry.Op == models.OpUpdate {
			_, err := d.api.UpdateSession(ctx, &s)
			return err
		}
		_, err := d.api.CreateSession(ctx, &s)
		return err

	case models.EntityAnswer:
		var a models.AnswerRecord
		if err := json.Unmarshal(entry.Payload, &a); err != nil {
			return fmt.Errorf("decode answer payload: %w", err)
		}
		if entry.Op == models.OpDelete {
			return d.api.DeleteAnswer(ctx, a.ID)
		}
		// Create and update both land on the upserting save endpoint.
		_, err := d.api.SaveAnswer(ctx, &a)
		return err

	case models.EntityOrder:
		var o models.PaymentOrder
		if err := json.Unmarshal(entry.Payload, &o); err != nil {
			return fmt.Errorf("decode order payload: %w", err)
		}
		if entry.Op == models.OpUpdate {
			_, err := d.api.UpdateOrder(ctx, &o)
			return err
		}
		_, err := d.api.CreateOrder(ctx, &o)
		return err

	case models.EntityBehavior:
		var l models.BehaviorLog
		if err := json.Unmarshal(entry.Payload, &l); err != nil {
			return fmt.Errorf("decode behavior payload: %w", err)
		}
		_, err := d.api.CreateLog(ctx, &l)
		return err

	case models.EntityShare:
		var sh models.ShareRecord
		if err := json.Unmarshal(entry.Payload, &sh); err != nil {
			return fmt.Errorf("decode share payload: %w", err)
		}
		if entry.Op == models.OpUpdate {
			_, err := d.api.UpdateShare(ctx, &sh)
			return err
		}
		_, err := d.api.CreateShare(ctx, &sh)
		return err
	}
	return fmt.Errorf("unknown sync entity %q", entry.Entity)
}
