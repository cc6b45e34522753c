package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/launchdeck/launchdeck/app/models"
)

// ProviderName identifies the external billing provider in persisted rows.
const ProviderName = "billing"

// Service reconciles local promo code state with the external billing
// provider: inbound via webhook events, outbound via full sync passes.
type Service struct {
	repo     Repository
	provider *ProviderClient
}

// NewService creates a reconciliation service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a reconciliation service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// WithProvider attaches the outbound provider client used by SyncAll.
func (s *Service) WithProvider(client *ProviderClient) *Service {
	s.provider = client
	return s
}

// HandleEvent dispatches a verified event to the matching reconciliation
// step and returns the affected promo code, if any. Unhandled event types
// are a logged no-op.
func (s *Service) HandleEvent(ctx context.Context, evt *Event) (*models.PromoCode, error) {
	switch evt.Type {
	case EventPromotionCodeCreated, EventPromotionCodeUpdated:
		obj, err := ParsePromotionObject(evt.Data.Object)
		if err != nil {
			return nil, err
		}
		return s.UpsertPromoFromObject(ctx, obj)
	case EventCouponCreated:
		// A coupon without a promotion code is not customer-facing. The
		// promotion_code.created event that follows carries the full record.
		log.Infof("[Billing] Deferring coupon.created %s until its promotion code arrives", evt.ID)
		return nil, nil
	case EventCouponDeleted:
		obj, err := ParsePromotionObject(evt.Data.Object)
		if err != nil {
			return nil, err
		}
		n, err := s.repo.DeactivatePromosByCouponRef(obj.ID)
		if err != nil {
			return nil, err
		}
		log.Infof("[Billing] coupon.deleted %s deactivated %d promo code(s)", obj.ID, n)
		return nil, nil
	default:
		log.Infof("[Billing] Ignoring unhandled event type %q", evt.Type)
		return nil, nil
	}
}

// UpsertPromoFromObject translates a provider object and performs the
// idempotent store write. Datastore errors propagate to the caller; the
// webhook handler turns them into a 500 so the provider redelivers.
func (s *Service) UpsertPromoFromObject(ctx context.Context, obj *PromotionObject) (*models.PromoCode, error) {
	_ = ctx
	if strings.TrimSpace(obj.Code) == "" {
		return nil, errors.New("promotion object is missing a code")
	}

	candidate := TranslatePromotionObject(obj)
	if candidate.ReviewNote != "" {
		log.Warnf("[Billing] Promo %s has an ambiguous discount shape; flagged for review", candidate.Code)
	}
	if err := s.repo.UpsertPromoFromSync(candidate); err != nil {
		return nil, err
	}
	return candidate, nil
}

// SyncAll runs one full reconciliation pass: push locally created pending
// codes to the provider, then pull the provider's promotion codes and
// upsert every one of them. Invoked by the debounced coalescer and the
// admin resync endpoint.
func (s *Service) SyncAll(ctx context.Context) error {
	if s.provider == nil {
		return errors.New("billing provider client is not configured")
	}

	if err := s.pushPending(ctx); err != nil {
		return err
	}

	objects, err := s.provider.ListPromotionCodes(ctx)
	if err != nil {
		return err
	}
	for i := range objects {
		if _, err := s.UpsertPromoFromObject(ctx, &objects[i]); err != nil {
			return err
		}
	}
	log.Infof("[Billing] Full reconciliation pass upserted %d promotion code(s)", len(objects))
	return nil
}

// pushPending creates provider coupons + promotion codes for local rows
// still awaiting their outbound push. A per-row failure marks the row with
// sync_status=error and continues so one bad code cannot stall the pass.
func (s *Service) pushPending(ctx context.Context) error {
	pending, err := s.repo.ListPromosBySyncStatus(models.SyncStatusPending)
	if err != nil {
		return err
	}

	for i := range pending {
		promo := &pending[i]
		if err := s.pushOne(ctx, promo); err != nil {
			log.Errorf("[Billing] Push of promo %s failed: %v", promo.Code, err)
			promo.SyncStatus = models.SyncStatusError
			promo.SyncError = err.Error()
			if saveErr := s.repo.SavePromo(promo); saveErr != nil {
				return saveErr
			}
		}
	}
	return nil
}

func (s *Service) pushOne(ctx context.Context, promo *models.PromoCode) error {
	couponID := promo.ExternalCouponRef
	if couponID == "" {
		id, err := s.provider.CreateCoupon(ctx, promo)
		if err != nil {
			return err
		}
		couponID = id
	}

	promotionID, err := s.provider.CreatePromotionCode(ctx, couponID, promo)
	if err != nil {
		return err
	}

	promo.ExternalCouponRef = couponID
	promo.ExternalPromotionRef = &promotionID
	promo.SyncStatus = models.SyncStatusSynced
	promo.SyncError = ""
	return s.repo.SavePromo(promo)
}

// RecordWebhookEvent persists webhook payloads idempotently. The returned
// bool is false when the provider redelivered an event we already hold.
func (s *Service) RecordWebhookEvent(ctx context.Context, eventID, eventType string, payload []byte, signatureValid bool) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	id := strings.TrimSpace(eventID)
	if id == "" {
		sum := sha256.Sum256(payload)
		id = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        ProviderName,
		ProviderEventID: id,
		EventType:       strings.TrimSpace(eventType),
		PayloadJSON:     string(payload),
		SignatureValid:  signatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// NeedsReprocessing reports whether a redelivered event must run through
// processing again. A delivery that never completed successfully is exactly
// what the provider's redelivery retries, so the dedup row must not swallow
// it. Reconciliation events stay replay-safe beyond that: their upserts are
// idempotent, so a redelivery just refreshes the stored record and advances
// synced_at. Only a successfully processed checkout keeps the duplicate
// short-circuit, because tenant provisioning must not run twice.
func NeedsReprocessing(stored *models.BillingWebhookEvent, eventType string) bool {
	if !stored.ProcessedSuccessfully() {
		return true
	}
	return eventType != EventCheckoutCompleted
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}
