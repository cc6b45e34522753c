package billing

import (
	"strings"
	"time"

	"github.com/launchdeck/launchdeck/app/models"
)

// Ambiguous discount shapes are never guessed at: the record is written
// with this review note so an operator can resolve it.
const reviewNoteAmbiguousDiscount = "discount shape not recognized; needs manual review"

// TranslatePromotionObject maps a provider coupon-like object onto a local
// promo code candidate. Discount resolution order: percent_off wins, then
// amount_off (minor units converted to major), otherwise the custom-price
// fallback with a null value and a review note.
func TranslatePromotionObject(obj *PromotionObject) *models.PromoCode {
	candidate := &models.PromoCode{
		Code:              models.NormalizeCode(obj.Code),
		IsActive:          obj.Active,
		MaxUses:           obj.MaxRedemptions,
		ExternalCouponRef: couponID(obj),
		SyncStatus:        models.SyncStatusSynced,
	}
	if strings.TrimSpace(obj.ID) != "" {
		ref := obj.ID
		candidate.ExternalPromotionRef = &ref
	}
	if obj.ExpiresAt != nil && *obj.ExpiresAt > 0 {
		t := time.Unix(*obj.ExpiresAt, 0).UTC()
		candidate.ExpiresAt = &t
	}

	percentOff, amountOff := discountFields(obj)
	switch {
	case percentOff != nil:
		candidate.DiscountType = models.DiscountTypePercentage
		v := *percentOff
		candidate.DiscountValue = &v
	case amountOff != nil:
		candidate.DiscountType = models.DiscountTypeFixed
		v := float64(*amountOff) / 100
		candidate.DiscountValue = &v
	default:
		candidate.DiscountType = models.DiscountTypeCustomPrice
		candidate.DiscountValue = nil
		candidate.ReviewNote = reviewNoteAmbiguousDiscount
	}
	return candidate
}

// discountFields resolves the discount source: the object's own fields take
// precedence, falling back to the embedded coupon.
func discountFields(obj *PromotionObject) (*float64, *int64) {
	if obj.PercentOff != nil || obj.AmountOff != nil {
		return obj.PercentOff, obj.AmountOff
	}
	if obj.Coupon != nil {
		return obj.Coupon.PercentOff, obj.Coupon.AmountOff
	}
	return nil, nil
}

func couponID(obj *PromotionObject) string {
	if obj.Coupon != nil {
		return obj.Coupon.ID
	}
	return ""
}

// TranslatesToPromo reports whether an event type carries a customer-facing
// promotion code. A bare coupon.created is intentionally excluded: a coupon
// without a promotion code is not customer-facing, and the later
// promotion_code.created event supplies the full record.
func TranslatesToPromo(eventType string) bool {
	switch eventType {
	case EventPromotionCodeCreated, EventPromotionCodeUpdated:
		return true
	default:
		return false
	}
}
