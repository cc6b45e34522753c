package billing

import (
	"encoding/json"
	"errors"
	"strings"
)

// Provider event types the reconciler dispatches on. Everything else is
// acknowledged and ignored.
const (
	EventPromotionCodeCreated = "promotion_code.created"
	EventPromotionCodeUpdated = "promotion_code.updated"
	EventCouponCreated        = "coupon.created"
	EventCouponDeleted        = "coupon.deleted"
	EventCheckoutCompleted    = "checkout.completed"
)

// Event is the provider's webhook envelope: a type discriminator plus an
// opaque object payload.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	Object json.RawMessage `json:"object"`
}

// ParseEvent decodes a verified webhook body into an event envelope.
// Callers must verify the signature first.
func ParseEvent(raw []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	if strings.TrimSpace(evt.Type) == "" {
		return nil, errors.New("webhook event is missing a type")
	}
	return &evt, nil
}

// CouponRef appears either as a bare provider coupon ID or as an embedded
// coupon object, depending on event expansion. Both forms are accepted.
type CouponRef struct {
	ID         string   `json:"id"`
	PercentOff *float64 `json:"percent_off"`
	AmountOff  *int64   `json:"amount_off"`
	Currency   string   `json:"currency"`
	Valid      bool     `json:"valid"`
}

func (c *CouponRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*c = CouponRef{ID: id}
		return nil
	}
	type couponAlias CouponRef
	var obj couponAlias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*c = CouponRef(obj)
	return nil
}

// PromotionObject is the coupon-like object carried by promotion_code and
// coupon events. The discount fields may sit on the object itself or on the
// embedded coupon.
type PromotionObject struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Active         bool       `json:"active"`
	MaxRedemptions *int       `json:"max_redemptions"`
	ExpiresAt      *int64     `json:"expires_at"`
	PercentOff     *float64   `json:"percent_off"`
	AmountOff      *int64     `json:"amount_off"`
	Coupon         *CouponRef `json:"coupon"`
}

// ParsePromotionObject decodes the data.object of a promotion-code or
// coupon event.
func ParsePromotionObject(raw json.RawMessage) (*PromotionObject, error) {
	var obj PromotionObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// CheckoutObject is the data.object of a checkout.completed event. It
// carries what the tenant activation path needs and nothing else.
type CheckoutObject struct {
	ID              string `json:"id"`
	CustomerEmail   string `json:"customer_email"`
	TenantSubdomain string `json:"tenant_subdomain"`
	Plan            string `json:"plan"`
}

// ParseCheckoutObject decodes the data.object of a checkout.completed event.
func ParseCheckoutObject(raw json.RawMessage) (*CheckoutObject, error) {
	var obj CheckoutObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if strings.TrimSpace(obj.TenantSubdomain) == "" {
		return nil, errors.New("checkout object is missing tenant_subdomain")
	}
	return &obj, nil
}
