package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/launchdeck/launchdeck/app/models"
	"github.com/launchdeck/launchdeck/internal/pkg/env"
)

const defaultProviderAPIBaseURL = "https://api.billing.example.com/v1"

// ProviderClient talks to the external billing provider's REST API. It is
// used for the outbound half of reconciliation: pushing locally created
// promo codes and pulling the provider's promotion code list.
type ProviderClient struct {
	APIBaseURL string
	APIKey     string

	HTTPClient *http.Client
}

// ProviderCoupon is the provider-native coupon resource.
type ProviderCoupon struct {
	ID         string   `json:"id"`
	PercentOff *float64 `json:"percent_off,omitempty"`
	AmountOff  *int64   `json:"amount_off,omitempty"`
	Currency   string   `json:"currency,omitempty"`
}

// NewProviderClientFromEnv builds a client from environment configuration.
func NewProviderClientFromEnv() *ProviderClient {
	return &ProviderClient{
		APIBaseURL: strings.TrimRight(env.GetEnv("BILLING_API_BASE_URL", defaultProviderAPIBaseURL), "/"),
		APIKey:     strings.TrimSpace(env.GetEnv("BILLING_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCoupon creates the provider coupon backing a local promo code and
// returns its provider ID. Custom-price codes are represented externally as
// a 100% discount, matching the provider's convention.
func (c *ProviderClient) CreateCoupon(ctx context.Context, promo *models.PromoCode) (string, error) {
	if err := c.checkConfigured(); err != nil {
		return "", err
	}

	body := map[string]interface{}{}
	switch promo.DiscountType {
	case models.DiscountTypePercentage:
		if promo.DiscountValue == nil {
			return "", errors.New("percentage promo is missing a discount value")
		}
		body["percent_off"] = *promo.DiscountValue
	case models.DiscountTypeFixed:
		if promo.DiscountValue == nil {
			return "", errors.New("fixed promo is missing a discount value")
		}
		body["amount_off"] = int64(*promo.DiscountValue * 100)
		body["currency"] = "usd"
	case models.DiscountTypeCustomPrice:
		body["percent_off"] = float64(100)
	default:
		return "", fmt.Errorf("unknown discount type %q", promo.DiscountType)
	}

	var out ProviderCoupon
	if err := c.post(ctx, "/coupons", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("provider returned an empty coupon id")
	}
	return out.ID, nil
}

// CreatePromotionCode creates the customer-facing promotion code for an
// existing provider coupon and returns its provider ID.
func (c *ProviderClient) CreatePromotionCode(ctx context.Context, couponID string, promo *models.PromoCode) (string, error) {
	if err := c.checkConfigured(); err != nil {
		return "", err
	}
	if strings.TrimSpace(couponID) == "" {
		return "", errors.New("coupon id is required")
	}

	body := map[string]interface{}{
		"coupon": couponID,
		"code":   promo.Code,
		"active": promo.IsActive,
	}
	if promo.MaxUses != nil {
		body["max_redemptions"] = *promo.MaxUses
	}
	if promo.ExpiresAt != nil {
		body["expires_at"] = promo.ExpiresAt.Unix()
	}

	var out PromotionObject
	if err := c.post(ctx, "/promotion_codes", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errors.New("provider returned an empty promotion code id")
	}
	return out.ID, nil
}

// ListPromotionCodes pulls the provider's promotion codes, paging until the
// provider reports no more data.
func (c *ProviderClient) ListPromotionCodes(ctx context.Context) ([]PromotionObject, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, err
	}

	var all []PromotionObject
	startingAfter := ""
	for {
		u, err := url.Parse(c.APIBaseURL + "/promotion_codes")
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("limit", "100")
		if startingAfter != "" {
			q.Set("starting_after", startingAfter)
		}
		u.RawQuery = q.Encode()

		var page struct {
			Data    []PromotionObject `json:"data"`
			HasMore bool              `json:"has_more"`
		}
		if err := c.get(ctx, u.String(), &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if !page.HasMore || len(page.Data) == 0 {
			return all, nil
		}
		startingAfter = page.Data[len(page.Data)-1].ID
	}
}

func (c *ProviderClient) checkConfigured() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("BILLING_API_KEY is not configured")
	}
	return nil
}

func (c *ProviderClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *ProviderClient) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *ProviderClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("billing provider request failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
