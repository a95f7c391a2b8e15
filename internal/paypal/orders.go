package paypal

import (
	"context"
	"encoding/json"
	"fmt"
)

// amount mirrors PayPal's money object.
type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type orderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type purchaseUnit struct {
	Amount      purchaseAmount `json:"amount"`
	Description string         `json:"description"`
	Items       []orderItem    `json:"items"`
}

type purchaseAmount struct {
	CurrencyCode string          `json:"currency_code"`
	Value        string          `json:"value"`
	Breakdown    amountBreakdown `json:"breakdown"`
}

type amountBreakdown struct {
	ItemTotal amount `json:"item_total"`
}

type orderItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitAmount  amount `json:"unit_amount"`
	Category    string `json:"category"`
}

type applicationContext struct {
	ReturnURL          string `json:"return_url"`
	CancelURL          string `json:"cancel_url"`
	ShippingPreference string `json:"shipping_preference"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// OrderResult is the outcome of creating a processor order. Raw carries the
// full processor response body, which the checkout page's JS expects to
// receive unchanged.
type OrderResult struct {
	OrderID    string
	Status     string
	ApproveURL string
	Raw        json.RawMessage
}

// CreateOrder creates a CAPTURE-intent order for a single digital product.
// The purchase is marked as digital goods with shipping suppressed.
func (c *Client) CreateOrder(ctx context.Context, name, currency, price string) (*OrderResult, error) {
	money := amount{CurrencyCode: currency, Value: price}
	payload, err := json.Marshal(orderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount: purchaseAmount{
				CurrencyCode: currency,
				Value:        price,
				Breakdown:    amountBreakdown{ItemTotal: money},
			},
			Description: name,
			Items: []orderItem{{
				Name:        name,
				Description: fmt.Sprintf("Access to %s", name),
				Quantity:    "1",
				UnitAmount:  money,
				Category:    "DIGITAL_GOODS",
			}},
		}},
		ApplicationContext: applicationContext{
			ReturnURL:          c.returnURL,
			CancelURL:          c.cancelURL,
			ShippingPreference: "NO_SHIPPING",
		},
	})
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("paypal: decoding order response: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("paypal: order response missing id")
	}

	result := &OrderResult{
		OrderID: resp.ID,
		Status:  resp.Status,
		Raw:     body,
	}
	for _, l := range resp.Links {
		if l.Rel == "approve" {
			result.ApproveURL = l.Href
			break
		}
	}
	return result, nil
}

type captureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
}

// CaptureResult is the outcome of capturing an approved order.
type CaptureResult struct {
	OrderID    string
	Status     string
	PayerEmail string
	Raw        json.RawMessage
}

// Completed reports whether the processor considers the capture final.
func (r *CaptureResult) Completed() bool {
	return r.Status == "COMPLETED"
}

// CaptureOrder captures the funds for a buyer-approved order.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	body, err := c.post(ctx, "/v2/checkout/orders/"+orderID+"/capture", nil)
	if err != nil {
		return nil, err
	}

	var resp captureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("paypal: decoding capture response: %w", err)
	}

	return &CaptureResult{
		OrderID:    resp.ID,
		Status:     resp.Status,
		PayerEmail: resp.Payer.EmailAddress,
		Raw:        body,
	}, nil
}
