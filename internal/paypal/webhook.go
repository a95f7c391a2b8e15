package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Webhook event types this system reacts to.
const (
	EventCheckoutOrderApproved   = "CHECKOUT.ORDER.APPROVED"
	EventCheckoutOrderCompleted  = "CHECKOUT.ORDER.COMPLETED"
	EventPaymentCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventPaymentCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventPaymentRefundCompleted  = "PAYMENT.REFUND.COMPLETED"
)

// WebhookEvent is a processor-originated notification.
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  webhookResource `json:"resource"`
}

type webhookResource struct {
	ID    string `json:"id"`
	Payer *struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	Amount *struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	} `json:"amount"`
	SupplementaryData *struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// ParseWebhookEvent decodes a raw webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("paypal: decoding webhook event: %w", err)
	}
	if event.EventType == "" {
		return nil, fmt.Errorf("paypal: webhook event missing event_type")
	}
	return &event, nil
}

// OrderID returns the checkout order the event refers to. Capture-scoped
// events carry the capture ID in resource.id and the order ID under
// supplementary_data.related_ids; order-scoped events carry it in resource.id.
func (e *WebhookEvent) OrderID() string {
	if e.Resource.SupplementaryData != nil && e.Resource.SupplementaryData.RelatedIDs.OrderID != "" {
		return e.Resource.SupplementaryData.RelatedIDs.OrderID
	}
	return e.Resource.ID
}

// PayerEmail returns the buyer email when the event carries one.
func (e *WebhookEvent) PayerEmail() string {
	if e.Resource.Payer != nil {
		return e.Resource.Payer.EmailAddress
	}
	return ""
}

// RefundAmount returns the refunded value and currency for refund events.
func (e *WebhookEvent) RefundAmount() (value, currency string) {
	if e.Resource.Amount != nil {
		return e.Resource.Amount.Value, e.Resource.Amount.CurrencyCode
	}
	return "", ""
}

// transmissionHeaders are the signature fields PayPal attaches to every
// webhook delivery.
var transmissionHeaders = []string{
	"Paypal-Transmission-Id",
	"Paypal-Transmission-Time",
	"Paypal-Cert-Url",
	"Paypal-Auth-Algo",
	"Paypal-Transmission-Sig",
}

type verifySignatureRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifySignatureResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature checks the transmission signature of an inbound
// webhook against PayPal's verification endpoint. It returns false without a
// network call when any signature header is absent.
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers http.Header, rawBody []byte) (bool, error) {
	for _, h := range transmissionHeaders {
		if headers.Get(h) == "" {
			return false, nil
		}
	}

	payload, err := json.Marshal(verifySignatureRequest{
		AuthAlgo:         headers.Get("Paypal-Auth-Algo"),
		CertURL:          headers.Get("Paypal-Cert-Url"),
		TransmissionID:   headers.Get("Paypal-Transmission-Id"),
		TransmissionSig:  headers.Get("Paypal-Transmission-Sig"),
		TransmissionTime: headers.Get("Paypal-Transmission-Time"),
		WebhookID:        c.webhookID,
		WebhookEvent:     rawBody,
	})
	if err != nil {
		return false, err
	}

	body, err := c.post(ctx, "/v1/notifications/verify-webhook-signature", payload)
	if err != nil {
		return false, err
	}

	var resp verifySignatureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("paypal: decoding verification response: %w", err)
	}
	return resp.VerificationStatus == "SUCCESS", nil
}
