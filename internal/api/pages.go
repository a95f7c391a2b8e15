package api

import (
	"html/template"
	"log"
	"net/http"
)

// checkoutPage renders the PayPal buttons with the public client ID
// injected. The client ID is not a secret; the secret never reaches a page.
var checkoutPage = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Checkout</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 480px; margin: 40px auto; padding: 0 20px;">
	<h1>Checkout</h1>
	<div id="paypal-button-container"></div>
	<script src="https://www.paypal.com/sdk/js?client-id={{.ClientID}}&currency=USD"></script>
	<script>
		paypal.Buttons({
			createOrder: function() {
				return fetch('/api/create-paypal-order', {
					method: 'POST',
					headers: {'Content-Type': 'application/json'},
					body: JSON.stringify({name: 'Course A', currency: 'USD', price: '49.00'})
				}).then(function(res) { return res.json(); })
				  .then(function(order) { return order.id; });
			},
			onApprove: function(data) {
				return fetch('/api/capture-paypal-order', {
					method: 'POST',
					headers: {'Content-Type': 'application/json'},
					body: JSON.stringify({orderID: data.orderID})
				}).then(function() { window.location = '/success'; });
			},
			onCancel: function() { window.location = '/cancel'; }
		}).render('#paypal-button-container');
	</script>
</body>
</html>`))

// Index handles GET /.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := checkoutPage.Execute(w, struct{ ClientID string }{ClientID: h.clientID}); err != nil {
		log.Printf("[API] Rendering checkout page: %v", err)
	}
}

// Success handles GET /success.
func (h *Handlers) Success(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<h1>Payment Success!</h1><p>Thank you for your purchase. Your content access will be delivered shortly.</p>"))
}

// Cancel handles GET /cancel.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<h1>Payment Cancelled</h1><p>You have cancelled the payment. No charges were made.</p>"))
}
