package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyWebhookSignature checks the x-razorpay-signature header against an
// HMAC-SHA256 of the literal raw request body, keyed with the webhook
// secret. The body must not be re-serialized before hashing.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(computeHMAC(body, secret)), []byte(signature))
}

// VerifyRedirectSignature checks a client-redirect signature against an
// HMAC-SHA256 of "{orderId}|{paymentId}", keyed with the API key secret.
// The two call sites use different canonical strings and different secrets;
// that split is Razorpay's protocol, not a choice of this system.
func VerifyRedirectSignature(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}
	payload := orderID + "|" + paymentID
	return hmac.Equal([]byte(computeHMAC([]byte(payload), secret)), []byte(signature))
}

// SignRedirect produces the redirect signature for the given ids. Used by
// tests and local tooling; production signatures come from Razorpay.
func SignRedirect(orderID, paymentID, secret string) string {
	return computeHMAC([]byte(orderID+"|"+paymentID), secret)
}

// SignWebhookBody produces the webhook signature for a raw body.
func SignWebhookBody(body []byte, secret string) string {
	return computeHMAC(body, secret)
}

func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
