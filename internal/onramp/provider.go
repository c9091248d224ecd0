package onramp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
)

// ErrBadSignature indicates a webhook that failed signature verification.
var ErrBadSignature = errors.New("invalid webhook signature")

// Provider represents a connector to an external on-ramp (fiat to asset)
// service. The core only needs signature verification and widget URLs; the
// actual purchase happens on the provider's side and lands here as a webhook.
type Provider interface {
	VerifyWebhook(payload []byte, signature string) error
	WidgetURL(userID, asset string) (string, error)
}

// HMACProvider verifies webhooks with an HMAC-SHA256 shared secret, the
// scheme used by the hosted-widget on-ramp integrations.
type HMACProvider struct {
	secret  []byte
	baseURL string
}

// NewHMACProvider builds a provider connector from the shared webhook secret.
func NewHMACProvider(secret, baseURL string) *HMACProvider {
	return &HMACProvider{secret: []byte(secret), baseURL: baseURL}
}

// VerifyWebhook checks the hex-encoded HMAC-SHA256 signature of the payload.
func (p *HMACProvider) VerifyWebhook(payload []byte, signature string) error {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// WidgetURL returns the hosted purchase widget URL for a user.
func (p *HMACProvider) WidgetURL(userID, asset string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("partner_user_id", userID)
	q.Set("asset", asset)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Sign computes the webhook signature for a payload. Test helper; real
// signatures come from the provider.
func (p *HMACProvider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
