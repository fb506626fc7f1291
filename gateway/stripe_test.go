package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
)

// signPayload builds a Stripe-Signature header the way Stripe does:
// v1 = HMAC-SHA256(secret, "<timestamp>.<payload>").
func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload() []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_1","object":"event","api_version":%q,"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`,
		stripe.APIVersion,
	))
}

func testGateway() *Gateway {
	return New(Config{
		SecretKey:            "sk_test_x",
		WebhookSecret:        "whsec_platform",
		ConnectWebhookSecret: "whsec_connect",
	})
}

func TestVerifyWebhookPlatformSecret(t *testing.T) {
	g := testGateway()
	payload := eventPayload()
	sig := signPayload(payload, "whsec_platform", time.Now())

	event, err := g.VerifyWebhook(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", string(event.Type))
	assert.Equal(t, "evt_1", event.ID)
}

func TestVerifyWebhookFallsBackToConnectSecret(t *testing.T) {
	g := testGateway()
	payload := eventPayload()
	sig := signPayload(payload, "whsec_connect", time.Now())

	// first secret fails, second verifies
	event, err := g.VerifyWebhook(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
}

func TestVerifyWebhookRejectsUnknownSecret(t *testing.T) {
	g := testGateway()
	payload := eventPayload()
	sig := signPayload(payload, "whsec_evil", time.Now())

	_, err := g.VerifyWebhook(payload, sig)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyWebhookRejectsTamperedBody(t *testing.T) {
	g := testGateway()
	payload := eventPayload()
	sig := signPayload(payload, "whsec_platform", time.Now())

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'x'

	_, err := g.VerifyWebhook(tampered, sig)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyWebhookRejectsStaleTimestamp(t *testing.T) {
	g := testGateway()
	payload := eventPayload()
	// beyond the default tolerance window; treated as a possible replay
	sig := signPayload(payload, "whsec_platform", time.Now().Add(-time.Hour))

	_, err := g.VerifyWebhook(payload, sig)
	assert.ErrorIs(t, err, ErrBadSignature)
}
