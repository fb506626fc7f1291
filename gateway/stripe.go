package gateway

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/webhook"
)

var (
	// ErrBadSignature means the payload verified against neither webhook secret.
	ErrBadSignature = errors.New("webhook signature verification failed")
	// ErrNotCapturable means the authorization is past capturing: already
	// captured, canceled or expired. Retrying will not help.
	ErrNotCapturable = errors.New("authorization not capturable")
)

// Config carries every Stripe credential the service needs. Stripe signs
// platform-level and connected-account webhooks with different secrets and
// a delivery does not say which, so both are kept and tried in order.
type Config struct {
	SecretKey            string
	WebhookSecret        string
	ConnectWebhookSecret string
	SuccessURL           string
	CancelURL            string
}

type Gateway struct {
	cfg Config
}

func New(cfg Config) *Gateway {
	stripe.Key = cfg.SecretKey
	return &Gateway{cfg: cfg}
}

// CheckoutInput is what the checkout controller knows about the item being
// bought. Metadata travels on the PaymentIntent and is the join key the
// reconciler reads back out of webhook deliveries.
type CheckoutInput struct {
	Amount        int64
	Currency      string
	Title         string
	ItemID        uint
	ItemType      string
	BuyerID       uint
	ArtistID      uint
	NeedsShipping bool
}

// CreateCheckout opens a hosted checkout session holding a manual-capture
// authorization. Funds move only when the reconciler captures.
func (g *Gateway) CreateCheckout(in CheckoutInput) (*stripe.CheckoutSession, error) {
	currency := in.Currency
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(in.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.Title),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String("manual"),
			Metadata: map[string]string{
				"item_id":    strconv.FormatUint(uint64(in.ItemID), 10),
				"item_type":  in.ItemType,
				"buyer_id":   strconv.FormatUint(uint64(in.BuyerID), 10),
				"artist_id":  strconv.FormatUint(uint64(in.ArtistID), 10),
				"item_title": in.Title,
			},
		},
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
	}

	if in.NeedsShipping {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{"US", "CA", "GB", "AU", "DE", "FR", "NL", "ID"}),
		}
	}

	return session.New(params)
}

// CreateDonationCheckout uses immediate capture; donations skip the whole
// provision/capture machinery.
func (g *Gateway) CreateDonationCheckout(amount int64, donorID uint) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("usd"),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Donation"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"donation": "true",
				"buyer_id": strconv.FormatUint(uint64(donorID), 10),
			},
		},
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
	}
	return session.New(params)
}

// RetrieveIntent re-reads the authorization from Stripe. The reconciler
// never trusts status or amounts embedded in an event payload.
func (g *Gateway) RetrieveIntent(id string) (*stripe.PaymentIntent, error) {
	pi, err := paymentintent.Get(id, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve intent %s: %w", id, err)
	}
	return pi, nil
}

// Capture finalizes the hold. Returns the captured amount in cents.
func (g *Gateway) Capture(id string) (int64, error) {
	pi, err := paymentintent.Capture(id, &stripe.PaymentIntentCaptureParams{})
	if err != nil {
		var sErr *stripe.Error
		if errors.As(err, &sErr) && sErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			return 0, fmt.Errorf("capture %s: %w", id, ErrNotCapturable)
		}
		return 0, fmt.Errorf("capture %s: %w", id, err)
	}
	return pi.AmountReceived, nil
}

// VerifyWebhook checks the payload against the platform secret first, then
// the connect secret. The raw body must be byte-exact.
func (g *Gateway) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	for _, secret := range []string{g.cfg.WebhookSecret, g.cfg.ConnectWebhookSecret} {
		if secret == "" {
			continue
		}
		event, err := webhook.ConstructEvent(payload, sigHeader, secret)
		if err == nil {
			return event, nil
		}
	}
	return stripe.Event{}, ErrBadSignature
}
