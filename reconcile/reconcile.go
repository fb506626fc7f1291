package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"

	"artmarket-service/model"
	"artmarket-service/provision"
)

// Gateway is the slice of the payments adapter the reconciler uses.
type Gateway interface {
	RetrieveIntent(id string) (*stripe.PaymentIntent, error)
	Capture(id string) (int64, error)
}

// Notifier fans the good news out to buyer and seller. Best effort: the
// implementation must swallow its own failures.
type Notifier interface {
	PurchaseCompleted(ord provision.Order, captured int64)
}

// Reconciler turns a confirmed authorization into a captured payment plus
// exactly one entitlement. Webhook deliveries for the same intent may race
// or repeat; the provisioners' conditional create is the only lock.
type Reconciler struct {
	Store        Store
	Gateway      Gateway
	Provisioners provision.Registry
	Notifier     Notifier

	sleep func(time.Duration)
}

func New(store Store, gw Gateway, reg provision.Registry, notifier Notifier) *Reconciler {
	return &Reconciler{
		Store:        store,
		Gateway:      gw,
		Provisioners: reg,
		Notifier:     notifier,
		sleep:        time.Sleep,
	}
}

// HandleEvent is the webhook entry point. The signature is already
// verified by the caller; everything here runs against re-retrieved
// gateway state, never the event payload's embedded object.
//
// A non-nil return means nothing durable was decided and the delivery
// should be retried. Every business outcome, including failures that got
// an alert row, returns nil so the gateway stops redelivering.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		log.Printf("webhook %s: no data object", event.ID)
		return nil
	}

	var intentID, shipName, shipAddr string

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("webhook %s: bad session payload: %v", event.ID, err)
			return nil
		}
		if sess.PaymentIntent == nil {
			log.Printf("webhook %s: session without payment intent", event.ID)
			return nil
		}
		intentID = sess.PaymentIntent.ID
		if sess.CustomerDetails != nil {
			shipName = sess.CustomerDetails.Name
			shipAddr = formatAddress(sess.CustomerDetails.Address)
		}

	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Printf("webhook %s: bad intent payload: %v", event.ID, err)
			return nil
		}
		intentID = pi.ID

	default:
		// not ours; ack and move on
		return nil
	}

	if intentID == "" {
		log.Printf("webhook %s: no intent id", event.ID)
		return nil
	}

	return r.reconcile(ctx, intentID, shipName, shipAddr)
}

func (r *Reconciler) reconcile(ctx context.Context, intentID, shipName, shipAddr string) error {
	// re-verify against the gateway before trusting anything
	pi, err := r.Gateway.RetrieveIntent(intentID)
	if err != nil {
		return fmt.Errorf("retrieve %s: %w", intentID, err)
	}

	if pi.Status != stripe.PaymentIntentStatusRequiresCapture &&
		pi.Status != stripe.PaymentIntentStatusSucceeded {
		// canceled or expired holds end up here; usually benign, but an
		// operator decides that, not us
		log.Printf("intent %s not capturable (status=%s), skipping", intentID, pi.Status)
		if aerr := r.Store.RecordAlert(ctx, intentID, pi.Metadata["item_type"], 0,
			"authorization not capturable: status "+string(pi.Status)); aerr != nil {
			return aerr
		}
		return nil
	}

	if pi.Metadata["donation"] == "true" {
		return r.recordDonation(ctx, pi)
	}

	ord, err := orderFromIntent(pi, shipName, shipAddr)
	if err != nil {
		log.Printf("intent %s: %v", intentID, err)
		if aerr := r.Store.RecordAlert(ctx, intentID, "", 0, "invalid metadata: "+err.Error()); aerr != nil {
			return aerr
		}
		return nil
	}

	prov, ok := r.Provisioners[ord.Kind]
	if !ok {
		log.Printf("intent %s: no provisioner for kind %q", intentID, ord.Kind)
		if aerr := r.Store.RecordAlert(ctx, intentID, string(ord.Kind), ord.ItemID, "unknown item kind"); aerr != nil {
			return aerr
		}
		return nil
	}

	receipt, err := prov.Provision(ctx, ord)
	switch {
	case errors.Is(err, provision.ErrAlreadyExists):
		// duplicate delivery; the winner already captured (or is about to).
		// informational, not an error
		log.Printf("intent %s: duplicate delivery for %s %d, no-op", intentID, ord.Kind, ord.ItemID)
		return nil

	case errors.Is(err, provision.ErrItemNotFound), errors.Is(err, provision.ErrSoldOut):
		// buyer holds an authorization for something we can't grant; the
		// hold expires on its own, but an operator should look
		log.Printf("intent %s: provisioning aborted: %v", intentID, err)
		if aerr := r.Store.RecordAlert(ctx, intentID, string(ord.Kind), ord.ItemID, err.Error()); aerr != nil {
			return aerr
		}
		return nil

	case err != nil:
		return fmt.Errorf("provision %s %d: %w", ord.Kind, ord.ItemID, err)
	}

	// fresh entitlement: we are the single winner, capture now
	captured, err := r.Gateway.Capture(intentID)
	if err != nil {
		log.Printf("intent %s: capture failed, rolling back entitlement: %v", intentID, err)
		if rbErr := prov.Rollback(ctx, receipt); rbErr != nil {
			log.Printf("intent %s: rollback failed: %v", intentID, rbErr)
			if aerr := r.Store.RecordAlert(ctx, intentID, string(ord.Kind), ord.ItemID,
				"capture failed AND rollback failed: "+rbErr.Error()); aerr != nil {
				return aerr
			}
			return nil
		}
		if aerr := r.Store.RecordAlert(ctx, intentID, string(ord.Kind), ord.ItemID,
			"capture failed, entitlement rolled back: "+err.Error()); aerr != nil {
			return aerr
		}
		return nil
	}

	log.Printf("intent %s: captured %d for %s %d (buyer %d)",
		intentID, captured, ord.Kind, ord.ItemID, ord.BuyerID)

	if r.Notifier != nil {
		r.Notifier.PurchaseCompleted(ord, captured)
	}
	return nil
}

func (r *Reconciler) recordDonation(ctx context.Context, pi *stripe.PaymentIntent) error {
	donorID, _ := strconv.ParseUint(pi.Metadata["buyer_id"], 10, 32)
	if err := r.Store.RecordDonation(ctx, pi.ID, uint(donorID), pi.Amount); err != nil {
		return err
	}
	log.Printf("intent %s: donation of %d recorded", pi.ID, pi.Amount)
	return nil
}

func orderFromIntent(pi *stripe.PaymentIntent, shipName, shipAddr string) (provision.Order, error) {
	kind, ok := model.ParseItemKind(pi.Metadata["item_type"])
	if !ok {
		return provision.Order{}, fmt.Errorf("bad item_type %q", pi.Metadata["item_type"])
	}

	itemID, err := strconv.ParseUint(pi.Metadata["item_id"], 10, 32)
	if err != nil || itemID == 0 {
		return provision.Order{}, fmt.Errorf("bad item_id %q", pi.Metadata["item_id"])
	}
	buyerID, err := strconv.ParseUint(pi.Metadata["buyer_id"], 10, 32)
	if err != nil || buyerID == 0 {
		return provision.Order{}, fmt.Errorf("bad buyer_id %q", pi.Metadata["buyer_id"])
	}
	artistID, _ := strconv.ParseUint(pi.Metadata["artist_id"], 10, 32)

	return provision.Order{
		Kind:            kind,
		ItemID:          uint(itemID),
		BuyerID:         uint(buyerID),
		ArtistID:        uint(artistID),
		Title:           pi.Metadata["item_title"],
		Amount:          pi.Amount,
		IntentID:        pi.ID,
		ShippingName:    shipName,
		ShippingAddress: shipAddr,
	}, nil
}

func formatAddress(addr *stripe.Address) string {
	if addr == nil {
		return ""
	}
	parts := []string{addr.Line1, addr.Line2, addr.City, addr.State, addr.PostalCode, addr.Country}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
