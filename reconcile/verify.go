package reconcile

import (
	"context"
	"log"
	"time"

	"github.com/stripe/stripe-go/v74"

	"artmarket-service/model"
)

// Poll defaults: the browser lands back from checkout before the webhook
// usually arrives, so a handful of short waits covers the common gap.
const (
	DefaultPollAttempts = 5
	DefaultPollInterval = 2 * time.Second
)

// Verify reports whether the webhook path has provisioned the entitlement
// yet. Read-only: it never provisions and never captures, no matter how
// often the client asks. false means "still processing", not failure;
// the webhook may land moments later.
func (r *Reconciler) Verify(ctx context.Context, kind model.ItemKind, itemID uint, intentID string, userID uint, attempts int, interval time.Duration) (bool, error) {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for i := 0; i < attempts; i++ {
		found, err := r.Store.EntitlementExists(ctx, kind, itemID, intentID, userID)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			default:
			}
			r.sleep(interval)
		}
	}

	log.Printf("verify: intent %s for %s %d still pending after %d attempts", intentID, kind, itemID, attempts)
	return false, nil
}

// CheckStatus backs the client-facing "capture" call. After the redesign
// the webhook path is the only capturer; this just reports where the
// purchase stands so the success page can render honestly.
func (r *Reconciler) CheckStatus(ctx context.Context, kind model.ItemKind, itemID uint, intentID string, userID uint) (string, error) {
	found, err := r.Store.EntitlementExists(ctx, kind, itemID, intentID, userID)
	if err != nil {
		return "", err
	}
	if !found {
		return "processing", nil
	}

	pi, err := r.Gateway.RetrieveIntent(intentID)
	if err != nil {
		return "", err
	}
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		return "complete", nil
	}
	return "processing", nil
}
