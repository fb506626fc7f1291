package controller

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"artmarket-service/gateway"
	"artmarket-service/reconcile"
)

type WebhookController struct {
	Gateway    *gateway.Gateway
	Reconciler *reconcile.Reconciler
}

// HandleStripe receives webhook deliveries. The body must stay raw bytes
// until the signature is checked. 400 only for a bad signature; every
// outcome the reconciler has durably recorded gets a 200 so Stripe stops
// retrying; anything not yet recorded gets a 500 so it retries (safe, the
// handler is idempotent).
func (wc *WebhookController) HandleStripe(c *fiber.Ctx) error {
	payload := c.Body()
	sig := c.Get("Stripe-Signature")

	event, err := wc.Gateway.VerifyWebhook(payload, sig)
	if err != nil {
		log.Printf("webhook rejected: %v", err)
		return c.Status(400).JSON(fiber.Map{"error": "invalid signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := wc.Reconciler.HandleEvent(ctx, event); err != nil {
		log.Printf("webhook %s: %v", event.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "processing failed"})
	}

	return c.JSON(fiber.Map{"received": true})
}
