package controller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"artmarket-service/cache"
	"artmarket-service/gateway"
	"artmarket-service/model"
	"artmarket-service/reconcile"
)

type CheckoutController struct {
	DB         *gorm.DB
	Gateway    *gateway.Gateway
	Reconciler *reconcile.Reconciler
}

// Create opens a hosted checkout session for one item. The session holds a
// manual-capture authorization; nothing is granted or captured here.
func (cc *CheckoutController) Create(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	kind, ok := model.ParseItemKind(c.Params("kind"))
	if !ok {
		return c.Status(400).JSON(fiber.Map{"error": "unknown item kind"})
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	in := gateway.CheckoutInput{
		ItemID:   uint(id),
		ItemType: string(kind),
		BuyerID:  userID,
	}

	switch kind {
	case model.KindCourse:
		var course model.Course
		if err := cc.DB.First(&course, id).Error; err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "course not found"})
		}
		in.Amount, in.Title, in.ArtistID = course.Price, course.Title, course.ArtistID

	case model.KindArtwork:
		var art model.Artwork
		if err := cc.DB.First(&art, id).Error; err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "artwork not found"})
		}
		if art.Sold {
			return c.Status(409).JSON(fiber.Map{"error": "artwork already sold"})
		}
		in.Amount, in.Title, in.ArtistID = art.Price, art.Title, art.ArtistID
		in.NeedsShipping = true

	case model.KindBook:
		var book model.Book
		if err := cc.DB.First(&book, id).Error; err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "book not found"})
		}
		if book.Sold {
			return c.Status(409).JSON(fiber.Map{"error": "book already sold"})
		}
		in.Amount, in.Title, in.ArtistID = book.Price, book.Title, book.ArtistID
		in.NeedsShipping = true

	case model.KindProduct:
		var product model.Product
		if err := cc.DB.First(&product, id).Error; err != nil {
			return c.Status(404).JSON(fiber.Map{"error": "product not found"})
		}
		if product.Stock == 0 {
			return c.Status(409).JSON(fiber.Map{"error": "out of stock"})
		}
		in.Amount, in.Title, in.ArtistID = product.Price, product.Name, product.SellerID
		in.NeedsShipping = true
	}

	sess, err := cc.Gateway.CreateCheckout(in)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "checkout failed"})
	}

	return c.Status(201).JSON(fiber.Map{
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}

// Verify is the bounded poll the success page calls after the redirect.
// Observational only. false means "still processing", never "failed".
func (cc *CheckoutController) Verify(c *fiber.Ctx) error {
	var body struct {
		ItemID          uint   `json:"item_id"`
		ItemType        string `json:"item_type"`
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	kind, ok := model.ParseItemKind(body.ItemType)
	if !ok || body.PaymentIntentID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	userID := c.Locals("user_id").(uint)

	// fast path: a previous poll by this buyer already saw the entitlement
	cacheKey := fmt.Sprintf("entitlement:%s:%d", body.PaymentIntentID, userID)
	if cache.Redis != nil {
		if v, err := cache.Redis.Get(cache.Ctx, cacheKey).Result(); err == nil && v == "1" {
			return c.JSON(fiber.Map{"verified": true})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	verified, err := cc.Reconciler.Verify(ctx, kind, body.ItemID, body.PaymentIntentID, userID,
		reconcile.DefaultPollAttempts, reconcile.DefaultPollInterval)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "verification failed"})
	}

	if verified && cache.Redis != nil {
		cache.Redis.Set(cache.Ctx, cacheKey, "1", time.Hour)
	}

	return c.JSON(fiber.Map{"verified": verified})
}

// Capture exists for the success page's final call. It no longer captures
// anything (the webhook path owns capture); it reports the current state.
func (cc *CheckoutController) Capture(c *fiber.Ctx) error {
	var body struct {
		ItemID          uint   `json:"item_id"`
		ItemType        string `json:"item_type"`
		PaymentIntentID string `json:"payment_intent_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	kind, ok := model.ParseItemKind(body.ItemType)
	if !ok || body.PaymentIntentID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payload"})
	}

	userID := c.Locals("user_id").(uint)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := cc.Reconciler.CheckStatus(ctx, kind, body.ItemID, body.PaymentIntentID, userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "status check failed"})
	}

	return c.JSON(fiber.Map{"status": state})
}

// Donate opens an immediate-capture donation checkout.
func (cc *CheckoutController) Donate(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(uint)

	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil || body.Amount <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "invalid amount"})
	}

	sess, err := cc.Gateway.CreateDonationCheckout(body.Amount, userID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "checkout failed"})
	}

	return c.Status(201).JSON(fiber.Map{
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}
