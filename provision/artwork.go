package provision

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"artmarket-service/model"
)

// ArtworkProvisioner marks an original as sold. The sold flag is the
// entitlement; the guarded UPDATE (sold = false) is the create-if-absent.
type ArtworkProvisioner struct {
	DB *gorm.DB
}

func (p *ArtworkProvisioner) Provision(ctx context.Context, ord Order) (*Receipt, error) {
	res := p.DB.WithContext(ctx).Exec(
		`UPDATE artworks
		 SET sold = ?, sold_to = ?, payment_intent_id = ?, shipping_name = ?, shipping_address = ?
		 WHERE id = ? AND sold = ?`,
		true, ord.BuyerID, ord.IntentID, ord.ShippingName, ord.ShippingAddress,
		ord.ItemID, false,
	)
	if res.Error != nil {
		return nil, fmt.Errorf("mark artwork sold: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, soldMarkOutcome(ctx, p.DB, &model.Artwork{}, ord)
	}

	return &Receipt{Kind: model.KindArtwork, ItemID: ord.ItemID, IntentID: ord.IntentID}, nil
}

func (p *ArtworkProvisioner) Rollback(ctx context.Context, rec *Receipt) error {
	res := p.DB.WithContext(ctx).Exec(
		`UPDATE artworks
		 SET sold = ?, sold_to = 0, payment_intent_id = '', shipping_name = '', shipping_address = ''
		 WHERE id = ? AND payment_intent_id = ?`,
		false, rec.ItemID, rec.IntentID,
	)
	if res.Error != nil {
		return fmt.Errorf("unmark artwork: %w", res.Error)
	}
	return nil
}

// BookProvisioner is the artwork logic on the books table.
type BookProvisioner struct {
	DB *gorm.DB
}

func (p *BookProvisioner) Provision(ctx context.Context, ord Order) (*Receipt, error) {
	res := p.DB.WithContext(ctx).Exec(
		`UPDATE books
		 SET sold = ?, sold_to = ?, payment_intent_id = ?, shipping_name = ?, shipping_address = ?
		 WHERE id = ? AND sold = ?`,
		true, ord.BuyerID, ord.IntentID, ord.ShippingName, ord.ShippingAddress,
		ord.ItemID, false,
	)
	if res.Error != nil {
		return nil, fmt.Errorf("mark book sold: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, soldMarkOutcome(ctx, p.DB, &model.Book{}, ord)
	}

	return &Receipt{Kind: model.KindBook, ItemID: ord.ItemID, IntentID: ord.IntentID}, nil
}

func (p *BookProvisioner) Rollback(ctx context.Context, rec *Receipt) error {
	res := p.DB.WithContext(ctx).Exec(
		`UPDATE books
		 SET sold = ?, sold_to = 0, payment_intent_id = '', shipping_name = '', shipping_address = ''
		 WHERE id = ? AND payment_intent_id = ?`,
		false, rec.ItemID, rec.IntentID,
	)
	if res.Error != nil {
		return fmt.Errorf("unmark book: %w", res.Error)
	}
	return nil
}

// soldMarkOutcome decides why a guarded sold-update hit zero rows: the row
// is gone, this very intent already won (duplicate delivery), or someone
// else bought it first (item no longer available to this buyer).
func soldMarkOutcome(ctx context.Context, db *gorm.DB, dst interface{}, ord Order) error {
	var intentID string
	switch dst.(type) {
	case *model.Artwork:
		var a model.Artwork
		if err := db.WithContext(ctx).First(&a, ord.ItemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		intentID = a.PaymentIntentID
	case *model.Book:
		var b model.Book
		if err := db.WithContext(ctx).First(&b, ord.ItemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		intentID = b.PaymentIntentID
	}

	if intentID == ord.IntentID {
		return ErrAlreadyExists
	}
	return ErrItemNotFound
}
