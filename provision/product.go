package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"artmarket-service/model"
)

// ProductProvisioner creates a purchase record and claims a unit of stock.
// Both writes ride one transaction, so a rolled-back capture can never
// leave a decrement without its purchase row or vice versa.
type ProductProvisioner struct {
	DB *gorm.DB
}

func (p *ProductProvisioner) Provision(ctx context.Context, ord Order) (*Receipt, error) {
	var rec *Receipt

	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product model.Product
		if err := tx.First(&product, ord.ItemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return fmt.Errorf("load product %d: %w", ord.ItemID, err)
		}

		purchase := model.Purchase{
			ProductID:       ord.ItemID,
			BuyerID:         ord.BuyerID,
			SellerID:        product.SellerID,
			Amount:          ord.Amount,
			PaymentIntentID: ord.IntentID,
			ShippingName:    ord.ShippingName,
			ShippingAddress: ord.ShippingAddress,
			Status:          "completed",
			CreatedAt:       time.Now(),
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&purchase)
		if res.Error != nil {
			return fmt.Errorf("create purchase: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyExists
		}

		restore := false
		if product.Stock != model.StockUnlimited {
			// atomic decrement, never read-modify-write: two buyers racing
			// for the last unit must not both win
			dec := tx.Exec(
				`UPDATE products SET stock = stock - 1 WHERE id = ? AND stock > 0`,
				ord.ItemID,
			)
			if dec.Error != nil {
				return fmt.Errorf("decrement stock: %w", dec.Error)
			}
			if dec.RowsAffected == 0 {
				return ErrSoldOut
			}
			restore = true
		}

		rec = &Receipt{
			Kind:          model.KindProduct,
			ItemID:        ord.ItemID,
			IntentID:      ord.IntentID,
			EntitlementID: purchase.ID,
			RestoreStock:  restore,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *ProductProvisioner) Rollback(ctx context.Context, rec *Receipt) error {
	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("product_id = ? AND payment_intent_id = ?", rec.ItemID, rec.IntentID).
			Delete(&model.Purchase{})
		if res.Error != nil {
			return fmt.Errorf("delete purchase: %w", res.Error)
		}

		// only give the unit back if this receipt took one, and only if the
		// delete actually removed the row (rollback may be retried)
		if rec.RestoreStock && res.RowsAffected > 0 {
			if err := tx.Exec(
				`UPDATE products SET stock = stock + 1 WHERE id = ? AND stock >= 0`,
				rec.ItemID,
			).Error; err != nil {
				return fmt.Errorf("restore stock: %w", err)
			}
		}
		return nil
	})
}
