package reconcile

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"artmarket-service/model"
)

// Store is the small read/record surface the reconciler needs outside the
// provisioners: entitlement lookups for the poll path, donation rows, and
// operator alerts.
type Store interface {
	EntitlementExists(ctx context.Context, kind model.ItemKind, itemID uint, intentID string, userID uint) (bool, error)
	RecordDonation(ctx context.Context, intentID string, donorID uint, amount int64) error
	RecordAlert(ctx context.Context, intentID string, itemType string, itemID uint, reason string) error
}

type GormStore struct {
	DB *gorm.DB
}

// EntitlementExists checks for the (item, intent) entitlement. A non-zero
// userID restricts the match to that buyer, so the client poll can only
// observe its own purchases; zero means any owner.
func (s *GormStore) EntitlementExists(ctx context.Context, kind model.ItemKind, itemID uint, intentID string, userID uint) (bool, error) {
	db := s.DB.WithContext(ctx)
	var count int64
	var err error

	switch kind {
	case model.KindCourse:
		q := db.Model(&model.Enrollment{}).
			Where("course_id = ? AND payment_intent_id = ?", itemID, intentID)
		if userID != 0 {
			q = q.Where("user_id = ?", userID)
		}
		err = q.Count(&count).Error
	case model.KindProduct:
		q := db.Model(&model.Purchase{}).
			Where("product_id = ? AND payment_intent_id = ?", itemID, intentID)
		if userID != 0 {
			q = q.Where("buyer_id = ?", userID)
		}
		err = q.Count(&count).Error
	case model.KindArtwork:
		q := db.Model(&model.Artwork{}).
			Where("id = ? AND payment_intent_id = ? AND sold = ?", itemID, intentID, true)
		if userID != 0 {
			q = q.Where("sold_to = ?", userID)
		}
		err = q.Count(&count).Error
	case model.KindBook:
		q := db.Model(&model.Book{}).
			Where("id = ? AND payment_intent_id = ? AND sold = ?", itemID, intentID, true)
		if userID != 0 {
			q = q.Where("sold_to = ?", userID)
		}
		err = q.Count(&count).Error
	default:
		return false, fmt.Errorf("unknown item kind %q", kind)
	}

	if err != nil {
		return false, fmt.Errorf("entitlement lookup: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) RecordDonation(ctx context.Context, intentID string, donorID uint, amount int64) error {
	don := model.Donation{
		PaymentIntentID: intentID,
		DonorID:         donorID,
		Amount:          amount,
		CreatedAt:       time.Now(),
	}
	// unique on intent id, so redelivered donation events are no-ops
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&don)
	if res.Error != nil {
		return fmt.Errorf("record donation: %w", res.Error)
	}
	return nil
}

func (s *GormStore) RecordAlert(ctx context.Context, intentID string, itemType string, itemID uint, reason string) error {
	alert := model.ReconcileAlert{
		PaymentIntentID: intentID,
		ItemType:        itemType,
		ItemID:          itemID,
		Reason:          reason,
		CreatedAt:       time.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(&alert).Error; err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}
