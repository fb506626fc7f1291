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

// CourseProvisioner creates enrollments. No inventory to touch.
type CourseProvisioner struct {
	DB *gorm.DB
}

func (p *CourseProvisioner) Provision(ctx context.Context, ord Order) (*Receipt, error) {
	var course model.Course
	if err := p.DB.WithContext(ctx).First(&course, ord.ItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("load course %d: %w", ord.ItemID, err)
	}

	enr := model.Enrollment{
		CourseID:        ord.ItemID,
		UserID:          ord.BuyerID,
		PaymentIntentID: ord.IntentID,
		Status:          "active",
		Progress:        0,
		CreatedAt:       time.Now(),
	}

	// create-if-absent on (course_id, payment_intent_id); the unique index
	// is the serialization point between concurrent deliveries
	res := p.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&enr)
	if res.Error != nil {
		return nil, fmt.Errorf("create enrollment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyExists
	}

	return &Receipt{
		Kind:          model.KindCourse,
		ItemID:        ord.ItemID,
		IntentID:      ord.IntentID,
		EntitlementID: enr.ID,
	}, nil
}

func (p *CourseProvisioner) Rollback(ctx context.Context, rec *Receipt) error {
	res := p.DB.WithContext(ctx).
		Where("course_id = ? AND payment_intent_id = ?", rec.ItemID, rec.IntentID).
		Delete(&model.Enrollment{})
	if res.Error != nil {
		return fmt.Errorf("delete enrollment: %w", res.Error)
	}
	return nil
}
