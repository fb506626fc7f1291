package model

import "time"

// Entitlement rows are the durable proof of purchase. Each carries the
// payment intent id and is unique per (item, intent) so a webhook retry
// can never create a second one.

type Enrollment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CourseID        uint      `gorm:"uniqueIndex:ux_enrollments_course_intent" json:"course_id"`
	UserID          uint      `json:"user_id"`
	PaymentIntentID string    `gorm:"uniqueIndex:ux_enrollments_course_intent" json:"payment_intent_id"`
	Status          string    `json:"status"`   // active
	Progress        int       `json:"progress"` // percent, owned by the course player
	CreatedAt       time.Time `json:"created_at"`
}

type Purchase struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ProductID       uint      `gorm:"uniqueIndex:ux_purchases_product_intent" json:"product_id"`
	BuyerID         uint      `json:"buyer_id"`
	SellerID        uint      `json:"seller_id"`
	Amount          int64     `json:"amount"`
	PaymentIntentID string    `gorm:"uniqueIndex:ux_purchases_product_intent" json:"payment_intent_id"`
	ShippingName    string    `json:"shipping_name"`
	ShippingAddress string    `json:"shipping_address"`
	Status          string    `json:"status"` // completed
	CreatedAt       time.Time `json:"created_at"`
}

type Donation struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PaymentIntentID string    `gorm:"uniqueIndex" json:"payment_intent_id"`
	DonorID         uint      `json:"donor_id"`
	Amount          int64     `json:"amount"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReconcileAlert is written whenever a purchase ends in a state that needs
// an operator: capture failed after provisioning, item vanished, or the
// authorization was not capturable anymore.
type ReconcileAlert struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	PaymentIntentID string    `gorm:"index" json:"payment_intent_id"`
	ItemType        string    `json:"item_type"`
	ItemID          uint      `json:"item_id"`
	Reason          string    `json:"reason"`
	Resolved        bool      `json:"resolved"`
	CreatedAt       time.Time `json:"created_at"`
}
