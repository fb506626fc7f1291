package model

import "time"

// ItemKind selects the provisioner for a purchase. Closed set; anything
// else in checkout metadata is rejected before provisioning.
type ItemKind string

const (
	KindCourse  ItemKind = "course"
	KindArtwork ItemKind = "artwork"
	KindBook    ItemKind = "book"
	KindProduct ItemKind = "product"
)

func ParseItemKind(s string) (ItemKind, bool) {
	switch ItemKind(s) {
	case KindCourse, KindArtwork, KindBook, KindProduct:
		return ItemKind(s), true
	}
	return "", false
}

// StockUnlimited marks a product with no finite inventory.
const StockUnlimited = -1

type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ArtistID  uint      `json:"artist_id"`
	Title     string    `json:"title"`
	Desc      string    `json:"desc"`
	Price     int64     `json:"price"` // cents
	CreatedAt time.Time `json:"created_at"`
}

type Artwork struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ArtistID        uint      `json:"artist_id"`
	Title           string    `json:"title"`
	Desc            string    `json:"desc"`
	Price           int64     `json:"price"`
	ImageURL        string    `json:"image_url"`
	Sold            bool      `json:"sold"`
	SoldTo          uint      `json:"sold_to,omitempty"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	ShippingName    string    `json:"shipping_name,omitempty"`
	ShippingAddress string    `json:"shipping_address,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Book struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ArtistID        uint      `json:"artist_id"`
	Title           string    `json:"title"`
	Desc            string    `json:"desc"`
	Price           int64     `json:"price"`
	CoverURL        string    `json:"cover_url"`
	Sold            bool      `json:"sold"`
	SoldTo          uint      `json:"sold_to,omitempty"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	ShippingName    string    `json:"shipping_name,omitempty"`
	ShippingAddress string    `json:"shipping_address,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SellerID  uint      `json:"seller_id"`
	Name      string    `json:"name"`
	Desc      string    `json:"desc"`
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"` // -1 = unlimited
	CreatedAt time.Time `json:"created_at"`
}
