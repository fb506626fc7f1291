package provision

import (
	"context"
	"errors"

	"artmarket-service/model"
)

var (
	// ErrAlreadyExists: an entitlement for this (item, intent) pair is
	// already there. The caller treats the trigger as a duplicate delivery.
	ErrAlreadyExists = errors.New("entitlement already exists")
	// ErrItemNotFound: the purchased item is gone (or was sold under a
	// different intent). Nothing was written.
	ErrItemNotFound = errors.New("item not found")
	// ErrSoldOut: finite stock hit zero before this purchase could claim a
	// unit. Nothing was written.
	ErrSoldOut = errors.New("item sold out")
)

// Order is the reconciler's view of a confirmed authorization: the intent
// metadata plus whatever shipping details the checkout session carried.
type Order struct {
	Kind            model.ItemKind
	ItemID          uint
	BuyerID         uint
	ArtistID        uint
	Title           string
	Amount          int64
	IntentID        string
	ShippingName    string
	ShippingAddress string
}

// Receipt identifies what Provision wrote, so Rollback can undo exactly that.
type Receipt struct {
	Kind          model.ItemKind
	ItemID        uint
	IntentID      string
	EntitlementID uint // enrollment or purchase row, when the kind has one
	RestoreStock  bool
}

// Provisioner creates and reverses one kind of entitlement. Provision must
// be safe to call any number of times for the same order: the first call
// creates, every later call returns ErrAlreadyExists. The create and any
// stock decrement happen in one transaction.
type Provisioner interface {
	Provision(ctx context.Context, ord Order) (*Receipt, error)
	Rollback(ctx context.Context, rec *Receipt) error
}

// Registry maps item kinds to their provisioners. Adding a purchasable
// kind is one entry here plus its implementation.
type Registry map[model.ItemKind]Provisioner
