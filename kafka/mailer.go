package kafka

import (
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/gorm"

	"artmarket-service/model"
	"artmarket-service/notify"
)

// Mailer is the outbound email sink. The default just logs; deployments
// point this at their SMTP relay.
type Mailer interface {
	Send(to, subject, body string) error
}

type LogMailer struct{}

func (LogMailer) Send(to, subject, body string) error {
	log.Printf("email to %s: %s", to, subject)
	return nil
}

// HandlePurchaseCompleted mails buyer and seller after a captured purchase.
// Every failure is logged and dropped; by the time this runs the money has
// moved and nothing here may undo that.
func HandlePurchaseCompleted(db *gorm.DB, mailer Mailer) func([]byte) {
	return func(data []byte) {
		var event notify.PurchaseCompletedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("invalid purchase.completed payload: %v", err)
			return
		}

		var buyer, seller model.User
		if err := db.First(&buyer, event.Data.BuyerID).Error; err != nil {
			log.Printf("buyer %d not found for %s: %v", event.Data.BuyerID, event.Data.IntentID, err)
			return
		}
		// seller email is best effort too; a purchase without a known
		// artist (e.g. platform-listed item) only mails the buyer
		haveSeller := db.First(&seller, event.Data.ArtistID).Error == nil

		amount := float64(event.Data.Amount) / 100

		buyerBody := fmt.Sprintf(
			"Thanks for your purchase of %q ($%.2f). Reference: %s",
			event.Data.ItemTitle, amount, event.Data.IntentID,
		)
		if err := mailer.Send(buyer.Email, "Your purchase is confirmed", buyerBody); err != nil {
			log.Printf("buyer email failed for %s: %v", event.Data.IntentID, err)
		}

		if haveSeller {
			sellerBody := fmt.Sprintf(
				"You sold %q for $%.2f. Reference: %s",
				event.Data.ItemTitle, amount, event.Data.IntentID,
			)
			if err := mailer.Send(seller.Email, "You made a sale", sellerBody); err != nil {
				log.Printf("seller email failed for %s: %v", event.Data.IntentID, err)
			}
		}
	}
}
