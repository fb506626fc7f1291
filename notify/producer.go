package notify

import (
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"

	"artmarket-service/provision"
)

// PurchaseCompletedEvent is the payload on the purchase.completed topic.
// The mailer consumer turns one of these into the buyer and seller emails.
type PurchaseCompletedEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		IntentID  string `json:"payment_intent_id"`
		ItemType  string `json:"item_type"`
		ItemID    uint   `json:"item_id"`
		ItemTitle string `json:"item_title"`
		BuyerID   uint   `json:"buyer_id"`
		ArtistID  uint   `json:"artist_id"`
		Amount    int64  `json:"amount"`
		PaidAt    string `json:"paid_at"`
	} `json:"data"`
}

type Producer struct {
	sp sarama.SyncProducer
}

// NewProducer connects with retries; the broker tends to come up after us.
func NewProducer(broker string) *Producer {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	var sp sarama.SyncProducer
	var err error
	for i := 1; i <= 5; i++ {
		sp, err = sarama.NewSyncProducer([]string{broker}, config)
		if err == nil {
			log.Printf("kafka producer connected to %s", broker)
			return &Producer{sp: sp}
		}
		log.Printf("failed to connect to kafka (try %d/5): %v", i, err)
		time.Sleep(3 * time.Second)
	}

	// run without notifications rather than refusing to start: a lost email
	// is never a reason to block purchases
	log.Printf("kafka unavailable after retries, notifications disabled: %v", err)
	return &Producer{}
}

// PurchaseCompleted publishes the event. Fire and forget: every failure is
// logged and swallowed so the reconciliation outcome is never affected.
func (p *Producer) PurchaseCompleted(ord provision.Order, captured int64) {
	if p == nil || p.sp == nil {
		log.Println("kafka producer is nil, purchase.completed not sent")
		return
	}

	var event PurchaseCompletedEvent
	event.EventType = "purchase.completed"
	event.Data.IntentID = ord.IntentID
	event.Data.ItemType = string(ord.Kind)
	event.Data.ItemID = ord.ItemID
	event.Data.ItemTitle = ord.Title
	event.Data.BuyerID = ord.BuyerID
	event.Data.ArtistID = ord.ArtistID
	event.Data.Amount = captured
	event.Data.PaidAt = time.Now().Format(time.RFC3339)

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal purchase.completed: %v", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: "purchase.completed",
		Key:   sarama.StringEncoder(ord.IntentID),
		Value: sarama.ByteEncoder(payload),
	}

	if _, _, err := p.sp.SendMessage(msg); err != nil {
		log.Printf("failed to send purchase.completed for %s: %v", ord.IntentID, err)
		return
	}
	log.Printf("purchase.completed sent for %s", ord.IntentID)
}
