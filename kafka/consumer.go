package kafka

import (
	"log"
	"time"

	"github.com/IBM/sarama"
)

// StartConsumer reads one topic from partition 0 and feeds every message to
// the handler. Connects with retries, runs until the process exits.
func StartConsumer(broker, topic string, handler func([]byte)) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	var client sarama.Consumer
	var err error
	for i := 1; i <= 5; i++ {
		client, err = sarama.NewConsumer([]string{broker}, config)
		if err == nil {
			log.Printf("connected to kafka broker: %s", broker)
			break
		}
		log.Printf("failed to connect to kafka (try %d/5): %v", i, err)
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Printf("kafka unavailable, consumer for %s not started: %v", topic, err)
		return
	}
	defer client.Close()

	partitionConsumer, err := client.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		log.Printf("failed to start partition consumer for %s: %v", topic, err)
		return
	}
	defer partitionConsumer.Close()

	log.Printf("listening for %s events...", topic)

	for {
		select {
		case msg := <-partitionConsumer.Messages():
			handler(msg.Value)
		case err := <-partitionConsumer.Errors():
			log.Printf("kafka consumer error: %v", err)
		}
	}
}
