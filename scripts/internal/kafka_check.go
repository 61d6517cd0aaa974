package internal

import (
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/kafka"
	"github.com/shahin-grc/serialcode/internal/pubsub/router"
)

// CheckKafkaConnection connects with the service's sarama settings and
// reports whether the event topic exists
func CheckKafkaConnection(_ Options) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}

	saramaConfig := kafka.GetSaramaConfig(cfg)
	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second

	client, err := sarama.NewClient(cfg.Kafka.Brokers, saramaConfig)
	if err != nil {
		return fmt.Errorf("error creating client: %v", err)
	}
	defer client.Close()

	topics, err := client.Topics()
	if err != nil {
		return fmt.Errorf("error listing topics: %v", err)
	}

	for _, topic := range []string{cfg.Event.Topic, router.DeadLetterTopic(cfg.Event.Topic)} {
		fmt.Printf("%s present: %t\n", topic, lo.Contains(topics, topic))
	}
	fmt.Printf("Connected to %v, %d topics visible\n", cfg.Kafka.Brokers, len(topics))
	return nil
}
