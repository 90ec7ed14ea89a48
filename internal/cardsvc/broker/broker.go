package broker

import (
	"encoding/json"
	"fmt"

	"github.com/avvvet/healthcard-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Broker publishes card lifecycle events to NATS.
type Broker struct {
	Conn     *nats.Conn
	Instance string
}

func NewBroker(nc *nats.Conn, instance string) *Broker {
	return &Broker{Conn: nc, Instance: instance}
}

func (b *Broker) PublishCardIssued(ev comm.CardIssued) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal card-issued %s: %w", ev.CardID, err)
	}

	msg := &comm.Message{
		Type:     "card-issued",
		Data:     data,
		Instance: b.Instance,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return b.Publish(comm.TopicCardIssued, payload)
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
