// Package archive pushes every persisted message onto a Kafka firehose topic
// for downstream consumers (indexing, compliance, offline sync). Archiving is
// best-effort: failures are logged and never surfaced to clients.
package archive

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"github.com/Hyung-98/ChatbotSocket-sub000/logger"
	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
)

type Producer struct {
	prod  sarama.AsyncProducer
	topic string
}

func buildConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // key = roomID keeps per-room order
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	prod, err := sarama.NewAsyncProducer(brokers, buildConfig())
	if err != nil {
		return nil, err
	}
	p := &Producer{prod: prod, topic: topic}

	go func() {
		for err := range prod.Errors() {
			logger.Warnf("[archive] produce error: %v", err)
		}
	}()
	return p, nil
}

// Archive enqueues the message; drops (with a log) when the producer is gone.
func (p *Producer) Archive(m *storage.Message) {
	if p == nil || p.prod == nil {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		logger.Warnf("[archive] marshal message id=%s: %v", m.ID, err)
		return
	}
	p.prod.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(m.RoomID),
		Value: sarama.ByteEncoder(b),
	}
}

func (p *Producer) Close() error {
	if p == nil || p.prod == nil {
		return nil
	}
	return p.prod.Close()
}
