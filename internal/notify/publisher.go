package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"dispense/internal/ledger"
	"dispense/internal/models"
)

const (
	DefaultChannel = "dispense.transfers"
	publishTimeout = 2 * time.Second
)

// TransferMessage is the JSON body published for each committed transfer.
type TransferMessage struct {
	models.TransferRecord
	SourceName string `json:"source_name"`
	DestName   string `json:"dest_name"`
}

// Publisher fans committed transfers out over Redis pub/sub.
type Publisher struct {
	client  redis.Cmdable
	channel string
}

func NewPublisher(client redis.Cmdable, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func Encode(event ledger.TransferEvent) ([]byte, error) {
	return json.Marshal(TransferMessage{
		TransferRecord: event.Record,
		SourceName:     event.SourceName,
		DestName:       event.DestName,
	})
}

func (p *Publisher) Publish(ctx context.Context, event ledger.TransferEvent) error {
	payload, err := Encode(event)
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, string(payload)).Err(); err != nil {
		return fmt.Errorf("publish transfer: %w", err)
	}
	return nil
}

// TransferCommitted publishes the event. Failures are logged only; the
// transfer has already been committed.
func (p *Publisher) TransferCommitted(ctx context.Context, event ledger.TransferEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, event); err != nil {
		log.Printf("notify: transfer %s: %v", event.Record.ID, err)
	}
}
