package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/kindfund/campaignsync/internal/platform/errors"
	"github.com/kindfund/campaignsync/internal/platform/timeouts"
	"github.com/kindfund/campaignsync/internal/services/campaignsync/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultAMQPExchange = "campaign.events"

// BridgeConfig binds a durable queue to a topic exchange whose messages are
// fanned into campaign rooms.
type BridgeConfig struct {
	URL        string
	Exchange   string
	Queue      string
	Bindings   []string
	RetryDelay time.Duration
}

type amqpBridge struct {
	config BridgeConfig
	hub    *roomHub
}

func newAMQPBridge(config BridgeConfig, hub *roomHub) (*amqpBridge, error) {
	cleanURL, err := sanitizeAMQPURL(config.URL)
	if err != nil {
		return nil, err
	}
	config.URL = cleanURL
	config.Exchange = strings.TrimSpace(config.Exchange)
	if config.Exchange == "" {
		config.Exchange = defaultAMQPExchange
	}
	config.Queue = strings.TrimSpace(config.Queue)
	if config.Queue == "" {
		return nil, errors.New("amqp queue is required")
	}
	bindings := make([]string, 0, len(config.Bindings))
	for _, binding := range config.Bindings {
		if binding = strings.TrimSpace(binding); binding != "" {
			bindings = append(bindings, binding)
		}
	}
	if len(bindings) == 0 {
		return nil, errors.New("at least one amqp binding is required")
	}
	config.Bindings = bindings
	if config.RetryDelay <= 0 {
		config.RetryDelay = timeouts.RealtimeRetry
	}
	return &amqpBridge{config: config, hub: hub}, nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	if parsed.Path == "" {
		clean += "/"
	}
	return clean, nil
}

// run keeps a consumer session open until ctx ends.
func (b *amqpBridge) run(ctx context.Context) {
	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("relay: amqp session ended: %v", err)
		if !waitRetry(ctx, b.config.RetryDelay) {
			return
		}
	}
}

func (b *amqpBridge) session(ctx context.Context) error {
	conn, err := amqp.DialConfig(b.config.URL, amqp.Config{
		Dial: amqp.DefaultDial(timeouts.RealtimeDial),
	})
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	defer func() {
		_ = ch.Close()
	}()

	if err := ch.ExchangeDeclare(b.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", b.config.Exchange, err)
	}
	q, err := ch.QueueDeclare(b.config.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", b.config.Queue, err)
	}
	for _, routingKey := range b.config.Bindings {
		if err := ch.QueueBind(q.Name, routingKey, b.config.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", routingKey, q.Name, err)
		}
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	log.Printf("relay: consuming %s from exchange %s (%s)", q.Name, b.config.Exchange, strings.Join(b.config.Bindings, ", "))
	return b.consume(ctx, deliveries, closed)
}

func (b *amqpBridge) consume(ctx context.Context, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return errors.New("amqp connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			b.handle(d)
		}
	}
}

// handle acknowledges every well-formed message once it is fanned out, even
// when the room has no subscribers. Malformed messages are dropped.
func (b *amqpBridge) handle(d amqp.Delivery) {
	req, err := decodeBrokerMessage(d.RoutingKey, d.Body)
	if err != nil {
		b.hub.metrics.rejected.WithLabelValues(sourceAMQP).Inc()
		log.Printf("relay: dropping amqp message routing_key=%s: %v", d.RoutingKey, err)
		_ = d.Nack(false, false)
		return
	}
	publish(b.hub, req, sourceAMQP)
	_ = d.Ack(false)
}

// decodeBrokerMessage accepts either a publish envelope
// ({room|campaignId, event, payload}) or a bare domain event whose routing
// key names the event and whose body carries campaignId.
func decodeBrokerMessage(routingKey string, body []byte) (publishRequest, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return publishRequest{}, apperrors.Wrap(apperrors.CodeMalformedPayload, "decode amqp body", err)
	}

	var req publishRequest
	if _, ok := probe["payload"]; ok {
		if err := json.Unmarshal(body, &req); err != nil {
			return publishRequest{}, apperrors.Wrap(apperrors.CodeMalformedPayload, "decode publish envelope", err)
		}
	} else {
		var target struct {
			Room       string    `json:"room"`
			CampaignID domain.ID `json:"campaignId"`
		}
		if err := json.Unmarshal(body, &target); err != nil {
			return publishRequest{}, apperrors.Wrap(apperrors.CodeMalformedPayload, "decode event target", err)
		}
		req = publishRequest{Room: target.Room, CampaignID: target.CampaignID, Payload: body}
	}
	if strings.TrimSpace(req.Event) == "" {
		req.Event = routingKey
	}
	return req.normalize()
}

func waitRetry(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = time.Second
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
