// Package mqtt announces dataset updates as retained MQTT messages.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"wastewater/internal/amqp"
	"wastewater/internal/log"
)

const (
	defaultTopicPrefix    = "wastewater"
	defaultPublishTimeout = 5 * time.Second
	connectPoll           = 200 * time.Millisecond
	qosAtLeastOnce        = 1
)

// Config holds broker settings.
type Config struct {
	BrokerURL      string // e.g. tcp://localhost:1883
	ClientID       string
	TopicPrefix    string
	PublishTimeout time.Duration
}

// publisher is the subset of paho.Client used to send messages.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher sends dataset update notifications to an MQTT broker.
type Publisher struct {
	client  paho.Client
	pub     publisher
	prefix  string
	timeout time.Duration
	logger  *log.Logger
}

// NewPublisher connects to the broker, waiting until the connection is up
// or ctx is done.
func NewPublisher(ctx context.Context, cfg Config, logger *log.Logger) (*Publisher, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is required")
	}
	logger = logger.WithComponent(log.ComponentMQTT)

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info("MQTT connected", "broker", cfg.BrokerURL)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", log.FieldError, err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	for !token.WaitTimeout(connectPoll) {
		if ctx.Err() != nil {
			client.Disconnect(0)
			return nil, ctx.Err()
		}
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	p := newPublisher(client, cfg, logger)
	p.client = client
	return p, nil
}

func newPublisher(pub publisher, cfg Config, logger *log.Logger) *Publisher {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Publisher{
		pub:     pub,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger,
	}
}

// DatasetTopic is the topic carrying the latest dataset update.
func (p *Publisher) DatasetTopic() string {
	return p.prefix + "/dataset"
}

// StationTopic is the topic carrying the latest update of one station.
func (p *Publisher) StationTopic(station string) string {
	return p.prefix + "/stations/" + topicSegment(station) + "/updated"
}

// PublishDatasetUpdated publishes the message retained on the dataset topic
// and on the topic of every station it names.
func (p *Publisher) PublishDatasetUpdated(ctx context.Context, msg *amqp.DatasetUpdatedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	topics := []string{p.DatasetTopic()}
	for _, station := range msg.Stations {
		topics = append(topics, p.StationTopic(station))
	}

	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return err
		}
		token := p.pub.Publish(topic, qosAtLeastOnce, true, body)
		if !token.WaitTimeout(p.timeout) {
			return fmt.Errorf("publish timeout for topic %s", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}

	p.logger.DebugContext(ctx, "Published dataset update",
		log.FieldRunID, msg.RunID,
		"topics", len(topics))
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Disconnect(250)
	}
}

// topicSegment makes a station name safe to use as one topic level.
func topicSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, s)
}
