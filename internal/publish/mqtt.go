package publish

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/config"
)

// MQTTPublisher publishes captures to a broker, one subtopic per source
// channel.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	log    *logrus.Logger
}

func NewMQTTPublisher(cfg config.MQTTConfig, log *logrus.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if tc := client.Connect(); tc.Wait() && tc.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", tc.Error())
	}

	log.Infof("mqtt publisher connected: %s", cfg.Broker)

	return &MQTTPublisher{
		client: client,
		topic:  cfg.Topic,
		qos:    cfg.QoS,
		log:    log,
	}, nil
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

func (p *MQTTPublisher) Publish(ctx context.Context, c *Capture) error {
	payload, err := c.marshal()
	if err != nil {
		return fmt.Errorf("marshaling capture: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", p.topic, c.Record.Source)
	if tc := p.client.Publish(topic, p.qos, false, payload); tc.Wait() && tc.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, tc.Error())
	}
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
