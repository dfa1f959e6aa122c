package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connTimeout    = 10
	reconnTimeout  = 1
	disconnTimeout = 250
)

var (
	errPublishTimeout     = errors.New("failed to publish due to timeout reached")
	errSubscribeTimeout   = errors.New("failed to subscribe due to timeout reached")
	errUnsubscribeTimeout = errors.New("failed to unsubscribe due to timeout reached")
	errEmptyTopic         = errors.New("empty topic")
	errEmptyID            = errors.New("empty ID")
)

type Handler func(topic string, msg map[string]any) error

type PubSub interface {
	Publish(ctx context.Context, topic string, msg any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
	Disconnect(ctx context.Context) error
}

// Config describes a broker connection. WillTopic/WillPayload, when set,
// register a last-will message published by the broker on abrupt disconnect.
type Config struct {
	URL         string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Timeout     time.Duration
	CAPath      string
	CertPath    string
	KeyPath     string
	WillTopic   string
	WillPayload any
}

type pubsub struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

func NewPubSub(cfg Config, logger *slog.Logger) (PubSub, error) {
	if cfg.ClientID == "" {
		return nil, errEmptyID
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &pubsub{
		client:  client,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

func (ps *pubsub) Publish(ctx context.Context, topic string, msg any) error {
	if topic == "" {
		return errEmptyTopic
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	token := ps.client.Publish(topic, ps.qos, false, data)
	if token.Error() != nil {
		return token.Error()
	}

	if ok := token.WaitTimeout(ps.timeout); !ok {
		return errPublishTimeout
	}

	return nil
}

func (ps *pubsub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errEmptyTopic
	}

	token := ps.client.Subscribe(topic, ps.qos, ps.mqttHandler(handler))
	if token.Error() != nil {
		return token.Error()
	}
	if ok := token.WaitTimeout(ps.timeout); !ok {
		return errSubscribeTimeout
	}

	return nil
}

func (ps *pubsub) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return errEmptyTopic
	}

	token := ps.client.Unsubscribe(topic)
	if token.Error() != nil {
		return token.Error()
	}

	if ok := token.WaitTimeout(ps.timeout); !ok {
		return errUnsubscribeTimeout
	}

	return nil
}

func (ps *pubsub) Disconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		ps.client.Disconnect(disconnTimeout)

		return nil
	}
}

func newClient(cfg Config, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connTimeout * time.Second).
		SetMaxReconnectInterval(reconnTimeout * time.Minute)

	if err := applyTLSConfig(opts, cfg.CAPath, cfg.CertPath, cfg.KeyPath); err != nil {
		return nil, err
	}

	if cfg.WillTopic != "" {
		payload, err := json.Marshal(cfg.WillPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode last will payload: %w", err)
		}
		opts.SetBinaryWill(cfg.WillTopic, payload, 0, false)
	}

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connection established", slog.String("broker", cfg.URL))
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		args := []any{}
		if err != nil {
			args = append(args, slog.Any("error", err))
		}

		logger.Info("MQTT connection lost", args...)
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, options *mqtt.ClientOptions) {
		args := []any{}
		if options != nil {
			args = append(args, slog.String("client_id", options.ClientID))
		}

		logger.Info("MQTT reconnecting", args...)
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if token.Error() != nil {
		return nil, errors.Join(errors.New("failed to connect to MQTT broker"), token.Error())
	}

	if ok := token.WaitTimeout(cfg.Timeout); !ok {
		return nil, errors.New("timeout reached while connecting to MQTT broker")
	}
	if token.Error() != nil {
		return nil, errors.Join(errors.New("failed to connect to MQTT broker"), token.Error())
	}

	return client, nil
}

func applyTLSConfig(opts *mqtt.ClientOptions, caPath, certPath, keyPath string) error {
	if caPath == "" {
		return nil
	}

	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
		return errors.New("failed to parse CA certificate")
	}

	tlsConfig := &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}

	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return fmt.Errorf("failed to load client key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	opts.SetTLSConfig(tlsConfig)

	return nil
}

func (ps *pubsub) mqttHandler(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, m mqtt.Message) {
		var msg map[string]any
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			ps.logger.Warn("Failed to unmarshal received message", slog.Any("error", err))

			return
		}

		if err := h(m.Topic(), msg); err != nil {
			ps.logger.Warn("Failed to handle MQTT message", slog.String("topic", m.Topic()), slog.Any("error", err))
		}
	}
}
