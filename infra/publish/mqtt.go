// Package publish pushes prediction batches to Redis and MQTT consumers.
package publish

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	corelogger "github.com/YDUTSEVOLDN/Subway/core/logger"
	"github.com/YDUTSEVOLDN/Subway/core/model"
	corepublish "github.com/YDUTSEVOLDN/Subway/core/publish"
	"github.com/YDUTSEVOLDN/Subway/infra/logger"
)

// MQTTConfig defines the broker connection and topic layout.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TopicPrefix is followed by the lowercased station name.
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	Retain      bool   `json:"retain"`
	UseTLS      bool   `json:"use_tls"`
	ClientCert  string `json:"client_cert"`
	ClientKey   string `json:"client_key"`
	CABundle    string `json:"ca_bundle"`
	MaxRetries  int    `json:"max_retries"`
	BackoffMS   int    `json:"backoff_ms"`
}

// StationMessage is the payload published on each station topic.
type StationMessage struct {
	BatchID     string                   `json:"batch_id"`
	Station     string                   `json:"station"`
	Predictions []model.PredictionResult `json:"predictions"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTPublisher publishes one message per station and batch.
type MQTTPublisher struct {
	cli     pahoClient
	cfg     MQTTConfig
	backoff time.Duration
	log     corelogger.Logger
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt publisher: broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "subway-" + uuid.NewString()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "subway/predictions"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	backoff := time.Duration(cfg.BackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt-publisher")
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTPublisher{cli: c, cfg: cfg, backoff: backoff, log: log}, nil
}

func clientOptions(cfg MQTTConfig) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := loadTLS(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

func loadTLS(c MQTTConfig) (*tls.Config, error) {
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Name identifies the publisher in logs and metrics.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic returns the topic used for station.
func (p *MQTTPublisher) Topic(station string) string {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(station)), " ", "_")
	return p.cfg.TopicPrefix + "/" + slug
}

// Publish groups the batch by station and publishes each group, retrying
// with exponential backoff.
func (p *MQTTPublisher) Publish(ctx context.Context, msg corepublish.Message) error {
	groups := map[string][]model.PredictionResult{}
	for _, r := range msg.Predictions {
		groups[r.Station] = append(groups[r.Station], r)
	}
	stations := make([]string, 0, len(groups))
	for st := range groups {
		stations = append(stations, st)
	}
	sort.Strings(stations)
	for _, st := range stations {
		payload, err := json.Marshal(StationMessage{BatchID: msg.BatchID, Station: st, Predictions: groups[st]})
		if err != nil {
			return err
		}
		if err := p.publish(ctx, p.Topic(st), payload); err != nil {
			return fmt.Errorf("station %s: %w", st, err)
		}
	}
	return nil
}

func (p *MQTTPublisher) publish(ctx context.Context, topic string, payload []byte) error {
	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
		token.Wait()
		if err = token.Error(); err == nil {
			return nil
		}
		p.log.Errorf("publish to %s attempt %d failed: %v", topic, attempt+1, err)
		if attempt == p.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return err
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}
