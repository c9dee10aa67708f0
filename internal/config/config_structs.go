// Package config provides configuration loading and validation from environment variables and command line flags.
package config

import "time"

// Config holds the complete configuration
type Config struct {
	Transport TransportConfig
	Client    ClientConfig
	Relay     RelayConfig
	MQTT      MQTTConfig
	Redis     RedisConfig
}

// TransportConfig holds the connection settings for the sync peer
type TransportConfig struct {
	Endpoint         string // ws:// or wss:// URL, resolved once at construction
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	KeepAlive        time.Duration // 0 disables ping/pong liveness checks
	ReadLimit        int64         // Max inbound frame size in bytes
}

// ClientConfig holds sync client settings
type ClientConfig struct {
	StopTimeout time.Duration // Bound on best-effort unsubscribe writes during Stop
	LogLevel    string
}

// RelayConfig holds the change relay pipeline settings
type RelayConfig struct {
	BufferCapacity int
	PublishTimeout time.Duration
	Encoding       string // json or msgpack
}

// MQTTConfig holds the MQTT relay sink configuration
type MQTTConfig struct {
	Enabled              bool
	Broker               string
	ClientID             string
	TopicPrefix          string
	QoS                  byte
	Retain               bool
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	MaxReconnectInterval time.Duration
	DisconnectTimeout    uint // Milliseconds for graceful disconnect
	// TLS Configuration
	TLSEnabled   bool
	CACert       string
	ClientCert   string
	ClientKey    string
	InsecureSkip bool
}

// RedisConfig holds the Redis stream relay sink configuration
type RedisConfig struct {
	Enabled      bool
	Address      string
	StreamPrefix string
	MaxLen       int64 // Approximate stream trim length, 0 keeps everything
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingTimeout  time.Duration
}

// Relay encodings
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// RelayEnabled reports whether any relay sink is configured.
func (c *Config) RelayEnabled() bool {
	return c.MQTT.Enabled || c.Redis.Enabled
}
