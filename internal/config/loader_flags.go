package config

import (
	"flag"
	"time"
)

// cliFlags holds the command line flags (have precedence over environment variables)
type cliFlags struct {
	// Transport flags
	endpoint         *string
	handshakeTimeout *time.Duration
	writeTimeout     *time.Duration
	keepAlive        *time.Duration
	readLimit        *int64

	// Client flags
	stopTimeout *time.Duration
	logLevel    *string

	// Relay flags
	relayBufferCapacity *int
	relayPublishTimeout *time.Duration
	relayEncoding       *string

	// MQTT flags
	mqttEnabled           *bool
	mqttBroker            *string
	mqttClientID          *string
	mqttTopicPrefix       *string
	mqttQoS               *int
	mqttRetain            *bool
	mqttConnectTimeout    *time.Duration
	mqttWriteTimeout      *time.Duration
	mqttMaxReconnect      *time.Duration
	mqttDisconnectTimeout *int
	mqttTLSEnabled        *bool
	mqttCACert            *string
	mqttClientCert        *string
	mqttClientKey         *string
	mqttTLSInsecureSkip   *bool

	// Redis flags
	redisEnabled      *bool
	redisAddress      *string
	redisStreamPrefix *string
	redisMaxLen       *int64
	redisDialTimeout  *time.Duration
	redisReadTimeout  *time.Duration
	redisWriteTimeout *time.Duration
	redisPingTimeout  *time.Duration
}

var flags = registerFlags(flag.CommandLine)

// registerFlags defines every flag on fs. Zero values mean "not set".
func registerFlags(fs *flag.FlagSet) *cliFlags {
	return &cliFlags{
		endpoint:         fs.String("endpoint", "", "Sync peer WebSocket endpoint (ws:// or wss://)"),
		handshakeTimeout: fs.Duration("handshake-timeout", 0, "Connection handshake timeout"),
		writeTimeout:     fs.Duration("write-timeout", 0, "Frame write timeout"),
		keepAlive:        fs.Duration("keepalive", -1, "Ping interval (0 disables)"),
		readLimit:        fs.Int64("read-limit", 0, "Max inbound frame size in bytes"),

		stopTimeout: fs.Duration("stop-timeout", 0, "Bound on unsubscribe writes during shutdown"),
		logLevel:    fs.String("log-level", "", "Log level (trace, debug, info, warn, error)"),

		relayBufferCapacity: fs.Int("relay-buffer-capacity", 0, "Relay queue capacity"),
		relayPublishTimeout: fs.Duration("relay-publish-timeout", 0, "Relay per-record publish timeout"),
		relayEncoding:       fs.String("relay-encoding", "", "Relay record encoding (json or msgpack)"),

		mqttEnabled:           fs.Bool("mqtt-enabled", false, "Relay changes to MQTT"),
		mqttBroker:            fs.String("mqtt-broker", "", "MQTT broker URL"),
		mqttClientID:          fs.String("mqtt-client-id", "", "MQTT client ID"),
		mqttTopicPrefix:       fs.String("mqtt-topic-prefix", "", "MQTT topic prefix"),
		mqttQoS:               fs.Int("mqtt-qos", -1, "MQTT QoS (0, 1, or 2)"),
		mqttRetain:            fs.Bool("mqtt-retain", true, "Publish MQTT records as retained"),
		mqttConnectTimeout:    fs.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout"),
		mqttWriteTimeout:      fs.Duration("mqtt-write-timeout", 0, "MQTT write timeout"),
		mqttMaxReconnect:      fs.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval"),
		mqttDisconnectTimeout: fs.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)"),
		mqttTLSEnabled:        fs.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS"),
		mqttCACert:            fs.String("mqtt-ca-cert", "", "MQTT CA certificate path"),
		mqttClientCert:        fs.String("mqtt-client-cert", "", "MQTT client certificate path"),
		mqttClientKey:         fs.String("mqtt-client-key", "", "MQTT client key path"),
		mqttTLSInsecureSkip:   fs.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification"),

		redisEnabled:      fs.Bool("redis-enabled", false, "Relay changes to Redis streams"),
		redisAddress:      fs.String("redis-address", "", "Redis address"),
		redisStreamPrefix: fs.String("redis-stream-prefix", "", "Redis stream key prefix"),
		redisMaxLen:       fs.Int64("redis-maxlen", -1, "Approximate Redis stream length (0 keeps everything)"),
		redisDialTimeout:  fs.Duration("redis-dial-timeout", 0, "Redis dial timeout"),
		redisReadTimeout:  fs.Duration("redis-read-timeout", 0, "Redis read timeout"),
		redisWriteTimeout: fs.Duration("redis-write-timeout", 0, "Redis write timeout"),
		redisPingTimeout:  fs.Duration("redis-ping-timeout", 0, "Redis ping timeout"),
	}
}

// applyTransportFlags applies command line flags to transport configuration
func applyTransportFlags(cfg *TransportConfig) {
	if *flags.endpoint != "" {
		cfg.Endpoint = *flags.endpoint
	}
	if *flags.handshakeTimeout != 0 {
		cfg.HandshakeTimeout = *flags.handshakeTimeout
	}
	if *flags.writeTimeout != 0 {
		cfg.WriteTimeout = *flags.writeTimeout
	}
	if *flags.keepAlive >= 0 {
		cfg.KeepAlive = *flags.keepAlive
	}
	if *flags.readLimit != 0 {
		cfg.ReadLimit = *flags.readLimit
	}
}

// applyClientFlags applies command line flags to client configuration
func applyClientFlags(cfg *ClientConfig) {
	if *flags.stopTimeout != 0 {
		cfg.StopTimeout = *flags.stopTimeout
	}
	if *flags.logLevel != "" {
		cfg.LogLevel = *flags.logLevel
	}
}

// applyRelayFlags applies command line flags to relay configuration
func applyRelayFlags(cfg *RelayConfig) {
	if *flags.relayBufferCapacity != 0 {
		cfg.BufferCapacity = *flags.relayBufferCapacity
	}
	if *flags.relayPublishTimeout != 0 {
		cfg.PublishTimeout = *flags.relayPublishTimeout
	}
	if *flags.relayEncoding != "" {
		cfg.Encoding = *flags.relayEncoding
	}
}

// applyMQTTFlags applies command line flags to MQTT configuration
func applyMQTTFlags(cfg *MQTTConfig) {
	applyMQTTFlagStrings(cfg)
	applyMQTTFlagInts(cfg)
	applyMQTTFlagTimeouts(cfg)
	applyMQTTFlagBools(cfg)
}

func applyMQTTFlagStrings(cfg *MQTTConfig) {
	if *flags.mqttBroker != "" {
		cfg.Broker = *flags.mqttBroker
	}
	if *flags.mqttClientID != "" {
		cfg.ClientID = *flags.mqttClientID
	}
	if *flags.mqttTopicPrefix != "" {
		cfg.TopicPrefix = *flags.mqttTopicPrefix
	}
	if *flags.mqttCACert != "" {
		cfg.CACert = *flags.mqttCACert
	}
	if *flags.mqttClientCert != "" {
		cfg.ClientCert = *flags.mqttClientCert
	}
	if *flags.mqttClientKey != "" {
		cfg.ClientKey = *flags.mqttClientKey
	}
}

func applyMQTTFlagInts(cfg *MQTTConfig) {
	if *flags.mqttQoS >= 0 && *flags.mqttQoS <= 2 {
		cfg.QoS = byte(*flags.mqttQoS) // #nosec G115 - validated range 0-2
	}
	if *flags.mqttDisconnectTimeout > 0 {
		cfg.DisconnectTimeout = uint(*flags.mqttDisconnectTimeout)
	}
}

func applyMQTTFlagTimeouts(cfg *MQTTConfig) {
	if *flags.mqttConnectTimeout != 0 {
		cfg.ConnectTimeout = *flags.mqttConnectTimeout
	}
	if *flags.mqttWriteTimeout != 0 {
		cfg.WriteTimeout = *flags.mqttWriteTimeout
	}
	if *flags.mqttMaxReconnect != 0 {
		cfg.MaxReconnectInterval = *flags.mqttMaxReconnect
	}
}

func applyMQTTFlagBools(cfg *MQTTConfig) {
	// Bool flags only count when explicitly set
	if isFlagSet("mqtt-enabled") {
		cfg.Enabled = *flags.mqttEnabled
	}
	if isFlagSet("mqtt-retain") {
		cfg.Retain = *flags.mqttRetain
	}
	if isFlagSet("mqtt-tls-enabled") {
		cfg.TLSEnabled = *flags.mqttTLSEnabled
	}
	if isFlagSet("mqtt-tls-insecure-skip") {
		cfg.InsecureSkip = *flags.mqttTLSInsecureSkip
	}
}

// applyRedisFlags applies command line flags to Redis configuration
func applyRedisFlags(cfg *RedisConfig) {
	if isFlagSet("redis-enabled") {
		cfg.Enabled = *flags.redisEnabled
	}
	if *flags.redisAddress != "" {
		cfg.Address = *flags.redisAddress
	}
	if *flags.redisStreamPrefix != "" {
		cfg.StreamPrefix = *flags.redisStreamPrefix
	}
	if *flags.redisMaxLen >= 0 {
		cfg.MaxLen = *flags.redisMaxLen
	}
	if *flags.redisDialTimeout != 0 {
		cfg.DialTimeout = *flags.redisDialTimeout
	}
	if *flags.redisReadTimeout != 0 {
		cfg.ReadTimeout = *flags.redisReadTimeout
	}
	if *flags.redisWriteTimeout != 0 {
		cfg.WriteTimeout = *flags.redisWriteTimeout
	}
	if *flags.redisPingTimeout != 0 {
		cfg.PingTimeout = *flags.redisPingTimeout
	}
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
