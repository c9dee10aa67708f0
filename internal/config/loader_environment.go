package config

import (
	"os"
	"strconv"
	"time"
)

// loadTransportFromEnv loads transport configuration from environment variables
func loadTransportFromEnv(cfg *TransportConfig) {
	if v := getEnvString("LIVESYNC_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := getEnvDuration("LIVESYNC_HANDSHAKE_TIMEOUT"); v != 0 {
		cfg.HandshakeTimeout = v
	}
	if v := getEnvDuration("LIVESYNC_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	// KeepAlive accepts an explicit 0 to disable pings
	if v, ok := lookupEnvDuration("LIVESYNC_KEEPALIVE"); ok {
		cfg.KeepAlive = v
	}
	if v := getEnvInt("LIVESYNC_READ_LIMIT"); v != 0 {
		cfg.ReadLimit = int64(v)
	}
}

// loadClientFromEnv loads client configuration from environment variables
func loadClientFromEnv(cfg *ClientConfig) {
	if v := getEnvDuration("LIVESYNC_STOP_TIMEOUT"); v != 0 {
		cfg.StopTimeout = v
	}
	if v := getEnvString("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// loadRelayFromEnv loads relay pipeline configuration from environment variables
func loadRelayFromEnv(cfg *RelayConfig) {
	if v := getEnvInt("RELAY_BUFFER_CAPACITY"); v != 0 {
		cfg.BufferCapacity = v
	}
	if v := getEnvDuration("RELAY_PUBLISH_TIMEOUT"); v != 0 {
		cfg.PublishTimeout = v
	}
	if v := getEnvString("RELAY_ENCODING"); v != "" {
		cfg.Encoding = v
	}
}

// loadMQTTFromEnv loads MQTT sink configuration from environment variables
func loadMQTTFromEnv(cfg *MQTTConfig) {
	loadMQTTStrings(cfg)
	loadMQTTInts(cfg)
	loadMQTTTimeouts(cfg)
	loadMQTTBools(cfg)
}

func loadMQTTStrings(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := getEnvString("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := getEnvString("MQTT_TOPIC_PREFIX"); v != "" {
		cfg.TopicPrefix = v
	}
	if v := getEnvString("MQTT_CA_CERT"); v != "" {
		cfg.CACert = v
	}
	if v := getEnvString("MQTT_CLIENT_CERT"); v != "" {
		cfg.ClientCert = v
	}
	if v := getEnvString("MQTT_CLIENT_KEY"); v != "" {
		cfg.ClientKey = v
	}
}

func loadMQTTInts(cfg *MQTTConfig) {
	if v, ok := lookupEnvInt("MQTT_QOS"); ok && v >= 0 && v <= 2 {
		cfg.QoS = byte(v) // #nosec G115 - validated range 0-2
	}
	if v := getEnvInt("MQTT_DISCONNECT_TIMEOUT"); v > 0 {
		cfg.DisconnectTimeout = uint(v)
	}
}

func loadMQTTTimeouts(cfg *MQTTConfig) {
	if v := getEnvDuration("MQTT_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
	if v := getEnvDuration("MQTT_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("MQTT_MAX_RECONNECT_INTERVAL"); v != 0 {
		cfg.MaxReconnectInterval = v
	}
}

func loadMQTTBools(cfg *MQTTConfig) {
	if v, ok := lookupEnvBool("MQTT_ENABLED"); ok {
		cfg.Enabled = v
	}
	if v, ok := lookupEnvBool("MQTT_RETAIN"); ok {
		cfg.Retain = v
	}
	if v, ok := lookupEnvBool("MQTT_TLS_ENABLED"); ok {
		cfg.TLSEnabled = v
	}
	if v, ok := lookupEnvBool("MQTT_TLS_INSECURE_SKIP"); ok {
		cfg.InsecureSkip = v
	}
}

// loadRedisFromEnv loads Redis sink configuration from environment variables
func loadRedisFromEnv(cfg *RedisConfig) {
	if v, ok := lookupEnvBool("REDIS_ENABLED"); ok {
		cfg.Enabled = v
	}
	if v := getEnvString("REDIS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := getEnvString("REDIS_STREAM_PREFIX"); v != "" {
		cfg.StreamPrefix = v
	}
	if v, ok := lookupEnvInt("REDIS_MAXLEN"); ok {
		cfg.MaxLen = int64(v)
	}
	if v := getEnvDuration("REDIS_DIAL_TIMEOUT"); v != 0 {
		cfg.DialTimeout = v
	}
	if v := getEnvDuration("REDIS_READ_TIMEOUT"); v != 0 {
		cfg.ReadTimeout = v
	}
	if v := getEnvDuration("REDIS_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("REDIS_PING_TIMEOUT"); v != 0 {
		cfg.PingTimeout = v
	}
}

// Helper functions for reading environment variables

func getEnvString(key string) string {
	return os.Getenv(key)
}

func getEnvInt(key string) int {
	v, _ := lookupEnvInt(key)
	return v
}

func lookupEnvInt(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return intValue, true
}

func getEnvDuration(key string) time.Duration {
	v, _ := lookupEnvDuration(key)
	return v
}

func lookupEnvDuration(key string) (time.Duration, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, false
	}
	return duration, true
}

// lookupEnvBool returns ok=false when the variable is unset or not a bool,
// so "false" can override a true default.
func lookupEnvBool(key string) (bool, bool) {
	value := os.Getenv(key)
	if value == "" {
		return false, false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return b, true
}
