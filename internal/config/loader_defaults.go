package config

import "time"

// defaultTransportConfig returns default sync peer connection settings
func defaultTransportConfig() TransportConfig {
	return TransportConfig{
		Endpoint:         "ws://localhost:4000/graphql",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		KeepAlive:        15 * time.Second,
		ReadLimit:        1 << 20, // 1 MiB
	}
}

// defaultClientConfig returns default sync client settings
func defaultClientConfig() ClientConfig {
	return ClientConfig{
		StopTimeout: 2 * time.Second,
		LogLevel:    "", // Empty keeps LOG_LEVEL or the info default
	}
}

// defaultRelayConfig returns default relay pipeline settings
func defaultRelayConfig() RelayConfig {
	return RelayConfig{
		BufferCapacity: 1024,
		PublishTimeout: 5 * time.Second,
		Encoding:       EncodingJSON,
	}
}

// defaultMQTTConfig returns default MQTT sink settings (disabled)
func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Enabled:              false,
		Broker:               "tcp://localhost:1883",
		ClientID:             "livesync",
		TopicPrefix:          "livesync",
		QoS:                  1,
		Retain:               true,
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxReconnectInterval: 10 * time.Second,
		DisconnectTimeout:    1000,
	}
}

// defaultRedisConfig returns default Redis sink settings (disabled)
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Address:      "localhost:6379",
		StreamPrefix: "livesync",
		MaxLen:       10000,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PingTimeout:  5 * time.Second,
	}
}

// defaultConfig returns a complete configuration with all default values
func defaultConfig() *Config {
	return &Config{
		Transport: defaultTransportConfig(),
		Client:    defaultClientConfig(),
		Relay:     defaultRelayConfig(),
		MQTT:      defaultMQTTConfig(),
		Redis:     defaultRedisConfig(),
	}
}
