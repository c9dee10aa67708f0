package config

import "fmt"

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	if err := validateTransport(&cfg.Transport); err != nil {
		return err
	}
	if err := validateRelay(&cfg.Relay); err != nil {
		return err
	}
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}
	return validateRedis(&cfg.Redis)
}

// validateTransport validates transport configuration
func validateTransport(cfg *TransportConfig) error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("transport endpoint cannot be empty")
	}
	if cfg.HandshakeTimeout <= 0 {
		return fmt.Errorf("transport handshake timeout must be positive")
	}
	if cfg.WriteTimeout <= 0 {
		return fmt.Errorf("transport write timeout must be positive")
	}
	if cfg.KeepAlive < 0 {
		return fmt.Errorf("transport keepalive cannot be negative")
	}
	if cfg.ReadLimit < 0 {
		return fmt.Errorf("transport read limit cannot be negative")
	}
	return nil
}

// validateRelay validates relay configuration
func validateRelay(cfg *RelayConfig) error {
	if cfg.BufferCapacity < 1 {
		return fmt.Errorf("relay buffer capacity must be positive")
	}
	if cfg.PublishTimeout <= 0 {
		return fmt.Errorf("relay publish timeout must be positive")
	}
	switch cfg.Encoding {
	case EncodingJSON, EncodingMsgpack:
	default:
		return fmt.Errorf("relay encoding %q is not supported (want %s or %s)", cfg.Encoding, EncodingJSON, EncodingMsgpack)
	}
	return nil
}

// validateMQTT validates MQTT configuration; disabled sinks are not checked
func validateMQTT(cfg *MQTTConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if cfg.TopicPrefix == "" {
		return fmt.Errorf("mqtt topic prefix cannot be empty")
	}
	if cfg.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	return nil
}

// validateRedis validates Redis configuration; disabled sinks are not checked
func validateRedis(cfg *RedisConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.StreamPrefix == "" {
		return fmt.Errorf("redis stream prefix cannot be empty")
	}
	if cfg.MaxLen < 0 {
		return fmt.Errorf("redis maxlen cannot be negative")
	}
	return nil
}
