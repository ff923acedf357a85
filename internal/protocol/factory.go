// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"unilog-service/internal/model"
)

var validBaudRates = []int{9600, 19200, 38400, 57600, 115200}

// CreateTransport creates a transport based on connection type and configuration
func CreateTransport(connectionType model.ConnectionType, config map[string]interface{}, logger *zap.Logger) (Transport, error) {
	if err := ValidateConfig(connectionType, config); err != nil {
		return nil, err
	}

	switch connectionType {
	case model.ConnectionTypeSerial:
		return createSerialTransport(config, logger), nil
	case model.ConnectionTypeTCP:
		return createTCPTransport(config, logger), nil
	default:
		return nil, fmt.Errorf("unsupported connection type: %s", connectionType)
	}
}

// createSerialTransport creates a serial transport
func createSerialTransport(config map[string]interface{}, logger *zap.Logger) Transport {
	serialConfig := DefaultSerialConfig(config["port"].(string))

	if v, ok := intValue(config["baud_rate"]); ok {
		serialConfig.BaudRate = v
	}
	if v, ok := intValue(config["data_bits"]); ok {
		serialConfig.DataBits = v
	}
	if v, ok := intValue(config["stop_bits"]); ok {
		serialConfig.StopBits = v
	}
	if parity, ok := config["parity"].(string); ok {
		serialConfig.Parity = parity
	}
	if timeout, ok := config["timeout"].(string); ok {
		if dur, err := time.ParseDuration(timeout); err == nil {
			serialConfig.Timeout = dur
		}
	}

	logger.Info("Creating serial transport",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(serialConfig, logger)
}

// createTCPTransport creates a TCP bridge transport
func createTCPTransport(config map[string]interface{}, logger *zap.Logger) Transport {
	tcpConfig := &TCPConfig{
		Host:        config["host"].(string),
		Port:        2000, // ser2net default
		KeepAlive:   true,
		DialTimeout: 10 * time.Second,
	}

	if v, ok := intValue(config["port"]); ok {
		tcpConfig.Port = v
	}
	if keepAlive, ok := config["keep_alive"].(bool); ok {
		tcpConfig.KeepAlive = keepAlive
	}
	if timeout, ok := config["dial_timeout"].(string); ok {
		if dur, err := time.ParseDuration(timeout); err == nil {
			tcpConfig.DialTimeout = dur
		}
	}

	logger.Info("Creating TCP transport",
		zap.String("host", tcpConfig.Host),
		zap.Int("port", tcpConfig.Port),
	)

	return NewTCPConnection(tcpConfig, logger)
}

// ValidateConfig validates configuration for a specific connection type
func ValidateConfig(connectionType model.ConnectionType, config map[string]interface{}) error {
	switch connectionType {
	case model.ConnectionTypeSerial:
		return validateSerialConfig(config)
	case model.ConnectionTypeTCP:
		return validateTCPConfig(config)
	default:
		return fmt.Errorf("unsupported connection type: %s", connectionType)
	}
}

// validateSerialConfig validates serial configuration
func validateSerialConfig(config map[string]interface{}) error {
	if port, ok := config["port"].(string); !ok || port == "" {
		return fmt.Errorf("serial port is required")
	}

	if raw, ok := config["baud_rate"]; ok {
		rate, ok := intValue(raw)
		if !ok {
			return fmt.Errorf("invalid baud_rate type")
		}
		valid := false
		for _, validRate := range validBaudRates {
			if rate == validRate {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid baud rate: %d", rate)
		}
	}

	if parity, ok := config["parity"].(string); ok {
		switch parity {
		case "none", "odd", "even":
		default:
			return fmt.Errorf("invalid parity: %s", parity)
		}
	}

	return nil
}

// validateTCPConfig validates TCP configuration
func validateTCPConfig(config map[string]interface{}) error {
	if host, ok := config["host"].(string); !ok || host == "" {
		return fmt.Errorf("TCP host is required")
	}

	if raw, ok := config["port"]; ok {
		portNum, ok := intValue(raw)
		if !ok {
			return fmt.Errorf("invalid port type")
		}
		if portNum < 1 || portNum > 65535 {
			return fmt.Errorf("invalid port number: %d", portNum)
		}
	}

	return nil
}

// intValue accepts the numeric shapes produced by JSON and YAML decoding.
func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
