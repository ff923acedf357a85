// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Serial      SerialPortConfig  `mapstructure:"serial"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Calculation CalculationConfig `mapstructure:"calculation"`
	Storage     StorageConfig     `mapstructure:"storage"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Discovery   DiscoveryConfig   `mapstructure:"discovery"`
	App         AppConfig         `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host" validate:"required"`
	Port           string        `mapstructure:"port" validate:"required"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxUploadSize  int64         `mapstructure:"max_upload_size"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// SerialPortConfig holds the defaults applied to devices registered without
// explicit line settings
type SerialPortConfig struct {
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	StopBits int           `mapstructure:"stop_bits"`
	Parity   string        `mapstructure:"parity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AcquisitionConfig tunes probing and the live loop. Zero values keep the
// per-generation defaults of the drivers.
type AcquisitionConfig struct {
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ReadyAttempts   int           `mapstructure:"ready_attempts"`
	StatusTimeout   time.Duration `mapstructure:"status_timeout"`
	FrameTimeout    time.Duration `mapstructure:"frame_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay"`
	LiveRetries     int           `mapstructure:"live_retries"`
	LiveRetryDelay  time.Duration `mapstructure:"live_retry_delay"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxTimeouts     int           `mapstructure:"max_timeouts"`
	SampleBuffer    int           `mapstructure:"sample_buffer"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
}

// CalculationConfig holds the parameters of the derived-measurement pass
type CalculationConfig struct {
	Cells              int           `mapstructure:"cells"`
	PropN100W          int           `mapstructure:"prop_n100w"`
	RPMFactor          float64       `mapstructure:"rpm_factor"`
	Motors             int           `mapstructure:"motors"`
	RegressionInterval time.Duration `mapstructure:"regression_interval"`
}

// StorageConfig selects the session store and the raw block directory
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	ConfigDir string `mapstructure:"config_dir"`
}

// MQTTConfig configures the optional sample publisher
type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DiscoveryConfig configures port discovery
type DiscoveryConfig struct {
	Serial   bool     `mapstructure:"serial"`
	USB      bool     `mapstructure:"usb"`
	OnlyUSB  bool     `mapstructure:"only_usb"`
	Patterns []string `mapstructure:"patterns"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables. A missing
// config file is not an error; defaults and environment apply.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom loads configuration through v
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/unilog-service")

	// Environment variable support
	v.SetEnvPrefix("UNILOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8086")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_size", 32<<20)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "unilog")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Serial defaults
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.timeout", "2s")

	// Acquisition defaults, zero keeps the driver defaults
	v.SetDefault("acquisition.connect_attempts", 0)
	v.SetDefault("acquisition.ready_attempts", 0)
	v.SetDefault("acquisition.poll_interval", "0s")
	v.SetDefault("acquisition.max_timeouts", 3)
	v.SetDefault("acquisition.sample_buffer", 256)
	v.SetDefault("acquisition.stop_timeout", "5s")

	// Calculation defaults
	v.SetDefault("calculation.cells", 4)
	v.SetDefault("calculation.prop_n100w", 10000)
	v.SetDefault("calculation.rpm_factor", 1.0)
	v.SetDefault("calculation.motors", 1)
	v.SetDefault("calculation.regression_interval", "4s")

	// Storage defaults
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.config_dir", "./data/config")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "unilog")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.timeout", "5s")

	// Discovery defaults
	v.SetDefault("discovery.serial", true)
	v.SetDefault("discovery.usb", false)
	v.SetDefault("discovery.only_usb", true)
	v.SetDefault("discovery.patterns", []string{"/dev/ttyUSB*", "/dev/ttyACM*", "COM*"})

	// App defaults
	v.SetDefault("app.name", "unilog-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if err := oneOf("app.environment", config.App.Environment,
		[]string{"development", "staging", "production", "test"}); err != nil {
		return err
	}
	if err := oneOf("logging.level", config.Logging.Level,
		[]string{"debug", "info", "warn", "error", "fatal"}); err != nil {
		return err
	}
	if err := oneOf("storage.driver", config.Storage.Driver,
		[]string{"memory", "postgres"}); err != nil {
		return err
	}
	if err := oneOf("serial.parity", config.Serial.Parity,
		[]string{"none", "odd", "even", "mark", "space"}); err != nil {
		return err
	}

	validBaudRates := []int{9600, 19200, 38400, 57600, 115200}
	isValidBaud := false
	for _, rate := range validBaudRates {
		if config.Serial.BaudRate == rate {
			isValidBaud = true
			break
		}
	}
	if !isValidBaud {
		return fmt.Errorf("serial.baud_rate must be one of: %v", validBaudRates)
	}

	if config.Storage.Driver == "postgres" && config.Database.Host == "" {
		return fmt.Errorf("database.host is required for postgres storage")
	}
	if config.MQTT.Enabled && config.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if config.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if config.Calculation.Cells <= 0 || config.Calculation.Motors <= 0 || config.Calculation.PropN100W <= 0 {
		return fmt.Errorf("calculation.cells, motors and prop_n100w must be positive")
	}

	return nil
}

func oneOf(key, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %v", key, allowed)
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// UsePostgres reports whether sessions are stored in postgres
func (c *Config) UsePostgres() bool {
	return c.Storage.Driver == "postgres"
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
