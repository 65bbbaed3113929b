package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Shipping ShippingConfig `mapstructure:"shipping"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Sheets   SheetsConfig   `mapstructure:"sheets"`
	AI       AIConfig       `mapstructure:"ai"`
	Reminder ReminderConfig `mapstructure:"reminder"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type WhatsAppConfig struct {
	VerifyToken       string `mapstructure:"verify_token"`
	AccessToken       string `mapstructure:"access_token"`
	PhoneNumberID     string `mapstructure:"phone_number_id"`
	CatalogID         string `mapstructure:"catalog_id"`
	FlowID            string `mapstructure:"flow_id"`
	PaymentConfigName string `mapstructure:"payment_config_name"`
	APIBaseURL        string `mapstructure:"api_base_url"`
}

type ShippingConfig struct {
	Token          string `mapstructure:"token"`
	QuoteURL       string `mapstructure:"quote_url"`
	CreateURL      string `mapstructure:"create_url"`
	OriginPincode  string `mapstructure:"origin_pincode"`
	PickupLocation string `mapstructure:"pickup_location"`
	TrackingURL    string `mapstructure:"tracking_url"`
	// Per-item weight in grams, keyed by catalog item id. Items missing from
	// the map fall back to DefaultWeightGrams.
	ItemWeights        map[string]int `mapstructure:"item_weights"`
	DefaultWeightGrams int            `mapstructure:"default_weight_grams"`
	// Flat-rate formula used for quotes when no API token is configured.
	FlatRateBaseRupees  float64 `mapstructure:"flat_rate_base_rupees"`
	FlatRatePerKgRupees float64 `mapstructure:"flat_rate_per_kg_rupees"`
}

type PaymentConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
	LookupBaseURL string `mapstructure:"lookup_base_url"`
	LookupKey     string `mapstructure:"lookup_key"`
	LookupSecret  string `mapstructure:"lookup_secret"`
}

type SheetsConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	WebAppURL     string `mapstructure:"webapp_url"`
}

type AIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	// Optional knowledge-base document sent alongside the system instruction.
	KnowledgeDoc string `mapstructure:"knowledge_doc"`
}

type ReminderConfig struct {
	IdleDelay time.Duration `mapstructure:"idle_delay"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ORDERFUNNEL")
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("shipping.default_weight_grams", 500)
	v.SetDefault("shipping.flat_rate_base_rupees", 40)
	v.SetDefault("shipping.flat_rate_per_kg_rupees", 30)
	v.SetDefault("reminder.idle_delay", 30*time.Minute)
	v.SetDefault("whatsapp.api_base_url", "https://graph.facebook.com/v19.0")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// WeightFor returns the shipment weight in grams for one unit of the given
// catalog item.
func (c *ShippingConfig) WeightFor(itemID string) int {
	if w, ok := c.ItemWeights[itemID]; ok && w > 0 {
		return w
	}
	return c.DefaultWeightGrams
}

func (c *WhatsAppConfig) MessagesURL() string {
	return fmt.Sprintf("%s/%s/messages", c.APIBaseURL, c.PhoneNumberID)
}
