package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config models stockbot.yml plus the environment overrides the bot has
// always honored (STOCK_BOT_TOKEN, FRAPPE_BASE_URL, ...).
type Config struct {
	Telegram struct {
		Token      string `yaml:"token"`
		WebhookURL string `yaml:"webhook_url"`
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"telegram"`
	ERP struct {
		BaseURL        string        `yaml:"base_url"`
		VerifyEndpoint string        `yaml:"verify_endpoint"`
		Company        string        `yaml:"company"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
	} `yaml:"erp"`
	Series struct {
		StockEntry      string `yaml:"stock_entry"`
		PurchaseReceipt string `yaml:"purchase_receipt"`
		DeliveryNote    string `yaml:"delivery_note"`
	} `yaml:"series"`
	Limits struct {
		Items      int `yaml:"items"`
		Warehouses int `yaml:"warehouses"`
		Suppliers  int `yaml:"suppliers"`
		Customers  int `yaml:"customers"`
		Documents  int `yaml:"documents"`
	} `yaml:"limits"`
	DB struct {
		Path string `yaml:"path"`
	} `yaml:"db"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Workers int `yaml:"workers"`
}

// Load reads the optional YAML file at path, applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("erp.verify_endpoint", "/api/method/frappe.auth.get_logged_user")
	v.SetDefault("erp.company", "accord")
	v.SetDefault("erp.read_timeout", 10*time.Second)
	v.SetDefault("erp.write_timeout", 15*time.Second)
	v.SetDefault("series.stock_entry", "MAT-STE-.YYYY.-.#####")
	v.SetDefault("series.purchase_receipt", "MAT-PRE-.YYYY.-.#####")
	v.SetDefault("series.delivery_note", "MAT-DN-.YYYY.-.#####")
	v.SetDefault("limits.items", 25)
	v.SetDefault("limits.warehouses", 25)
	v.SetDefault("limits.suppliers", 25)
	v.SetDefault("limits.customers", 25)
	v.SetDefault("limits.documents", 25)
	v.SetDefault("db.path", "stockbot.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("workers", 8)
	v.SetDefault("telegram.listen_addr", ":8080")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("invalid config yaml: %w", err)
		}
	}

	bindEnv(v, "telegram.token", "STOCK_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	bindEnv(v, "telegram.webhook_url", "STOCK_BOT_WEBHOOK_URL")
	bindEnv(v, "telegram.listen_addr", "STOCK_BOT_LISTEN_ADDR")
	bindEnv(v, "erp.base_url", "FRAPPE_BASE_URL")
	bindEnv(v, "erp.verify_endpoint", "ERP_VERIFY_ENDPOINT")
	bindEnv(v, "erp.company", "ERP_COMPANY")
	bindEnv(v, "series.stock_entry", "STOCK_ENTRY_SERIES")
	bindEnv(v, "series.purchase_receipt", "PURCHASE_RECEIPT_SERIES")
	bindEnv(v, "series.delivery_note", "DELIVERY_NOTE_SERIES")
	bindEnv(v, "limits.items", "ITEM_SEARCH_LIMIT")
	bindEnv(v, "limits.warehouses", "WAREHOUSE_SEARCH_LIMIT")
	bindEnv(v, "limits.suppliers", "SUPPLIER_SEARCH_LIMIT")
	bindEnv(v, "limits.customers", "CUSTOMER_SEARCH_LIMIT")
	bindEnv(v, "limits.documents", "DOCUMENT_LIST_LIMIT")
	bindEnv(v, "db.path", "STOCK_BOT_DB_PATH")
	bindEnv(v, "log.level", "STOCK_BOT_LOG_LEVEL")
	bindEnv(v, "workers", "STOCK_BOT_WORKERS")

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config can actually drive the bot.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required (STOCK_BOT_TOKEN)")
	}
	if c.ERP.BaseURL == "" {
		return fmt.Errorf("erp.base_url is required (FRAPPE_BASE_URL)")
	}
	u, err := url.Parse(c.ERP.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("erp.base_url must be an http(s) URL, got %q", c.ERP.BaseURL)
	}
	if !strings.HasPrefix(c.ERP.VerifyEndpoint, "/") {
		return fmt.Errorf("erp.verify_endpoint must start with /")
	}
	for name, limit := range map[string]int{
		"limits.items":      c.Limits.Items,
		"limits.warehouses": c.Limits.Warehouses,
		"limits.suppliers":  c.Limits.Suppliers,
		"limits.customers":  c.Limits.Customers,
		"limits.documents":  c.Limits.Documents,
	} {
		if limit <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.ERP.ReadTimeout <= 0 || c.ERP.WriteTimeout <= 0 {
		return fmt.Errorf("erp timeouts must be positive")
	}
	return nil
}

// FromYAML parses and validates config from raw YAML bytes, without
// environment overrides. Used by tests and the config lint command.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	for _, name := range names {
		if val, ok := os.LookupEnv(name); ok && val != "" {
			v.Set(key, val)
			return
		}
	}
}
