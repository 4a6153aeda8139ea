package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config is populated by kong from flags and the environment. cmd/storefront
// loads .env first so that both sources agree.
type Config struct {
	ListenAddr string `help:"Address the local API listens on." default:":8090" env:"LISTEN_ADDR"`
	LogLevel   string `help:"Log level." default:"info" env:"LOG_LEVEL"`
	LogDev     bool   `help:"Human readable logs." env:"LOG_DEV"`

	APIBackend  string        `help:"Base URL of the storefront service." required:"" env:"API_BACKEND"`
	HTTPTimeout time.Duration `help:"Timeout for remote calls." default:"10s" env:"HTTP_TIMEOUT"`

	GeocodeURL      string `help:"Geocoding endpoint." default:"https://maps.googleapis.com/maps/api/geocode/json" env:"GEOCODE_URL"`
	GeocodeKey      string `help:"Geocoding API key." env:"GOOGLE_MAPS_API_KEY"`
	GeocodeLanguage string `help:"Geocoding result language." default:"th" env:"GEOCODE_LANGUAGE"`
	Country         string `help:"Country appended to geocode queries and orders." default:"Thailand" env:"SHIPPING_COUNTRY"`
	AddressTable    string `help:"JSON address reference table. Empty uses the bundled sample." type:"path" env:"ADDRESS_TABLE"`

	WeightStep            float64 `help:"Increment for goods sold by weight." default:"0.5" env:"WEIGHT_STEP"`
	FreeShippingThreshold float64 `help:"Basket total at which delivery is free. Zero disables." default:"0" env:"FREE_SHIPPING_THRESHOLD"`
	PaymentMethod         string  `help:"Payment method sent with orders." default:"Thai QR PromptPay" env:"PAYMENT_METHOD"`

	Storage       string `help:"Persisted store backend." enum:"memory,redis,postgres" default:"memory" env:"STORAGE"`
	RedisAddr     string `help:"Redis address." default:"localhost:6379" env:"REDIS_ADDR"`
	RedisPassword string `help:"Redis password." env:"REDIS_PASSWORD"`
	RedisDB       int    `help:"Redis database." default:"0" env:"REDIS_DB"`
	PGConnString  string `help:"Postgres connection string." env:"PG_CONNSTRING"`
}

func (c *Config) Step() decimal.Decimal {
	return decimal.NewFromFloat(c.WeightStep)
}

func (c *Config) FreeShipping() decimal.Decimal {
	return decimal.NewFromFloat(c.FreeShippingThreshold)
}
