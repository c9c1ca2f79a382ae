package twofa

import (
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload" // Load .env file automatically

	"github.com/dmitrymomot/twofa/pkg/otp"
)

type Config struct {
	// ServiceName is the default issuer shown in the authenticator when the
	// caller does not supply one per enrollment.
	ServiceName string `env:"TWOFA_SERVICE_NAME" envDefault:"twofa"`

	// AuthenticatorURL is the externally hosted authenticator application
	// the deep link points at.
	AuthenticatorURL string `env:"TWOFA_AUTHENTICATOR_URL,required"`

	// CallbackURL is this system's redirect-callback endpoint; the
	// registration token is appended as a query parameter per enrollment.
	CallbackURL string `env:"TWOFA_CALLBACK_URL,required"`

	// ConfirmationURL is the client-rendered confirmation page the callback
	// handler redirects to with the result payload.
	ConfirmationURL string `env:"TWOFA_CONFIRMATION_URL,required"`

	TokenTTL        time.Duration `env:"TWOFA_TOKEN_TTL" envDefault:"24h"`       // Fixed enrollment token lifetime
	FreshnessWindow time.Duration `env:"TWOFA_FRESHNESS_WINDOW" envDefault:"60s"` // Max callback timestamp age, replay defense

	Digits int `env:"TWOFA_TOTP_DIGITS" envDefault:"6"` // Code length, applied uniformly
	Period int `env:"TWOFA_TOTP_PERIOD" envDefault:"30"` // TOTP step in seconds
	Skew   int `env:"TWOFA_TOTP_SKEW" envDefault:"1"`    // Steps tolerated on each side

	RateLimit  int           `env:"TWOFA_RATE_LIMIT" envDefault:"5"`    // Verification attempts per window
	RateWindow time.Duration `env:"TWOFA_RATE_WINDOW" envDefault:"15m"` // Sliding window duration
}

// LoadConfig reads the module configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// otpConfig maps the module configuration onto code derivation parameters.
func (c Config) otpConfig() otp.Config {
	return otp.Config{
		Digits: c.Digits,
		Period: c.Period,
		Skew:   c.Skew,
	}
}

// withDefaults fills zero values so a hand-built Config behaves like the
// env-loaded one. Required URLs are validated by the constructors that need
// them, not here.
func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "twofa"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.FreshnessWindow == 0 {
		c.FreshnessWindow = 60 * time.Second
	}
	if c.Digits == 0 {
		c.Digits = otp.DefaultDigits
	}
	if c.Period == 0 {
		c.Period = otp.DefaultPeriod
	}
	if c.Skew == 0 {
		c.Skew = otp.DefaultSkew
	}
	if c.RateLimit == 0 {
		c.RateLimit = 5
	}
	if c.RateWindow == 0 {
		c.RateWindow = 15 * time.Minute
	}
	return c
}
