package secrets

import (
	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload" // Load .env file automatically
)

type Config struct {
	MasterKey string `env:"TWOFA_MASTER_KEY,required"` // Base64-encoded 32-byte key for secrets at rest
}

// LoadCipher reads the master key from the environment and builds a Cipher.
// An absent or malformed key fails here, at startup, so the process can never
// silently operate without encryption.
func LoadCipher() (*Cipher, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	key, err := DecodeKey(cfg.MasterKey)
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}
