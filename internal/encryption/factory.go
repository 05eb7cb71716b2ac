package encryption

import (
	"fmt"

	"moltd/internal/config"
	"moltd/internal/daemon"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (daemon.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return NewNoneEncryptor(), nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
