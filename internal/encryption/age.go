// Package encryption provides archive payload encryption backends.
package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"moltd/internal/config"
	"moltd/internal/daemon"
)

// AgeEncryptor implements daemon.Encryptor using filippo.io/age with X25519
// keys. The public key is stored in plaintext; the private key is encrypted
// with the user's passphrase using age's scrypt-based passphrase encryption.
type AgeEncryptor struct {
	publicKeyPath  string
	privateKeyPath string
}

var _ daemon.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor creates a new AgeEncryptor from configuration.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

// Setup generates a new X25519 key pair, stores the public key in
// plaintext, and writes the private key encrypted with the passphrase. An
// empty passphrase stores the private key in plaintext with 0600 perms.
func (e *AgeEncryptor) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(e.publicKeyPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.privateKeyPath), 0700); err != nil {
		return fmt.Errorf("creating private key directory: %w", err)
	}

	if err := os.WriteFile(e.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	privFile, err := os.OpenFile(e.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	if passphrase == "" {
		if _, err := io.WriteString(privFile, identity.String()+"\n"); err != nil {
			return fmt.Errorf("writing private key: %w", err)
		}
		return nil
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}
	return nil
}

// Encrypt reads plaintext from r and writes age-encrypted ciphertext to w
// using the stored public key.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := e.loadRecipient()
	if err != nil {
		return fmt.Errorf("loading public key: %w", err)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Decrypt reads age ciphertext from r and writes plaintext to w. It
// requires a plaintext private key file; a passphrase-protected key needs
// DecryptWithPassphrase.
func (e *AgeEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	identities, err := e.loadIdentities(nil)
	if err != nil {
		return err
	}
	return ageDecrypt(r, w, identities)
}

// DecryptWithPassphrase unlocks a passphrase-protected private key and
// decrypts r into w.
func (e *AgeEncryptor) DecryptWithPassphrase(passphrase string, r io.Reader, w io.Writer) error {
	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}
	identities, err := e.loadIdentities(scrypt)
	if err != nil {
		return err
	}
	return ageDecrypt(r, w, identities)
}

// IsConfigured reports whether both key files exist.
func (e *AgeEncryptor) IsConfigured() bool {
	if _, err := os.Stat(e.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(e.privateKeyPath); err != nil {
		return false
	}
	return true
}

func (e *AgeEncryptor) loadRecipient() (age.Recipient, error) {
	data, err := os.ReadFile(e.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key file: %w", err)
	}
	recipient, err := age.ParseX25519Recipient(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	return recipient, nil
}

// loadIdentities reads the private key file. When the file itself is age
// ciphertext, unlock must be the scrypt identity for its passphrase.
func (e *AgeEncryptor) loadIdentities(unlock age.Identity) ([]age.Identity, error) {
	data, err := os.ReadFile(e.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}

	if strings.HasPrefix(string(data), "age-encryption.org/") {
		if unlock == nil {
			return nil, fmt.Errorf("private key is passphrase protected")
		}
		var plain bytes.Buffer
		if err := ageDecrypt(bytes.NewReader(data), &plain, []age.Identity{unlock}); err != nil {
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
		data = plain.Bytes()
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return identities, nil
}

func ageDecrypt(r io.Reader, w io.Writer, identities []age.Identity) error {
	decReader, err := age.Decrypt(r, identities...)
	if err != nil {
		return fmt.Errorf("opening encrypted data: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}
