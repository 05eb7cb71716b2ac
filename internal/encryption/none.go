package encryption

import (
	"io"

	"moltd/internal/daemon"
)

// NoneEncryptor passes data through unchanged.
type NoneEncryptor struct{}

var _ daemon.Encryptor = (*NoneEncryptor)(nil)

func NewNoneEncryptor() *NoneEncryptor {
	return &NoneEncryptor{}
}

func (NoneEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}

func (NoneEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	_, err := io.Copy(w, r)
	return err
}
