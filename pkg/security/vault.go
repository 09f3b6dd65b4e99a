package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"tenant-gateway/pkg/config"
	"tenant-gateway/pkg/errutil"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"
)

// LegacySalt is the constant salt used by deployments created before a
// per-deployment salt was configured.
const LegacySalt = "salt"

const (
	keyLen = 32
	ivLen  = aes.BlockSize

	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

var Module = fx.Module("security", fx.Provide(ProvideVault))

// Vault encrypts tenant database secrets with AES-256-CBC. Blobs are
// "<ivHex>:<cipherHex>".
type Vault struct {
	key  []byte
	rand io.Reader
}

func NewVault(secret string, salt []byte) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("vault secret must not be empty")
	}
	if len(salt) == 0 {
		return nil, errors.New("vault salt must not be empty")
	}

	key, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	return &Vault{key: key, rand: rand.Reader}, nil
}

func ProvideVault(cfg *config.Config) (*Vault, error) {
	salt := cfg.Security.KDFSalt
	if salt == "" {
		zap.L().Warn("SECURITY.KDF_SALT not set, falling back to legacy constant salt")
		salt = LegacySalt
	}
	return NewVault(cfg.Security.SecretKey, []byte(salt))
}

// GenerateSalt returns n random bytes hex encoded, suitable for SECURITY.KDF_SALT.
func GenerateSalt(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (v *Vault) Encrypt(plain string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", &errutil.CryptoError{Op: "cipher init", Err: err}
	}

	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(v.rand, iv); err != nil {
		return "", &errutil.CryptoError{Op: "iv gen", Err: err}
	}

	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (v *Vault) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", &errutil.CryptoError{Op: "malformed blob"}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", &errutil.CryptoError{Op: "invalid iv hex", Err: err}
	}
	if len(iv) != ivLen {
		return "", &errutil.CryptoError{Op: fmt.Sprintf("iv must be %d bytes, got %d", ivLen, len(iv))}
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", &errutil.CryptoError{Op: "invalid ciphertext hex", Err: err}
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", &errutil.CryptoError{Op: "ciphertext is not a multiple of the block size"}
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", &errutil.CryptoError{Op: "cipher init", Err: err}
	}

	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	// a wrong key almost always surfaces here as bad padding
	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", &errutil.CryptoError{Op: "decrypt", Err: err}
	}

	return string(unpadded), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, errors.New("invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
