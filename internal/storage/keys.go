package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// ResourceKind selects the object-storage path layout for a derived key.
type ResourceKind string

const (
	KindMediaSegment ResourceKind = "media"
	KindCover        ResourceKind = "cover"
)

var (
	// ErrInvalidResourceKind is returned for an unrecognized resource kind.
	ErrInvalidResourceKind = errors.New("invalid resource kind")
	// ErrMissingEpisodeIndex is returned when a media segment key is
	// requested without an episode index.
	ErrMissingEpisodeIndex = errors.New("media segment key requires an episode index >= 1")
)

// KeyDeriver produces deterministic object-storage keys from record
// identity. The same (title, id, kind, episode) always yields the same key
// across processes and restarts, which is what makes re-uploads idempotent:
// an existence check on the derived key short-circuits work already done.
//
// The opaque path segments are AES-256-CBC over the identity string with a
// key and IV fixed by the configured secret. The fixed IV is deliberate:
// determinism is the load-bearing property here, not secrecy.
type KeyDeriver struct {
	aesKey []byte
	iv     []byte
	prefix string
}

// NewKeyDeriver builds a deriver from the static secret and key prefix.
func NewKeyDeriver(secret, prefix string) *KeyDeriver {
	keySum := sha256.Sum256([]byte(secret))
	ivSum := md5.Sum([]byte(secret))
	return &KeyDeriver{
		aesKey: keySum[:],
		iv:     ivSum[:],
		prefix: prefix,
	}
}

// Derive returns the storage key for a record's resource. The episode index
// is 1-based and only meaningful for KindMediaSegment; pass 0 for covers.
//
// Layout:
//
//	cover:  <prefix>/<id>/<E(title|id)>/cover.jpg
//	media:  <prefix>/<id>/<E(title|id)>/<episode>/<E(title|id|episode)>
func (d *KeyDeriver) Derive(title, externalID string, kind ResourceKind, episode int) (string, error) {
	// NFC so byte-different encodings of one title address one object.
	title = norm.NFC.String(title)

	vodSeg, err := d.encrypt(title + "|" + externalID)
	if err != nil {
		return "", err
	}

	switch kind {
	case KindCover:
		return fmt.Sprintf("%s/%s/%s/cover.jpg", d.prefix, externalID, vodSeg), nil
	case KindMediaSegment:
		if episode < 1 {
			return "", ErrMissingEpisodeIndex
		}
		epSeg, err := d.encrypt(fmt.Sprintf("%s|%s|%d", title, externalID, episode))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s/%s/%s/%d/%s", d.prefix, externalID, vodSeg, episode, epSeg), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidResourceKind, kind)
	}
}

func (d *KeyDeriver) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(d.aesKey)
	if err != nil {
		return "", fmt.Errorf("failed to build cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, d.iv).CryptBlocks(out, padded)

	return base64.RawURLEncoding.EncodeToString(out), nil
}

// decrypt reverses encrypt. Only used to sanity-check derived segments.
func (d *KeyDeriver) decrypt(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode segment: %w", err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", errors.New("segment is not a whole number of cipher blocks")
	}

	block, err := aes.NewCipher(d.aesKey)
	if err != nil {
		return "", fmt.Errorf("failed to build cipher: %w", err)
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, d.iv).CryptBlocks(out, raw)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen < 1 || padLen > blockSize || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
