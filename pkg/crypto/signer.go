package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"strings"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Signer produces hex HMAC-SHA256 signatures over records.
type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(data []byte, signature string) error {
	expected := s.Sign(data)

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		s.logger.Warn("Signature verification failed", slog.String("received", signature))
		return ErrInvalidSignature
	}

	return nil
}

// SignFields signs the fields in order. Each field is length-prefixed, so
// moving a separator from one field into the next changes the signature.
func (s *Signer) SignFields(fields ...string) string {
	return s.Sign(encodeFields(fields))
}

func (s *Signer) VerifyFields(signature string, fields ...string) error {
	return s.Verify(encodeFields(fields), signature)
}

// encodeFields writes each field as "<len>:<field>".
func encodeFields(fields []string) []byte {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	return []byte(b.String())
}
