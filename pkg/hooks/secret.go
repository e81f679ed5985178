package hooks

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/openfed/manage/pkg/model"
)

var bcryptPattern = regexp.MustCompile(`^\$2[ayb]\$.{56}$`)

// SecretHook replaces a plaintext relying-party secret with its bcrypt hash
// before anything is persisted. Already-hashed values pass through unchanged,
// making the hook idempotent; callers that need the plaintext must take it
// from the record returned at creation time.
type SecretHook struct {
	NoopHook
}

// NewSecretHook creates the secret-hashing hook.
func NewSecretHook() *SecretHook {
	return &SecretHook{}
}

func (h *SecretHook) AppliesTo(record *model.MetaData) bool {
	return strings.TrimSuffix(record.Type, model.RevisionSuffix) == model.RelyingParty.String()
}

func (h *SecretHook) PreCreate(_ context.Context, record *model.MetaData) (*model.MetaData, error) {
	return encryptSecret(record)
}

func (h *SecretHook) PreUpdate(_ context.Context, _, updated *model.MetaData) (*model.MetaData, error) {
	return encryptSecret(updated)
}

func encryptSecret(record *model.MetaData) (*model.MetaData, error) {
	fields := record.MetaDataFields()
	secret, ok := fields["secret"].(string)
	if !ok || secret == "" || IsBCryptEncoded(secret) {
		return record, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	fields["secret"] = string(hashed)
	return record, nil
}

// IsBCryptEncoded reports whether a value already carries the one-way-hash
// format.
func IsBCryptEncoded(secret string) bool {
	return bcryptPattern.MatchString(secret)
}
