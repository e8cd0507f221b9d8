package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/argon2"

	"sample-app/internal/domain"
)

const saltBytes = 32

// Argon2Params configura el costo de argon2id.
type Argon2Params struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
	KeyLen   uint32
}

// DefaultArgon2Params sigue los valores recomendados para argon2id.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 1, MemoryKB: 64 * 1024, Threads: 4, KeyLen: 32}
}

var ErrSecretMissing = errors.New("password secret not configured")

// CredentialManager deriva y verifica passwords con salt por usuario y un
// secreto de proceso. No guarda estado mutable; es seguro para uso concurrente.
type CredentialManager struct {
	secret []byte
	params Argon2Params
}

var _ domain.Credentials = (*CredentialManager)(nil)

func NewCredentialManager(secret string, params Argon2Params) (*CredentialManager, error) {
	if secret == "" {
		return nil, ErrSecretMissing
	}
	def := DefaultArgon2Params()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.MemoryKB == 0 {
		params.MemoryKB = def.MemoryKB
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	if params.KeyLen == 0 {
		params.KeyLen = def.KeyLen
	}
	return &CredentialManager{secret: []byte(secret), params: params}, nil
}

// GenerateSalt devuelve 32 bytes aleatorios de crypto/rand en base64.
func (m *CredentialManager) GenerateSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

// Encrypt es determinista: argon2id(HMAC-SHA256(secret, plaintext), salt).
func (m *CredentialManager) Encrypt(plaintext, salt string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(plaintext))
	key := argon2.IDKey(mac.Sum(nil), []byte(salt), m.params.Time, m.params.MemoryKB, m.params.Threads, m.params.KeyLen)
	return base64.RawStdEncoding.EncodeToString(key)
}

// SetPassword valida change y, si es valido, rota el salt y guarda el
// password derivado en user. Con violaciones user queda intacto.
func (m *CredentialManager) SetPassword(user *domain.User, change domain.CredentialChange) (domain.Violations, error) {
	if vs := domain.ValidateCredentials(change); !vs.Empty() {
		return vs, nil
	}
	salt, err := m.GenerateSalt()
	if err != nil {
		return nil, err
	}
	user.Salt = salt
	user.EncryptedPassword = m.Encrypt(change.Password, salt)
	return nil, nil
}

func (m *CredentialManager) Verify(user domain.User, candidate string) bool {
	if !user.HasCredentials() {
		return false
	}
	got := m.Encrypt(candidate, user.Salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(user.EncryptedPassword)) == 1
}
