package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/questlog/identity/oauthmodel"
)

// RS256 is the only signing algorithm the key set issues.
const RS256 = "RS256"

// SigningKey is one kid-tagged RSA keypair. Exactly one key in a set is
// active for signing; retired keys stay configured so tokens signed before a
// rotation remain verifiable until the key is removed from configuration.
type SigningKey struct {
	KID        string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	Active     bool
}

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a single published RSA public key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// GenerateSigningKey generates a new RSA keypair for RS256 signing.
func GenerateSigningKey(kid string, bits int, active bool) (*SigningKey, error) {
	if bits < 2048 {
		bits = 2048
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key")
	}
	return &SigningKey{
		KID:        kid,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Active:     active,
	}, nil
}

// LoadSigningKeyPEM loads a PKCS#1 RSA private key from PEM.
func LoadSigningKeyPEM(kid string, pemData []byte, active bool) (*SigningKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse RSA private key")
	}
	return &SigningKey{
		KID:        kid,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Active:     active,
	}, nil
}

// ExportPrivateKeyPEM exports the RSA private key as PEM.
func (k *SigningKey) ExportPrivateKeyPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(k.PrivateKey),
	}))
}

// ToJWK converts the key's public half to JWK form.
func (k *SigningKey) ToJWK() JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: k.KID,
		Alg: RS256,
		N:   base64.RawURLEncoding.EncodeToString(k.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.PublicKey.E)).Bytes()),
	}
}

// KeySet holds the configured signing keys. It is an explicit object loaded
// once at startup and replaced wholesale through Reload, never mutated
// piecemeal, so tests and config reloads get a clean swap.
type KeySet struct {
	lock    sync.RWMutex
	keys    []*SigningKey
	active  *SigningKey
	nowFunc func() time.Time
}

// NewKeySet builds a key set from the configured keys. The key flagged
// Active signs new tokens; if none is flagged, the first key signs.
func NewKeySet(keys ...*SigningKey) (*KeySet, error) {
	ks := &KeySet{nowFunc: time.Now}
	if err := ks.Reload(keys...); err != nil {
		return nil, err
	}
	return ks, nil
}

// WithNowFunc sets the clock used to validate time-based claims (primarily
// for testing) and returns the key set for chaining.
func (ks *KeySet) WithNowFunc(now func() time.Time) *KeySet {
	ks.lock.Lock()
	defer ks.lock.Unlock()
	ks.nowFunc = now
	return ks
}

// Reload replaces the full key configuration.
func (ks *KeySet) Reload(keys ...*SigningKey) error {
	if len(keys) == 0 {
		return errors.New("[KeySet.Reload] at least one signing key is required")
	}

	var active *SigningKey
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key.KID]; dup {
			return errors.Errorf("[KeySet.Reload] duplicate kid %q", key.KID)
		}
		seen[key.KID] = struct{}{}
		if key.Active {
			if active != nil {
				return errors.Errorf("[KeySet.Reload] multiple active keys (%q, %q)", active.KID, key.KID)
			}
			active = key
		}
	}
	if active == nil {
		active = keys[0]
	}

	ks.lock.Lock()
	defer ks.lock.Unlock()
	ks.keys = keys
	ks.active = active
	return nil
}

// ActiveKID returns the kid new tokens will be signed with.
func (ks *KeySet) ActiveKID() string {
	ks.lock.RLock()
	defer ks.lock.RUnlock()
	return ks.active.KID
}

// Sign creates a signed RS256 JWT with the active key's kid in the header.
func (ks *KeySet) Sign(claims jwt.MapClaims) (string, error) {
	ks.lock.RLock()
	key := ks.active
	ks.lock.RUnlock()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = key.KID

	signed, err := tok.SignedString(key.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[KeySet.Sign] SignedString")
	}
	return signed, nil
}

// Verify parses and validates a token against the full configured set, not
// just the active key. The unverified header's kid selects the public key;
// a missing kid falls back to the default (first configured) key. This keeps
// tokens signed before a rotation verifiable until the retired key is
// dropped from configuration.
func (ks *KeySet) Verify(rawToken string) (jwt.MapClaims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(oauthmodel.ErrInvalidToken, "[KeySet.Verify] malformed token")
	}

	var key *SigningKey
	if kid, ok := unverified.Header["kid"].(string); ok && kid != "" {
		key = ks.lookup(kid)
		if key == nil {
			return nil, errors.Wrapf(oauthmodel.ErrUnknownKey, "[KeySet.Verify] kid %q", kid)
		}
	} else {
		key = ks.defaultKey()
	}

	ks.lock.RLock()
	now := ks.nowFunc
	ks.lock.RUnlock()
	if now == nil {
		now = time.Now
	}

	parsed, err := jwt.Parse(rawToken, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return key.PublicKey, nil
	}, jwt.WithTimeFunc(now))
	if err != nil || !parsed.Valid {
		return nil, errors.Wrap(oauthmodel.ErrInvalidToken, "[KeySet.Verify] signature or claims invalid")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(oauthmodel.ErrInvalidToken, "[KeySet.Verify] unexpected claims type")
	}
	return claims, nil
}

// JWKS publishes every configured public key, active and retired alike.
func (ks *KeySet) JWKS() *JWKS {
	ks.lock.RLock()
	defer ks.lock.RUnlock()

	set := &JWKS{Keys: make([]JWK, 0, len(ks.keys))}
	for _, key := range ks.keys {
		set.Keys = append(set.Keys, key.ToJWK())
	}
	return set
}

func (ks *KeySet) lookup(kid string) *SigningKey {
	ks.lock.RLock()
	defer ks.lock.RUnlock()
	for _, key := range ks.keys {
		if key.KID == kid {
			return key
		}
	}
	return nil
}

func (ks *KeySet) defaultKey() *SigningKey {
	ks.lock.RLock()
	defer ks.lock.RUnlock()
	return ks.keys[0]
}
