package jwks

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// VerificationKey is a public key published in the key set. Algorithm and Use hold the
// published "alg" and "use" members and are empty when the document omits them.
type VerificationKey struct {
	KeyID     string
	Algorithm string
	Use       string
	PublicKey crypto.PublicKey
}

// KeySet is an immutable, ordered collection of verification keys indexed by key id.
type KeySet struct {
	keys  []*VerificationKey
	byKID map[string]*VerificationKey
}

// NewKeySet builds a key set from keys. Key ids must be unique and non-empty.
func NewKeySet(keys ...*VerificationKey) (*KeySet, error) {
	set := &KeySet{
		keys:  make([]*VerificationKey, 0, len(keys)),
		byKID: make(map[string]*VerificationKey, len(keys)),
	}
	for _, key := range keys {
		if key == nil || key.KeyID == "" {
			return nil, fmt.Errorf("%w: key without kid", ErrMalformedKeySet)
		}
		if _, dup := set.byKID[key.KeyID]; dup {
			return nil, fmt.Errorf("%w: duplicate kid %q", ErrMalformedKeySet, key.KeyID)
		}
		set.keys = append(set.keys, key)
		set.byKID[key.KeyID] = key
	}
	return set, nil
}

// ParseKeySet converts a JWKS document into a KeySet. Entries without a kid are skipped;
// private or symmetric key material makes the whole document invalid.
func ParseKeySet(doc []byte) (*KeySet, error) {
	parsed, err := jwk.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeySet, err)
	}

	keys := make([]*VerificationKey, 0, parsed.Len())
	for i := 0; i < parsed.Len(); i++ {
		key, ok := parsed.Key(i)
		if !ok || key.KeyID() == "" {
			continue
		}

		publicKey, err := exportPublicKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: kid %q: %v", ErrMalformedKeySet, key.KeyID(), err)
		}

		keys = append(keys, &VerificationKey{
			KeyID:     key.KeyID(),
			Algorithm: key.Algorithm().String(),
			Use:       key.KeyUsage(),
			PublicKey: publicKey,
		})
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no usable keys", ErrMalformedKeySet)
	}

	return NewKeySet(keys...)
}

func exportPublicKey(key jwk.Key) (crypto.PublicKey, error) {
	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("exporting key: %w", err)
	}

	switch pk := raw.(type) {
	case *rsa.PublicKey:
		return pk, nil
	case *ecdsa.PublicKey:
		return pk, nil
	case ed25519.PublicKey:
		return pk, nil
	default:
		return nil, fmt.Errorf("unsupported key material %T (only public keys are accepted)", raw)
	}
}

// Lookup returns the key with the given kid.
func (s *KeySet) Lookup(kid string) (*VerificationKey, bool) {
	if s == nil {
		return nil, false
	}
	key, ok := s.byKID[kid]
	return key, ok
}

// Len returns the number of keys in the set
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KeyIDs returns the key ids in document order.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for _, key := range s.keys {
		ids = append(ids, key.KeyID)
	}
	return ids
}
