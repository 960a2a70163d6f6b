package webrec

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// ObjectURLPrefix is the path object URLs are served under.
const ObjectURLPrefix = "/blob/"

const objectURLIssuer = "webrec"

// ObjectURLStore hands out URLs for in-memory blobs. Each URL carries an
// HS256 token naming the blob; the store keeps the blob until the URL is
// revoked or the token expires.
type ObjectURLStore struct {
	key []byte
	ttl time.Duration

	mu    sync.RWMutex
	blobs map[string]*objectURLEntry
}

type objectURLEntry struct {
	blob    *Blob
	url     string
	expires time.Time
}

// NewObjectURLStore creates a store signing with a fresh random key.
// ttl <= 0 means URLs never expire.
func NewObjectURLStore(ttl time.Duration) *ObjectURLStore {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("object URL key: %v", err))
	}
	return &ObjectURLStore{
		key:   key,
		ttl:   ttl,
		blobs: make(map[string]*objectURLEntry),
	}
}

func (s *ObjectURLStore) CreateObjectURL(blob *Blob) (string, error) {
	if blob == nil {
		return "", NewRecorderError("Cannot create URL for nil blob", ErrCodeURLInvalid)
	}
	s.sweep()

	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Issuer:   objectURLIssuer,
		Subject:  blob.Type,
		IssuedAt: jwt.NewNumericDate(now),
	}
	var expires time.Time
	if s.ttl > 0 {
		expires = now.Add(s.ttl)
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", WrapError(err, ErrCodeURLInvalid)
	}
	url := ObjectURLPrefix + token

	s.mu.Lock()
	s.blobs[claims.ID] = &objectURLEntry{blob: blob, url: url, expires: expires}
	s.mu.Unlock()
	return url, nil
}

// Resolve verifies a token (or a full object URL) and returns its blob.
func (s *ObjectURLStore) Resolve(token string) (*Blob, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.blobs[claims.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, WrapError(ErrURLRevoked, ErrCodeURLInvalid)
	}
	return entry.blob, nil
}

// RevokeObjectURL releases the blob behind url. Unknown or malformed URLs
// are ignored.
func (s *ObjectURLStore) RevokeObjectURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.blobs {
		if entry.url == url {
			delete(s.blobs, id)
			return
		}
	}
}

// TTL returns the remaining lifetime of url, zero once expired or revoked.
func (s *ObjectURLStore) TTL(url string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.blobs {
		if entry.url != url {
			continue
		}
		if entry.expires.IsZero() {
			return s.ttl
		}
		if left := time.Until(entry.expires); left > 0 {
			return left
		}
		return 0
	}
	return 0
}

// Len is the number of live URLs.
func (s *ObjectURLStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func (s *ObjectURLStore) parse(token string) (*jwt.RegisteredClaims, error) {
	token = strings.TrimPrefix(token, ObjectURLPrefix)
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeURLInvalid)
	}
	if !parsed.Valid || claims.Issuer != objectURLIssuer {
		return nil, NewRecorderError("Invalid object URL", ErrCodeURLInvalid)
	}
	return claims, nil
}

// sweep drops expired entries.
func (s *ObjectURLStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.blobs {
		if !entry.expires.IsZero() && now.After(entry.expires) {
			delete(s.blobs, id)
		}
	}
}
