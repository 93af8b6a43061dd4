package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

var (
	ErrInvalidSession = errors.New("session key is empty")
	ErrInvalidTurn    = errors.New("turn is invalid")
)

const (
	defaultKeyPrefix = "chat:context:"

	DefaultTTL      = 5 * time.Minute
	DefaultMaxTurns = 8
)

var _ contractx.MemoryStore = (*Store)(nil)

// Store keeps the bounded, expiring turn history of each session. Each
// session key maps to one JSON list that is overwritten on every append and
// whose TTL restarts with each write.
//
// Append is a read-modify-write over the cache with no atomic primitive: two
// concurrent writers to the same key race and the last write wins. That is
// acceptable for conversational continuity only.
type Store struct {
	cache     Cache
	keyPrefix string
	ttl       time.Duration
	maxTurns  int
	now       func() time.Time
}

type Option func(*Store)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(cache Cache, opts ...Option) (*Store, error) {
	if cache == nil {
		return nil, errors.New("memory cache is required")
	}
	s := &Store{
		cache:     cache,
		keyPrefix: defaultKeyPrefix,
		ttl:       DefaultTTL,
		maxTurns:  DefaultMaxTurns,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Append adds turn to the session and restarts its expiry window.
func (s *Store) Append(ctx context.Context, sessionKey string, turn contractx.Turn) error {
	key, err := s.cacheKey(sessionKey)
	if err != nil {
		return err
	}
	if !turn.Role.Valid() {
		return fmt.Errorf("%w: role=%q", ErrInvalidTurn, turn.Role)
	}

	turns, err := s.load(ctx, key)
	if err != nil {
		return err
	}

	if turn.Timestamp <= 0 {
		turn.Timestamp = s.now().UnixMilli()
	}
	if n := len(turns); n > 0 && turn.Timestamp < turns[n-1].Timestamp {
		turn.Timestamp = turns[n-1].Timestamp
	}

	turns = append(turns, turn)
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}

	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}
	if err := s.cache.SetEX(ctx, key, payload, s.ttl); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	log.Debug().
		Str("session", sessionKey).
		Str("role", string(turn.Role)).
		Int("turns", len(turns)).
		Time("expires_at", s.now().Add(s.ttl)).
		Msg("memory: turn appended")
	return nil
}

// Recent returns at most the last maxTurns turns, oldest first.
func (s *Store) Recent(ctx context.Context, sessionKey string) ([]contractx.Turn, error) {
	key, err := s.cacheKey(sessionKey)
	if err != nil {
		return nil, err
	}
	turns, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	return turns, nil
}

func (s *Store) load(ctx context.Context, key string) ([]contractx.Turn, error) {
	raw, err := s.cache.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		return []contractx.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var turns []contractx.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("unmarshal turns: %w", err)
	}
	if turns == nil {
		turns = []contractx.Turn{}
	}
	return turns, nil
}

func (s *Store) cacheKey(sessionKey string) (string, error) {
	if strings.TrimSpace(sessionKey) == "" {
		return "", ErrInvalidSession
	}
	return s.keyPrefix + sessionKey, nil
}

// SessionKey keys a session by identity when present, otherwise by a stable
// digest of the caller's network origin.
func SessionKey(identity, origin string) string {
	if id := strings.TrimSpace(identity); id != "" {
		return "user:" + id
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(origin)))
	return "anon:" + hex.EncodeToString(sum[:])[:16]
}
