package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrNotFound indicates no editing session exists for the proposal.
var ErrNotFound = errors.New("proposal session not found")

const sessionKeyPrefix = "polis:session:"

// Store keeps editing sessions as JSON documents in Redis so the API and
// the calculation worker see the same state. Sessions are transient; the
// system of record for issued proposals lives elsewhere.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func (s Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

func sessionKey(proposalNo string) string {
	return sessionKeyPrefix + proposalNo
}

// Get loads a session document.
func (s Store) Get(ctx context.Context, proposalNo string) (*Session, error) {
	if s.R == nil {
		return nil, errors.New("session store not configured")
	}
	raw, err := s.R.Get(ctx, sessionKey(proposalNo)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", proposalNo, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", proposalNo, err)
	}
	return &sess, nil
}

// Save writes the session document back, refreshing its TTL.
func (s Store) Save(ctx context.Context, sess *Session) error {
	if s.R == nil {
		return errors.New("session store not configured")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ProposalNo, err)
	}
	if err := s.R.Set(ctx, sessionKey(sess.ProposalNo), raw, s.ttl()).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ProposalNo, err)
	}
	return nil
}

// Exists reports whether a session document is present.
func (s Store) Exists(ctx context.Context, proposalNo string) (bool, error) {
	if s.R == nil {
		return false, errors.New("session store not configured")
	}
	n, err := s.R.Exists(ctx, sessionKey(proposalNo)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
