package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Request headers read by IdempotencyMiddleware.
const (
	HeaderRequestID = "Ax-Request-Id"
	HeaderRequestAt = "Ax-Request-At"
	// HeaderCallerID carries the pre-authenticated customer id.
	HeaderCallerID = "Ax-Caller-Id"
)

const keyPrefix = "loanpay:idemp:"

var (
	uuidPattern  = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[1-5][a-f0-9]{3}-[89ab][a-f0-9]{3}-[a-f0-9]{12}$`)
	hex32Pattern = regexp.MustCompile(`^[a-f0-9]{32}$`)
)

// validRequestID accepts a lowercase UUID (versions 1 to 5) or 32 lowercase
// hex digits. Case matters: the id goes into the storage key verbatim.
func validRequestID(id string) bool {
	return uuidPattern.MatchString(id) || hex32Pattern.MatchString(id)
}

// idempotencyKey scopes a request id to the route and to the caller, so two
// customers reusing an id never share a stored response.
func idempotencyKey(method, route, scope, requestID string) string {
	return keyPrefix + strings.Join([]string{strings.ToLower(method), route, scope, requestID}, ":")
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// parseRequestAt reads epoch seconds, epoch milliseconds or an RFC 3339
// timestamp with a zone. Zoneless timestamps are rejected.
func parseRequestAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing %s", HeaderRequestAt)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	// RFC3339Nano also parses timestamps without a fraction
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be epoch seconds, epoch milliseconds or RFC 3339 with a zone", HeaderRequestAt)
	}
	return t.UTC(), nil
}

// entryStore keeps idempotency entries in Redis as JSON.
type entryStore struct {
	rdb redis.UniversalClient
}

// reserve stores an in-progress entry unless the key is already held.
func (s entryStore) reserve(ctx context.Context, key string, e idempEntry) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	return s.rdb.SetNX(ctx, key, payload, provisionalLockTTL).Result()
}

func (s entryStore) load(ctx context.Context, key string) (idempEntry, error) {
	var e idempEntry
	v, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(v, &e); err != nil {
		return e, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return e, nil
}

// finish replaces the in-progress entry with the recorded response.
func (s entryStore) finish(ctx context.Context, key string, e idempEntry, ttl time.Duration) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, payload, ttl).Err()
}

func (s entryStore) release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
