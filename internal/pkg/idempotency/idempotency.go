// Package idempotency records the lifecycle of client-keyed operations in
// Redis so a replayed request can be told apart from a new one.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidState is returned when a stored key holds an unknown value.
var ErrInvalidState = errors.New("invalid state")

type State string

const (
	StateNone       State = "none"        // operation can proceed
	StateInProgress State = "in_progress" // operation already in progress
	StateCompleted  State = "completed"   // operation already completed
	StateFailed     State = "failed"      // operation stopped part way
	StateError      State = "error"       // tracker error
)

func (s State) String() string {
	return string(s)
}

// Idempotency tracks the lifecycle of operations keyed by a client token.
type Idempotency interface {
	Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error)
	MarkCompleted(ctx context.Context, key string, ttl time.Duration) error
	MarkFailed(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

const keyPrefix = "idempotency:"

// acquireScript claims KEYS[1] when it is free and returns "" on success,
// otherwise the value already stored. ARGV[2] is the lock ttl in
// milliseconds; zero means no expiry.
var acquireScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if prev then
  return prev
end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return ''
`)

// StateTracker is the Redis implementation of Idempotency.
type StateTracker struct {
	client *redis.Client
}

func New(client *redis.Client) *StateTracker {
	return &StateTracker{client: client}
}

// Acquire tries to start an operation. StateNone means the caller now holds
// the key; any other state reports what a previous holder left behind.
func (s *StateTracker) Acquire(ctx context.Context, key string, lockDuration time.Duration) (State, error) {
	prev, err := acquireScript.Run(ctx, s.client, []string{keyPrefix + key},
		StateInProgress.String(), lockDuration.Milliseconds()).Text()
	if err != nil {
		return StateError, err
	}

	switch State(prev) {
	case "":
		return StateNone, nil
	case StateInProgress, StateCompleted, StateFailed:
		return State(prev), nil
	default:
		return StateError, ErrInvalidState
	}
}

func (s *StateTracker) MarkCompleted(ctx context.Context, key string, ttl time.Duration) error {
	return s.set(ctx, key, StateCompleted, ttl)
}

func (s *StateTracker) MarkFailed(ctx context.Context, key string, ttl time.Duration) error {
	return s.set(ctx, key, StateFailed, ttl)
}

// Release drops the key so the operation can be attempted again.
func (s *StateTracker) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}

func (s *StateTracker) set(ctx context.Context, key string, state State, ttl time.Duration) error {
	return s.client.Set(ctx, keyPrefix+key, state.String(), ttl).Err()
}
