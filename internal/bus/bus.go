// Package bus implements the Intel Bus: a Redis-backed, TTL-bounded
// key/value signal exchange that lets loosely coupled analyzers publish and
// consume typed signals without any component calling another's HTTP
// surface directly.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SignalTTL is the fixed expiry for every published signal. Absence of a
// key — because it was never published or because it expired — is a valid
// state and must be handled by callers as "no signal," never as an error.
const SignalTTL = 300 * time.Second

// connectTimeout bounds how long a Publish/Read call will wait on Redis
// before giving up and treating the bus as unavailable.
const connectTimeout = 2 * time.Second

// Signal is the unit of cross-component communication on the bus.
type Signal struct {
	Value      json.RawMessage `json:"value"`
	Source     string          `json:"source_system"`
	Timestamp  int64           `json:"timestamp"`
	Confidence float64         `json:"confidence"`
}

// Bus publishes and reads Intel Signals over Redis.
type Bus struct {
	client *redis.Client
}

// New wraps an existing Redis client. The caller owns the client's
// lifecycle (construction, auth, Close).
func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Publish writes value under key with the given source attribution and
// confidence. Failures are logged at debug level and returned as a non-nil
// error for callers that want to observe them, but the bus itself never
// panics and a Publish failure must never be allowed to stop a producer's
// own work — callers should not treat the error as fatal.
func Publish(ctx context.Context, b *Bus, key string, value interface{}, source string, confidence float64) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	raw, err := json.Marshal(value)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("bus: failed to marshal signal value")
		return fmt.Errorf("marshal signal value: %w", err)
	}

	sig := Signal{
		Value:      raw,
		Source:     source,
		Timestamp:  time.Now().Unix(),
		Confidence: confidence,
	}

	data, err := json.Marshal(sig)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("bus: failed to marshal signal envelope")
		return fmt.Errorf("marshal signal: %w", err)
	}

	if err := b.client.Set(ctx, key, data, SignalTTL).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("bus: publish failed")
		return fmt.Errorf("publish %s: %w", key, err)
	}

	log.Debug().Str("key", key).Str("source", source).Float64("confidence", confidence).Msg("bus: published signal")
	return nil
}

// Read returns the signal stored at key, or ok=false if the key is absent,
// expired, or could not be deserialized. A deserialization failure is
// treated identically to absence — it is never surfaced as an error.
func Read(ctx context.Context, b *Bus, key string) (sig Signal, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	data, err := b.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("key", key).Msg("bus: read failed, treating as no-signal")
		}
		return Signal{}, false
	}

	if err := json.Unmarshal([]byte(data), &sig); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("bus: failed to unmarshal signal, treating as no-signal")
		return Signal{}, false
	}

	return sig, true
}

// ReadValue is a convenience wrapper that reads key and unmarshals its
// Value field into dst. Returns false under the same absence/error
// conditions as Read.
func ReadValue(ctx context.Context, b *Bus, key string, dst interface{}) bool {
	sig, ok := Read(ctx, b, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(sig.Value, dst); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("bus: failed to unmarshal signal value")
		return false
	}
	return true
}

// Publisher and Reader narrow the Bus surface for packages that only need
// one direction, matching the teacher's habit of consuming narrow
// interfaces rather than the full client type.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}, source string, confidence float64) error
}

type Reader interface {
	Read(ctx context.Context, key string) (Signal, bool)
}

// Client adapts *Bus to the Publisher/Reader interfaces above.
type Client struct{ b *Bus }

func NewClient(b *Bus) *Client { return &Client{b: b} }

func (c *Client) Publish(ctx context.Context, key string, value interface{}, source string, confidence float64) error {
	return Publish(ctx, c.b, key, value, source, confidence)
}

func (c *Client) Read(ctx context.Context, key string) (Signal, bool) {
	return Read(ctx, c.b, key)
}
