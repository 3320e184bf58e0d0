package redis

// Package redis provides Redis-based adapters for the staff gateway.

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/garagebay/staffgate/internal/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultCredentialPrefix is the key prefix for back-office credentials.
// It must differ from any key the storefront writes.
const DefaultCredentialPrefix = "staff_token:"

// CredentialStore is a Redis-based store holding exactly one back-office
// credential per portal session id.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates a credential store with the default prefix.
func NewCredentialStore(client redis.UniversalClient) *CredentialStore {
	return NewCredentialStoreWithPrefix(client, DefaultCredentialPrefix)
}

// NewCredentialStoreWithPrefix creates a credential store with a custom key prefix.
func NewCredentialStoreWithPrefix(client redis.UniversalClient, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = DefaultCredentialPrefix
	}
	return &CredentialStore{
		client: client,
		prefix: prefix,
	}
}

// Prefix returns the key prefix in use.
func (s *CredentialStore) Prefix() string { return s.prefix }

func (s *CredentialStore) Save(ctx context.Context, sid string, cred domainauth.Credential, ttl time.Duration) error {
	if sid == "" {
		return errors.New("session ID cannot be empty")
	}
	if cred == "" {
		return errors.New("credential cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("credential TTL must be positive")
	}

	if err := s.client.Set(ctx, s.prefix+sid, string(cred), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *CredentialStore) Load(ctx context.Context, sid string) (domainauth.Credential, error) {
	if sid == "" {
		return "", ErrNotFound
	}

	val, err := s.client.Get(ctx, s.prefix+sid).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	if val == "" {
		return "", ErrNotFound
	}
	return domainauth.Credential(val), nil
}

func (s *CredentialStore) Clear(ctx context.Context, sid string) error {
	if sid == "" {
		return nil // Nothing to delete
	}

	if err := s.client.Del(ctx, s.prefix+sid).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// StoredSession describes one persisted credential without exposing it.
type StoredSession struct {
	SID  string
	TTL  time.Duration
	Demo bool
}

const scanBatch = 100

// List returns up to limit persisted sessions ordered by sid; limit <= 0 means
// all. Keys that expire during the scan are skipped.
func (s *CredentialStore) List(ctx context.Context, limit int) ([]StoredSession, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]StoredSession, 0, len(keys))
	for _, key := range keys {
		val, getErr := s.client.Get(ctx, key).Result()
		if errors.Is(getErr, redis.Nil) {
			continue
		}
		if getErr != nil {
			return nil, fmt.Errorf("redis get: %w", getErr)
		}
		ttl, ttlErr := s.client.TTL(ctx, key).Result()
		if ttlErr != nil {
			return nil, fmt.Errorf("redis ttl: %w", ttlErr)
		}
		out = append(out, StoredSession{
			SID:  strings.TrimPrefix(key, s.prefix),
			TTL:  ttl,
			Demo: domainauth.Credential(val).IsDemo(),
		})
	}
	return out, nil
}

// scanKeys collects every key under the prefix. Cluster clients are scanned
// master by master since SCAN only walks one node.
func (s *CredentialStore) scanKeys(ctx context.Context) ([]string, error) {
	var (
		mu   sync.Mutex
		keys []string
	)
	scan := func(ctx context.Context, c redis.Cmdable) error {
		iter := c.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
		for iter.Next(ctx) {
			mu.Lock()
			keys = append(keys, iter.Val())
			mu.Unlock()
		}
		return iter.Err()
	}

	var err error
	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return scan(ctx, node)
		})
	} else {
		err = scan(ctx, s.client)
	}
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// ErrNotFound is returned when no credential is stored for a session.
type notFoundError struct{}

func (notFoundError) Error() string { return "credential not found" }

// Is lets callers match the port-level sentinel without importing this package.
func (notFoundError) Is(target error) bool { return target == ports.ErrCredentialNotFound }

var ErrNotFound error = notFoundError{}
