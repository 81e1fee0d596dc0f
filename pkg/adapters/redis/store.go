// Package redis implements ports.SectionStore on Redis. Each section is a
// JSON document under a prefixed key, with a set holding the known IDs so
// LoadAll needs no SCAN.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/railyard/railyard/pkg/domain"
)

const defaultPrefix = "railyard:section:"

// Store is a Redis-backed SectionStore.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a store over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(sectionID string) string { return s.prefix + sectionID }
func (s *Store) indexKey() string            { return s.prefix + "index" }

// LoadAll fetches every indexed section document.
func (s *Store) LoadAll(ctx context.Context) ([]*domain.Section, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read section index: %w", err)
	}

	sections := make([]*domain.Section, 0, len(ids))
	for _, id := range ids {
		val, err := s.client.Get(ctx, s.key(id)).Result()
		if err == backend.Nil {
			// Index entry without a document: skip, it will be
			// rewritten on the next save.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load section %q: %w", id, err)
		}
		var sec domain.Section
		if err := json.Unmarshal([]byte(val), &sec); err != nil {
			return nil, fmt.Errorf("failed to decode section %q: %w", id, err)
		}
		sections = append(sections, &sec)
	}
	return sections, nil
}

// Save replaces the document and indexes its ID in one pipeline.
func (s *Store) Save(ctx context.Context, section *domain.Section) error {
	data, err := json.Marshal(section)
	if err != nil {
		return fmt.Errorf("failed to marshal section: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(section.ID), data, 0)
	pipe.SAdd(ctx, s.indexKey(), section.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Deactivate toggles the node flag with a read-modify-write of the
// document. Last write wins, which matches the store's overall semantics.
func (s *Store) Deactivate(ctx context.Context, sectionID, nodeID string) error {
	val, err := s.client.Get(ctx, s.key(sectionID)).Result()
	if err == backend.Nil {
		return fmt.Errorf("section %q: %w", sectionID, domain.ErrSectionNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load section %q: %w", sectionID, err)
	}

	var sec domain.Section
	if err := json.Unmarshal([]byte(val), &sec); err != nil {
		return fmt.Errorf("failed to decode section %q: %w", sectionID, err)
	}
	node := sec.Node(nodeID)
	if node == nil {
		return fmt.Errorf("node %q: %w", nodeID, domain.ErrNodeNotFound)
	}
	node.IsDeactivated = !node.IsDeactivated

	return s.Save(ctx, &sec)
}
