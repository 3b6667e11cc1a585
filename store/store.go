// Package store provides database access to all raw objects.
package store

import (
	"context"

	"github.com/circleshare/circleshare/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateItem(ctx context.Context, create *CreateItem) (*Item, error) {
	return s.driver.CreateItem(ctx, create)
}

func (s *Store) UpdateItem(ctx context.Context, update *UpdateItem) (*Item, error) {
	return s.driver.UpdateItem(ctx, update)
}

func (s *Store) ListItems(ctx context.Context, find *FindItem) ([]*Item, error) {
	return s.driver.ListItems(ctx, find)
}

// GetItem returns a single item or nil when it does not exist.
func (s *Store) GetItem(ctx context.Context, find *FindItem) (*Item, error) {
	list, err := s.driver.ListItems(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) DeleteItem(ctx context.Context, delete *DeleteItem) error {
	return s.driver.DeleteItem(ctx, delete)
}

func (s *Store) ListOwners(ctx context.Context, ids []int32) ([]*Owner, error) {
	return s.driver.ListOwners(ctx, ids)
}

func (s *Store) ListCircles(ctx context.Context, ids []int32) ([]*Circle, error) {
	return s.driver.ListCircles(ctx, ids)
}

func (s *Store) ListCircleMemberships(ctx context.Context, find *FindCircleMembership) ([]*CircleMembership, error) {
	return s.driver.ListCircleMemberships(ctx, find)
}

func (s *Store) UpsertItemEmbedding(ctx context.Context, embedding *ItemEmbedding) (*ItemEmbedding, error) {
	return s.driver.UpsertItemEmbedding(ctx, embedding)
}

func (s *Store) DeleteItemEmbedding(ctx context.Context, itemID int32) error {
	return s.driver.DeleteItemEmbedding(ctx, itemID)
}

func (s *Store) FindItemsWithoutEmbedding(ctx context.Context, find *FindItemsWithoutEmbedding) ([]*Item, error) {
	return s.driver.FindItemsWithoutEmbedding(ctx, find)
}

// ScopedVectorSearch performs circle-scoped vector similarity search on items.
func (s *Store) ScopedVectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ItemWithScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.ScopedVectorSearch(ctx, opts)
}
