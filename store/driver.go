package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for database drivers.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	CreateItem(ctx context.Context, create *CreateItem) (*Item, error)
	UpdateItem(ctx context.Context, update *UpdateItem) (*Item, error)
	ListItems(ctx context.Context, find *FindItem) ([]*Item, error)
	DeleteItem(ctx context.Context, delete *DeleteItem) error

	ListOwners(ctx context.Context, ids []int32) ([]*Owner, error)
	ListCircles(ctx context.Context, ids []int32) ([]*Circle, error)
	ListCircleMemberships(ctx context.Context, find *FindCircleMembership) ([]*CircleMembership, error)

	UpsertItemEmbedding(ctx context.Context, embedding *ItemEmbedding) (*ItemEmbedding, error)
	DeleteItemEmbedding(ctx context.Context, itemID int32) error
	FindItemsWithoutEmbedding(ctx context.Context, find *FindItemsWithoutEmbedding) ([]*Item, error)

	ScopedVectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ItemWithScore, error)
}
