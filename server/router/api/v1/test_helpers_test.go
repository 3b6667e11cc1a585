package v1

import (
	"context"
	"database/sql"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/circleshare/circleshare/internal/profile"
	"github.com/circleshare/circleshare/store"
)

// fakeDriver is an in-memory store.Driver for handler tests.
type fakeDriver struct {
	nextID      int32
	items       map[int32]*store.Item
	owners      map[int32]*store.Owner
	circles     map[int32]*store.Circle
	memberships []*store.CircleMembership
	embeddings  map[int32]*store.ItemEmbedding

	searchResults []*store.ItemWithScore
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		nextID:     1,
		items:      map[int32]*store.Item{},
		owners:     map[int32]*store.Owner{},
		circles:    map[int32]*store.Circle{},
		embeddings: map[int32]*store.ItemEmbedding{},
	}
}

func newTestService(driver *fakeDriver) (*store.Store, *profile.Profile) {
	p := &profile.Profile{
		Mode:        "dev",
		Driver:      "sqlite",
		ImageURLTTL: 900,
	}
	return store.New(driver, p), p
}

func (f *fakeDriver) GetDB() *sql.DB                  { return nil }
func (f *fakeDriver) Close() error                    { return nil }
func (f *fakeDriver) Migrate(ctx context.Context) error { return nil }

func (f *fakeDriver) CreateItem(ctx context.Context, create *store.CreateItem) (*store.Item, error) {
	now := time.Now().Unix()
	item := &store.Item{
		ID:          f.nextID,
		UID:         shortuuid.New(),
		OwnerID:     create.OwnerID,
		Name:        create.Name,
		Description: create.Description,
		Categories:  create.Categories,
		Tags:        create.Tags,
		ImageRef:    create.ImageRef,
		CreatedTs:   now,
		UpdatedTs:   now,
		CircleIDs:   create.CircleIDs,
	}
	f.items[item.ID] = item
	f.nextID++
	return item, nil
}

func (f *fakeDriver) UpdateItem(ctx context.Context, update *store.UpdateItem) (*store.Item, error) {
	item, ok := f.items[update.ID]
	if !ok {
		return nil, errors.Errorf("item %d not found", update.ID)
	}
	if update.Name != nil {
		item.Name = *update.Name
	}
	if update.Description != nil {
		item.Description = *update.Description
	}
	if update.Categories != nil {
		item.Categories = update.Categories
	}
	if update.Tags != nil {
		item.Tags = update.Tags
	}
	if update.ImageRef != nil {
		item.ImageRef = *update.ImageRef
	}
	if update.CircleIDs != nil {
		item.CircleIDs = update.CircleIDs
	}
	if update.UpdatedTs != nil {
		item.UpdatedTs = *update.UpdatedTs
	}
	return item, nil
}

func (f *fakeDriver) ListItems(ctx context.Context, find *store.FindItem) ([]*store.Item, error) {
	list := []*store.Item{}
	for _, item := range f.items {
		if find.ID != nil && item.ID != *find.ID {
			continue
		}
		if find.UID != nil && item.UID != *find.UID {
			continue
		}
		if find.OwnerID != nil && item.OwnerID != *find.OwnerID {
			continue
		}
		if len(find.IDs) > 0 && !containsID(find.IDs, item.ID) {
			continue
		}
		list = append(list, item)
	}
	return list, nil
}

func (f *fakeDriver) DeleteItem(ctx context.Context, del *store.DeleteItem) error {
	if _, ok := f.items[del.ID]; !ok {
		return errors.Errorf("item %d not found", del.ID)
	}
	delete(f.items, del.ID)
	delete(f.embeddings, del.ID)
	return nil
}

func (f *fakeDriver) ListOwners(ctx context.Context, ids []int32) ([]*store.Owner, error) {
	list := []*store.Owner{}
	for _, id := range ids {
		if owner, ok := f.owners[id]; ok {
			list = append(list, owner)
		}
	}
	return list, nil
}

func (f *fakeDriver) ListCircles(ctx context.Context, ids []int32) ([]*store.Circle, error) {
	list := []*store.Circle{}
	for _, id := range ids {
		if circle, ok := f.circles[id]; ok {
			list = append(list, circle)
		}
	}
	return list, nil
}

func (f *fakeDriver) ListCircleMemberships(ctx context.Context, find *store.FindCircleMembership) ([]*store.CircleMembership, error) {
	list := []*store.CircleMembership{}
	for _, m := range f.memberships {
		if find.UserID != nil && m.UserID != *find.UserID {
			continue
		}
		if find.ActiveOnly && !m.Active {
			continue
		}
		list = append(list, m)
	}
	return list, nil
}

func (f *fakeDriver) UpsertItemEmbedding(ctx context.Context, embedding *store.ItemEmbedding) (*store.ItemEmbedding, error) {
	f.embeddings[embedding.ItemID] = embedding
	return embedding, nil
}

func (f *fakeDriver) DeleteItemEmbedding(ctx context.Context, itemID int32) error {
	delete(f.embeddings, itemID)
	return nil
}

func (f *fakeDriver) FindItemsWithoutEmbedding(ctx context.Context, find *store.FindItemsWithoutEmbedding) ([]*store.Item, error) {
	list := []*store.Item{}
	for _, item := range f.items {
		if item.ImageRef == "" {
			continue
		}
		if _, ok := f.embeddings[item.ID]; !ok {
			list = append(list, item)
		}
	}
	return list, nil
}

func (f *fakeDriver) ScopedVectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ItemWithScore, error) {
	return f.searchResults, nil
}

func containsID(ids []int32, id int32) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
