package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/circleshare/circleshare/internal/profile"
	"github.com/circleshare/circleshare/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := NewDB(&profile.Profile{
		Driver:              "sqlite",
		DSN:                 ":memory:",
		EmbeddingModel:      "jina-clip-v2",
		EmbeddingDimensions: 3,
	})
	require.NoError(t, err)
	require.NoError(t, d.Migrate(context.Background()))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func seedUser(t *testing.T, d *DB, id int32, username string) {
	t.Helper()
	_, err := d.db.Exec(`INSERT INTO app_user (id, username) VALUES (?, ?)`, id, username)
	require.NoError(t, err)
}

func seedMembership(t *testing.T, d *DB, userID, circleID int32, active bool) {
	t.Helper()
	activeInt := 0
	if active {
		activeInt = 1
	}
	_, err := d.db.Exec(`INSERT INTO circle_member (user_id, circle_id, active) VALUES (?, ?, ?)`,
		userID, circleID, activeInt)
	require.NoError(t, err)
}

func seedEmbedding(t *testing.T, d *DB, itemID int32, vec []float32) {
	t.Helper()
	_, err := d.UpsertItemEmbedding(context.Background(), &store.ItemEmbedding{
		ItemID:    itemID,
		Model:     "jina-clip-v2",
		Embedding: vec,
	})
	require.NoError(t, err)
}

func TestVectorBLOBRoundTrip(t *testing.T) {
	d := &DB{dim: 3}

	blob, err := d.vectorToBLOB([]float32{0.1, -2.5, 42})
	require.NoError(t, err)
	require.Len(t, blob, 12)

	vec, err := d.blobToVector(blob)
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, -2.5, 42}, vec)

	_, err = d.vectorToBLOB([]float32{1, 2})
	require.ErrorContains(t, err, "dimension")

	_, err = d.blobToVector(blob[:8])
	require.ErrorContains(t, err, "length")
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	require.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	require.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	require.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 0}))
}

func TestItemCRUD(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	item, err := d.CreateItem(ctx, &store.CreateItem{
		OwnerID:    10,
		Name:       "Camping Tent",
		Categories: []string{"outdoor"},
		Tags:       []string{"camping", "4-person"},
		ImageRef:   "https://cdn.example.com/tent.jpg",
		CircleIDs:  []int32{5, 6},
	})
	require.NoError(t, err)
	require.NotZero(t, item.ID)
	require.NotEmpty(t, item.UID)

	t.Run("list by owner", func(t *testing.T) {
		ownerID := int32(10)
		list, err := d.ListItems(ctx, &store.FindItem{OwnerID: &ownerID})
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, []int32{5, 6}, list[0].CircleIDs)
		require.Equal(t, []string{"camping", "4-person"}, list[0].Tags)
	})

	t.Run("update replaces circles wholesale", func(t *testing.T) {
		description := "sleeps four"
		updated, err := d.UpdateItem(ctx, &store.UpdateItem{
			ID:          item.ID,
			Description: &description,
			CircleIDs:   []int32{6},
		})
		require.NoError(t, err)
		require.Equal(t, "sleeps four", updated.Description)
		require.Equal(t, []int32{6}, updated.CircleIDs)
		require.Equal(t, "Camping Tent", updated.Name)
	})

	t.Run("delete cascades to embedding", func(t *testing.T) {
		seedEmbedding(t, d, item.ID, []float32{1, 0, 0})
		require.NoError(t, d.DeleteItem(ctx, &store.DeleteItem{ID: item.ID}))

		var count int
		require.NoError(t, d.db.QueryRow(`SELECT COUNT(*) FROM item_embedding WHERE item_id = ?`, item.ID).Scan(&count))
		require.Zero(t, count)

		require.Error(t, d.DeleteItem(ctx, &store.DeleteItem{ID: item.ID}))
	})
}

func TestListItemsBatchesCircleAssociations(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	tent, err := d.CreateItem(ctx, &store.CreateItem{OwnerID: 10, Name: "Camping Tent", CircleIDs: []int32{5, 6}})
	require.NoError(t, err)
	drill, err := d.CreateItem(ctx, &store.CreateItem{OwnerID: 10, Name: "Power Drill", CircleIDs: []int32{7}})
	require.NoError(t, err)

	ownerID := int32(10)
	list, err := d.ListItems(ctx, &store.FindItem{OwnerID: &ownerID})
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[int32][]int32{}
	for _, item := range list {
		byID[item.ID] = item.CircleIDs
	}
	require.Equal(t, []int32{5, 6}, byID[tent.ID])
	require.Equal(t, []int32{7}, byID[drill.ID])
}

func TestListCircles(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	_, err := d.db.Exec(`INSERT INTO circle (id, name) VALUES (5, 'Garden Club'), (6, 'Neighbors')`)
	require.NoError(t, err)

	circles, err := d.ListCircles(ctx, []int32{5, 9})
	require.NoError(t, err)
	require.Len(t, circles, 1)
	require.Equal(t, "Garden Club", circles[0].Name)

	empty, err := d.ListCircles(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestListCircleMemberships(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	seedMembership(t, d, 1, 5, true)
	seedMembership(t, d, 1, 6, false)
	seedMembership(t, d, 2, 5, true)

	userID := int32(1)
	active, err := d.ListCircleMemberships(ctx, &store.FindCircleMembership{UserID: &userID, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, int32(5), active[0].CircleID)

	all, err := d.ListCircleMemberships(ctx, &store.FindCircleMembership{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestScopedVectorSearch(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	seedUser(t, d, 10, "alice")

	mustCreate := func(name string, circleIDs []int32) *store.Item {
		item, err := d.CreateItem(ctx, &store.CreateItem{
			OwnerID:   10,
			Name:      name,
			ImageRef:  "https://cdn.example.com/img.jpg",
			CircleIDs: circleIDs,
		})
		require.NoError(t, err)
		return item
	}

	tent := mustCreate("Camping Tent", []int32{5})
	// In two circles of the scope, must still rank once.
	bag := mustCreate("Sleeping Bag", []int32{5, 6})
	blender := mustCreate("Blender", []int32{6})
	hidden := mustCreate("Telescope", []int32{9})
	unindexed := mustCreate("Lantern", []int32{5})

	seedEmbedding(t, d, tent.ID, []float32{1, 0, 0})
	seedEmbedding(t, d, bag.ID, []float32{0.8, 0.6, 0})
	seedEmbedding(t, d, blender.ID, []float32{0, 0, 1})
	seedEmbedding(t, d, hidden.ID, []float32{1, 0, 0})

	results, err := d.ScopedVectorSearch(ctx, &store.VectorSearchOptions{
		Vector:    []float32{1, 0, 0},
		CircleIDs: []int32{5, 6},
		Limit:     10,
	})
	require.NoError(t, err)

	require.Len(t, results, 3)
	require.Equal(t, tent.ID, results[0].Item.ID)
	require.Equal(t, bag.ID, results[1].Item.ID)
	require.Equal(t, blender.ID, results[2].Item.ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.Greater(t, results[1].Score, results[2].Score)

	for _, r := range results {
		require.NotEqual(t, hidden.ID, r.Item.ID, "out-of-scope item must not leak")
		require.NotEqual(t, unindexed.ID, r.Item.ID, "item without embedding must not rank")
	}

	t.Run("model mismatch excludes embeddings", func(t *testing.T) {
		_, err := d.db.Exec(`UPDATE item_embedding SET model = 'other-model' WHERE item_id = ?`, tent.ID)
		require.NoError(t, err)

		results, err := d.ScopedVectorSearch(ctx, &store.VectorSearchOptions{
			Vector:    []float32{1, 0, 0},
			CircleIDs: []int32{5},
			Limit:     10,
		})
		require.NoError(t, err)
		for _, r := range results {
			require.NotEqual(t, tent.ID, r.Item.ID)
		}
	})

	t.Run("limit truncates", func(t *testing.T) {
		results, err := d.ScopedVectorSearch(ctx, &store.VectorSearchOptions{
			Vector:    []float32{1, 0, 0},
			CircleIDs: []int32{5, 6},
			Limit:     1,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
	})
}

func TestFindItemsWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	withImage, err := d.CreateItem(ctx, &store.CreateItem{
		OwnerID: 10, Name: "Lantern", ImageRef: "https://cdn.example.com/l.jpg", CircleIDs: []int32{5},
	})
	require.NoError(t, err)
	_, err = d.CreateItem(ctx, &store.CreateItem{
		OwnerID: 10, Name: "Board Game", CircleIDs: []int32{5},
	})
	require.NoError(t, err)
	indexed, err := d.CreateItem(ctx, &store.CreateItem{
		OwnerID: 10, Name: "Tent", ImageRef: "https://cdn.example.com/t.jpg", CircleIDs: []int32{5},
	})
	require.NoError(t, err)
	seedEmbedding(t, d, indexed.ID, []float32{1, 0, 0})

	pending, err := d.FindItemsWithoutEmbedding(ctx, &store.FindItemsWithoutEmbedding{
		Model: "jina-clip-v2",
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, withImage.ID, pending[0].ID)
}
