package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/circleshare/circleshare/internal/profile"
	"github.com/circleshare/circleshare/server/auth"
	"github.com/circleshare/circleshare/store"
)

// embeddingRefresher is the write-path slice of the lifecycle refresher.
type embeddingRefresher interface {
	RefreshAsync(item *store.Item)
	Backfill(ctx context.Context, batchSize int) (int, error)
}

// ItemService handles item CRUD. Embedding maintenance rides along on
// writes but never decides their outcome.
type ItemService struct {
	Store   *store.Store
	Profile *profile.Profile

	refresher embeddingRefresher
}

// NewItemService creates an ItemService. refresher may be nil when no
// embedding provider is configured.
func NewItemService(s *store.Store, p *profile.Profile, refresher embeddingRefresher) *ItemService {
	svc := &ItemService{
		Store:   s,
		Profile: p,
	}
	if refresher != nil {
		svc.refresher = refresher
	}
	return svc
}

// CreateItemRequest is the POST /api/v1/items payload.
type CreateItemRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
	ImageURL    string   `json:"imageUrl"`
	CircleIDs   []int32  `json:"circleIds"`
}

// UpdateItemRequest is the PATCH /api/v1/items/:uid payload. Nil fields
// are left unchanged; ImageURL set to "" removes the image.
type UpdateItemRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
	ImageURL    *string  `json:"imageUrl"`
	CircleIDs   []int32  `json:"circleIds"`
}

// ItemView is the item representation returned by the CRUD endpoints.
type ItemView struct {
	UID         string   `json:"uid"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	CircleIDs   []int32  `json:"circleIds"`
	CreatedTs   int64    `json:"createdTs"`
	UpdatedTs   int64    `json:"updatedTs"`
	IsOwner     bool     `json:"isOwner"`
}

// CreateItem handles POST /api/v1/items.
func (s *ItemService) CreateItem(c echo.Context) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	request := &CreateItemRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	create := &store.CreateItem{
		OwnerID:     userID,
		Name:        request.Name,
		Description: request.Description,
		Categories:  request.Categories,
		Tags:        request.Tags,
		ImageRef:    request.ImageURL,
		CircleIDs:   request.CircleIDs,
	}
	if err := create.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	item, err := s.Store.CreateItem(c.Request().Context(), create)
	if err != nil {
		slog.Error("failed to create item", "owner_id", userID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create item")
	}

	// The item write is already durable; indexing catches up out of band.
	if s.refresher != nil && item.ImageRef != "" {
		s.refresher.RefreshAsync(item)
	}
	return c.JSON(http.StatusOK, s.convertItem(item, userID))
}

// ListItems handles GET /api/v1/items, returning the caller's own items.
func (s *ItemService) ListItems(c echo.Context) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	items, err := s.Store.ListItems(c.Request().Context(), &store.FindItem{OwnerID: &userID})
	if err != nil {
		slog.Error("failed to list items", "owner_id", userID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list items")
	}

	views := make([]*ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, s.convertItem(item, userID))
	}
	return c.JSON(http.StatusOK, views)
}

// GetItem handles GET /api/v1/items/:uid.
func (s *ItemService) GetItem(c echo.Context) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	item, err := s.findVisibleItem(c.Request().Context(), c.Param("uid"), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.convertItem(item, userID))
}

// UpdateItem handles PATCH /api/v1/items/:uid.
func (s *ItemService) UpdateItem(c echo.Context) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ctx := c.Request().Context()
	item, err := s.findOwnedItem(ctx, c.Param("uid"), userID)
	if err != nil {
		return err
	}

	request := &UpdateItemRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	prevImageRef := item.ImageRef
	now := time.Now().Unix()
	update := &store.UpdateItem{
		ID:          item.ID,
		Name:        request.Name,
		Description: request.Description,
		Categories:  request.Categories,
		Tags:        request.Tags,
		ImageRef:    request.ImageURL,
		CircleIDs:   request.CircleIDs,
		UpdatedTs:   &now,
	}
	updated, err := s.Store.UpdateItem(ctx, update)
	if err != nil {
		slog.Error("failed to update item", "item_uid", item.UID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update item")
	}

	imageChanged := request.ImageURL != nil && *request.ImageURL != prevImageRef
	if s.refresher != nil && imageChanged {
		s.refresher.RefreshAsync(updated)
	}
	return c.JSON(http.StatusOK, s.convertItem(updated, userID))
}

// DeleteItem handles DELETE /api/v1/items/:uid.
func (s *ItemService) DeleteItem(c echo.Context) error {
	userID, ok := auth.UserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	ctx := c.Request().Context()
	item, err := s.findOwnedItem(ctx, c.Param("uid"), userID)
	if err != nil {
		return err
	}

	if err := s.Store.DeleteItem(ctx, &store.DeleteItem{ID: item.ID}); err != nil {
		slog.Error("failed to delete item", "item_uid", item.UID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete item")
	}
	return c.NoContent(http.StatusNoContent)
}

// BackfillEmbeddings handles POST /api/v1/embeddings/backfill, indexing
// items that have an image but no stored vector.
func (s *ItemService) BackfillEmbeddings(c echo.Context) error {
	if _, ok := auth.UserID(c); !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	if s.refresher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "semantic search is not configured")
	}

	request := &struct {
		BatchSize int `json:"batchSize"`
	}{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	done, err := s.refresher.Backfill(c.Request().Context(), request.BatchSize)
	if err != nil {
		slog.Error("embedding backfill failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to backfill embeddings")
	}
	return c.JSON(http.StatusOK, map[string]int{"indexed": done})
}

// findOwnedItem loads an item by UID and verifies the caller owns it.
// Non-owners get a 404, not a 403, so item UIDs leak nothing.
func (s *ItemService) findOwnedItem(ctx context.Context, uid string, userID int32) (*store.Item, error) {
	if uid == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "item uid is required")
	}
	item, err := s.Store.GetItem(ctx, &store.FindItem{UID: &uid})
	if err != nil {
		slog.Error("failed to get item", "item_uid", uid, "error", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get item")
	}
	if item == nil || item.OwnerID != userID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "item not found")
	}
	return item, nil
}

// findVisibleItem loads an item by UID and verifies the caller may see
// it: owners always can, others need an active shared circle.
func (s *ItemService) findVisibleItem(ctx context.Context, uid string, userID int32) (*store.Item, error) {
	if uid == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "item uid is required")
	}
	item, err := s.Store.GetItem(ctx, &store.FindItem{UID: &uid})
	if err != nil {
		slog.Error("failed to get item", "item_uid", uid, "error", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get item")
	}
	if item == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "item not found")
	}
	if item.OwnerID == userID {
		return item, nil
	}

	memberships, err := s.Store.ListCircleMemberships(ctx, &store.FindCircleMembership{
		UserID:     &userID,
		ActiveOnly: true,
	})
	if err != nil {
		slog.Error("failed to list memberships", "user_id", userID, "error", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to get item")
	}
	accessible := make(map[int32]bool, len(memberships))
	for _, m := range memberships {
		accessible[m.CircleID] = true
	}
	for _, circleID := range item.CircleIDs {
		if accessible[circleID] {
			return item, nil
		}
	}
	return nil, echo.NewHTTPError(http.StatusNotFound, "item not found")
}

func (s *ItemService) convertItem(item *store.Item, userID int32) *ItemView {
	ttl := time.Duration(s.Profile.ImageURLTTL) * time.Second
	return &ItemView{
		UID:         item.UID,
		Name:        item.Name,
		Description: item.Description,
		Categories:  item.Categories,
		Tags:        item.Tags,
		ImageURL:    signedImageURL(item.ImageRef, s.Profile.ImageSigningSecret, ttl, time.Now()),
		CircleIDs:   item.CircleIDs,
		CreatedTs:   item.CreatedTs,
		UpdatedTs:   item.UpdatedTs,
		IsOwner:     item.OwnerID == userID,
	}
}
