package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryCatalog is an in-memory CollectionStore/ItemStore/ImageStore used in
// tests and local development.
type MemoryCatalog struct {
	mu       sync.RWMutex
	items    map[string]*CollectionItem
	children map[string][]string
	images   map[string][]string
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		items:    make(map[string]*CollectionItem),
		children: make(map[string][]string),
		images:   make(map[string][]string),
	}
}

// AddItem seeds an item directly, returning its id.
func (c *MemoryCatalog) AddItem(name string, attributes map[string]any) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.New().String()
	c.items[id] = &CollectionItem{ID: id, Name: name, Attributes: attributes}
	return id
}

// Attach seeds a "contains" edge directly.
func (c *MemoryCatalog) Attach(collectionID, itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children[collectionID] = append(c.children[collectionID], itemID)
}

func (c *MemoryCatalog) GetCollection(ctx context.Context, collectionID string) (*CollectionItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[collectionID]
	if !ok {
		return nil, ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (c *MemoryCatalog) GetChildren(ctx context.Context, collectionID string) ([]CollectionItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var children []CollectionItem
	for _, id := range c.children[collectionID] {
		if item, ok := c.items[id]; ok {
			children = append(children, *item)
		}
	}
	return children, nil
}

func (c *MemoryCatalog) CreateItem(ctx context.Context, name, itemType string, attributes map[string]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if attributes == nil {
		attributes = make(map[string]any)
	}
	if itemType != "" {
		attributes["item_type"] = itemType
	}
	id := uuid.New().String()
	c.items[id] = &CollectionItem{ID: id, Name: name, Attributes: attributes}
	return id, nil
}

func (c *MemoryCatalog) AttachToCollection(ctx context.Context, collectionID, itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[itemID]; !ok {
		return ErrItemNotFound
	}
	c.children[collectionID] = append(c.children[collectionID], itemID)
	return nil
}

func (c *MemoryCatalog) Detach(ctx context.Context, collectionID, itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.children[collectionID]
	for i, id := range ids {
		if id == itemID {
			c.children[collectionID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("item %s is not attached to collection %s", itemID, collectionID)
}

func (c *MemoryCatalog) UpdateAttributes(ctx context.Context, itemID string, delta map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if item.Attributes == nil {
		item.Attributes = make(map[string]any)
	}
	for k, v := range delta {
		if name, ok := v.(string); ok && k == "name" {
			item.Name = name
			continue
		}
		item.Attributes[k] = v
	}
	return nil
}

func (c *MemoryCatalog) CreateImage(ctx context.Context, itemID, kind, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[itemID] = append(c.images[itemID], kind+":"+url)
	return nil
}

// Images returns the recorded artwork for an item, for test assertions.
func (c *MemoryCatalog) Images(itemID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.images[itemID]...)
}
