package catalog

import (
	"context"
	"errors"
)

var ErrItemNotFound = errors.New("item not found")

// CollectionItem is one "contains" child of a collection, in canonical order.
type CollectionItem struct {
	ID         string
	Name       string
	Attributes map[string]any
}

// CollectionStore reads the current contents of a collection. Backed by the
// main application's item graph; this service only consumes it.
type CollectionStore interface {
	GetCollection(ctx context.Context, collectionID string) (*CollectionItem, error)
	GetChildren(ctx context.Context, collectionID string) ([]CollectionItem, error)
}

// ItemStore mutates items on behalf of executed suggestions.
type ItemStore interface {
	CreateItem(ctx context.Context, name, itemType string, attributes map[string]any) (string, error)
	AttachToCollection(ctx context.Context, collectionID, itemID string) error
	Detach(ctx context.Context, collectionID, itemID string) error
	UpdateAttributes(ctx context.Context, itemID string, delta map[string]any) error
}

// ImageStore records logo/symbol artwork for newly created subcollections.
type ImageStore interface {
	CreateImage(ctx context.Context, itemID, kind, url string) error
}

// CredentialIssuer mints a bearer token for a curator identity at
// registration time. The plaintext token travels over the signed bus and is
// never persisted here.
type CredentialIssuer interface {
	IssueBearerToken(ctx context.Context, identity, label string) (string, error)
}
