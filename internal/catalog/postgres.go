package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PostgresCatalog reads and mutates the main application's item graph. The
// items, item_relationships, and images tables are owned by that application;
// this service only points at the same database.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) GetCollection(ctx context.Context, collectionID string) (*CollectionItem, error) {
	query := `SELECT id, name, metadata FROM items WHERE id = $1`

	item := &CollectionItem{}
	var metadata []byte
	err := c.db.QueryRowContext(ctx, query, collectionID).Scan(&item.ID, &item.Name, &metadata)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying collection: %v", err)
	}
	if err := json.Unmarshal(metadata, &item.Attributes); err != nil {
		return nil, fmt.Errorf("error decoding collection metadata: %v", err)
	}
	return item, nil
}

func (c *PostgresCatalog) GetChildren(ctx context.Context, collectionID string) ([]CollectionItem, error) {
	query := `
		SELECT i.id, i.name, i.metadata
		FROM items i
		JOIN item_relationships r ON r.child_id = i.id
		WHERE r.parent_id = $1 AND r.relationship_type = 'contains'
		ORDER BY r.canonical_order`

	rows, err := c.db.QueryContext(ctx, query, collectionID)
	if err != nil {
		return nil, fmt.Errorf("error querying collection items: %v", err)
	}
	defer rows.Close()

	var items []CollectionItem
	for rows.Next() {
		var item CollectionItem
		var metadata []byte
		if err := rows.Scan(&item.ID, &item.Name, &metadata); err != nil {
			return nil, fmt.Errorf("error scanning collection item: %v", err)
		}
		if err := json.Unmarshal(metadata, &item.Attributes); err != nil {
			return nil, fmt.Errorf("error decoding item metadata: %v", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (c *PostgresCatalog) CreateItem(ctx context.Context, name, itemType string, attributes map[string]any) (string, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	metadata, err := json.Marshal(attributes)
	if err != nil {
		return "", fmt.Errorf("error encoding item metadata: %v", err)
	}

	id := uuid.New().String()
	query := `
		INSERT INTO items (id, name, item_type, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`
	if _, err := c.db.ExecContext(ctx, query, id, name, itemType, metadata); err != nil {
		return "", fmt.Errorf("error creating item: %v", err)
	}
	return id, nil
}

func (c *PostgresCatalog) AttachToCollection(ctx context.Context, collectionID, itemID string) error {
	query := `
		INSERT INTO item_relationships (parent_id, child_id, relationship_type, canonical_order, created_at, updated_at)
		SELECT $1, $2, 'contains',
			COALESCE(MAX(canonical_order), 0) + 1, NOW(), NOW()
		FROM item_relationships
		WHERE parent_id = $1 AND relationship_type = 'contains'`

	if _, err := c.db.ExecContext(ctx, query, collectionID, itemID); err != nil {
		return fmt.Errorf("error attaching item to collection: %v", err)
	}
	return nil
}

func (c *PostgresCatalog) Detach(ctx context.Context, collectionID, itemID string) error {
	query := `
		DELETE FROM item_relationships
		WHERE parent_id = $1 AND child_id = $2 AND relationship_type = 'contains'`

	result, err := c.db.ExecContext(ctx, query, collectionID, itemID)
	if err != nil {
		return fmt.Errorf("error detaching item: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %v", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (c *PostgresCatalog) UpdateAttributes(ctx context.Context, itemID string, delta map[string]any) error {
	name, _ := delta["name"].(string)
	rest := make(map[string]any, len(delta))
	for k, v := range delta {
		if k != "name" {
			rest[k] = v
		}
	}
	metadata, err := json.Marshal(rest)
	if err != nil {
		return fmt.Errorf("error encoding item metadata: %v", err)
	}

	query := `
		UPDATE items
		SET name = CASE WHEN $2 = '' THEN name ELSE $2 END,
			metadata = metadata || $3::jsonb,
			updated_at = NOW()
		WHERE id = $1`

	result, err := c.db.ExecContext(ctx, query, itemID, name, metadata)
	if err != nil {
		return fmt.Errorf("error updating item: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %v", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (c *PostgresCatalog) CreateImage(ctx context.Context, itemID, kind, url string) error {
	query := `
		INSERT INTO images (id, item_id, kind, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`

	if _, err := c.db.ExecContext(ctx, query, uuid.New().String(), itemID, kind, url); err != nil {
		return fmt.Errorf("error creating image: %v", err)
	}
	return nil
}
