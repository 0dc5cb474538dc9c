// Package resources exposes the REST collections screens work with as typed
// clients over the shared API client.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/erauner12/farmhand/internal/domain"
)

// API is the subset of apiclient.Client used by collections
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
	Put(ctx context.Context, path string, in, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// Collection is a CRUD client for one REST resource
type Collection[T any] struct {
	api  API
	path string
	// keys under which the server may wrap a list or a single record
	listKey, itemKey string
}

// NewCollection creates a collection rooted at path ("/farms")
func NewCollection[T any](api API, path, listKey, itemKey string) *Collection[T] {
	return &Collection[T]{
		api:     api,
		path:    "/" + strings.Trim(path, "/"),
		listKey: listKey,
		itemKey: itemKey,
	}
}

// Path returns the collection root
func (c *Collection[T]) Path() string {
	return c.path
}

func (c *Collection[T]) itemPath(id domain.ID) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%s: empty id", c.path)
	}
	return c.path + "/" + url.PathEscape(id.String()), nil
}

// List fetches the collection, optionally filtered by query
func (c *Collection[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	p := c.path
	if len(query) > 0 {
		p += "?" + query.Encode()
	}
	var raw json.RawMessage
	if err := c.api.Get(ctx, p, &raw); err != nil {
		return nil, err
	}
	return domain.DecodeList[T](raw, c.listKey, path.Base(c.path))
}

// Get fetches one record
func (c *Collection[T]) Get(ctx context.Context, id domain.ID) (*T, error) {
	p, err := c.itemPath(id)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.api.Get(ctx, p, &raw); err != nil {
		return nil, err
	}
	return decodeOne[T](raw, c.itemKey)
}

// Create posts a new record and returns what the server stored
func (c *Collection[T]) Create(ctx context.Context, in T) (*T, error) {
	var raw json.RawMessage
	if err := c.api.Post(ctx, c.path, in, &raw); err != nil {
		return nil, err
	}
	return decodeOne[T](raw, c.itemKey)
}

// Update replaces a record
func (c *Collection[T]) Update(ctx context.Context, id domain.ID, in T) (*T, error) {
	p, err := c.itemPath(id)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.api.Put(ctx, p, in, &raw); err != nil {
		return nil, err
	}
	return decodeOne[T](raw, c.itemKey)
}

// Delete removes a record
func (c *Collection[T]) Delete(ctx context.Context, id domain.ID) error {
	p, err := c.itemPath(id)
	if err != nil {
		return err
	}
	return c.api.Delete(ctx, p, nil)
}

// decodeOne accepts a bare record or one wrapped under "data" or key
func decodeOne[T any](b []byte, key string) (*T, error) {
	var out T
	if len(b) == 0 {
		return &out, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(b, &env); err == nil {
		for _, k := range []string{key, "data"} {
			if inner, ok := env[k]; ok && k != "" && len(inner) > 0 && inner[0] == '{' {
				if err := json.Unmarshal(inner, &out); err != nil {
					return nil, fmt.Errorf("decode %s: %w", k, err)
				}
				return &out, nil
			}
		}
	}

	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &out, nil
}
