package cache

import (
	"context"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/versebook/verse-server/catalog"
)

// Cache is a read-through wrapper over a catalog store. Book SKUs change
// rarely but are read on every purchase call.
type Cache struct {
	db    catalog.Store
	cache *ttlcache.Cache
}

func NewInCache(db catalog.Store, ttl time.Duration) catalog.Store {
	c := ttlcache.NewCache()
	c.SetTTL(ttl)
	return &Cache{
		db:    db,
		cache: c,
	}
}

func (c *Cache) GetBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	cached, ok := c.cache.Get(bookID)
	if !ok {
		book, err := c.db.GetBook(ctx, bookID)
		if err != nil {
			return nil, err
		}

		copied := *book
		c.cache.Set(bookID, &copied)

		return book, nil
	}

	copied := *cached.(*catalog.Book)
	return &copied, nil
}
