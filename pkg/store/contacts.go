package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/config"
	"github.com/example/orderfunnel/pkg/models"
)

// ContactStore persists {name, email, phone} records captured by the
// reminder follow-up. Backed by Redis when configured; otherwise an
// in-process map, which loses contacts on restart.
type ContactStore struct {
	client *redis.Client
	logger *zap.Logger

	mu    sync.RWMutex
	local map[string]models.Contact
}

func NewContactStore(cfg *config.RedisConfig, logger *zap.Logger) *ContactStore {
	var client *redis.Client
	if cfg != nil && cfg.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
	}
	return &ContactStore{
		client: client,
		logger: logger,
		local:  make(map[string]models.Contact),
	}
}

func (c *ContactStore) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *ContactStore) Save(ctx context.Context, contact models.Contact) error {
	contact.Phone = NormalizePhone(contact.Phone)

	c.mu.Lock()
	c.local[contact.Phone] = contact
	c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(contact)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, contactKey(contact.Phone), data, 0).Err(); err != nil {
		c.logger.Warn("contact not written to redis, kept in memory",
			zap.String("phone", contact.Phone), zap.Error(err))
		return nil
	}
	return nil
}

func (c *ContactStore) Get(ctx context.Context, phone string) (*models.Contact, error) {
	phone = NormalizePhone(phone)

	if c.client != nil {
		data, err := c.client.Get(ctx, contactKey(phone)).Result()
		if err == nil {
			var contact models.Contact
			if err := json.Unmarshal([]byte(data), &contact); err != nil {
				return nil, err
			}
			return &contact, nil
		}
		if err != redis.Nil {
			c.logger.Warn("redis contact lookup failed, trying memory",
				zap.String("phone", phone), zap.Error(err))
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if contact, ok := c.local[phone]; ok {
		return &contact, nil
	}
	return nil, ErrNotFound
}

func (c *ContactStore) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func contactKey(phone string) string {
	return fmt.Sprintf("contact:%s", phone)
}
