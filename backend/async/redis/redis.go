// Package redis implements async.Dialer on top of go-redis.
//
// Each storage area is one Redis hash: field = entry key, value = framed
// record. The handshake pings the server and provisions a schema marker for
// the area on first use. Expiry is handled by ttlkv sweeps, not by Redis TTLs.
package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/ttlkv/backend/async"
	"github.com/unkn0wn-root/ttlkv/internal/util"
)

var ErrNilClient = errors.New("redis dialer: nil client")

const schemaVersion = "1"

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if the dialer exclusively owns the client
}

type Dialer struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ async.Dialer = (*Dialer)(nil)

func New(cfg Config) (*Dialer, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Dialer{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Open pings the server and provisions the area's schema marker if absent.
func (d *Dialer) Open(ctx context.Context, name string) (async.Conn, error) {
	if err := d.rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	area := util.AreaKey(name)
	if err := d.rdb.SetNX(ctx, util.SchemaKey(name), schemaVersion, 0).Err(); err != nil {
		return nil, err
	}
	return &Conn{rdb: d.rdb, area: area, closeClient: d.closeClient}, nil
}

type Conn struct {
	rdb         goredis.UniversalClient
	area        string
	closeClient bool
}

var _ async.Conn = (*Conn)(nil)

func (c *Conn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.HGet(ctx, c.area, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *Conn) Put(ctx context.Context, key string, raw []byte) error {
	return c.rdb.HSet(ctx, c.area, key, raw).Err()
}

func (c *Conn) Delete(ctx context.Context, key string) error {
	return c.rdb.HDel(ctx, c.area, key).Err()
}

func (c *Conn) Clear(ctx context.Context) error {
	return c.rdb.Del(ctx, c.area).Err()
}

func (c *Conn) Keys(ctx context.Context) ([]string, error) {
	return c.rdb.HKeys(ctx, c.area).Result()
}

// Scan maps onto HSCAN; Redis returns fields and values interleaved.
func (c *Conn) Scan(ctx context.Context, cursor uint64, count int64) ([]async.Record, uint64, error) {
	kv, next, err := c.rdb.HScan(ctx, c.area, cursor, "", count).Result()
	if err != nil {
		return nil, 0, err
	}
	page := make([]async.Record, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		page = append(page, async.Record{Key: kv[i], Raw: []byte(kv[i+1])})
	}
	return page, next, nil
}

// Close releases the client only when the dialer owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (c *Conn) Close(context.Context) error {
	if c.closeClient {
		if err := c.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
