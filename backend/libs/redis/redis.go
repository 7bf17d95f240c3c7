// Package redis opens the go-redis client shared by services that relay events.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout  = 5 * time.Second
	readTimeout  = 3 * time.Second
	writeTimeout = 3 * time.Second
)

// Options selects the redis endpoint. Addr is either host:port or a redis:// URL; a URL's
// credentials and database win over Password and DB.
type Options struct {
	Addr       string
	Password   string
	DB         int
	ClientName string
}

// ClientOptions converts opts into go-redis options.
func ClientOptions(opts Options) (*redis.Options, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	var out *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		out = parsed
	} else {
		out = &redis.Options{Addr: addr, Password: opts.Password, DB: opts.DB}
	}
	out.ClientName = opts.ClientName
	out.DialTimeout = dialTimeout
	out.ReadTimeout = readTimeout
	out.WriteTimeout = writeTimeout
	return out, nil
}

// NewClient returns a connected client; the connection is checked with PING.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	clientOpts, err := ClientOptions(opts)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(clientOpts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", clientOpts.Addr, err)
	}
	return client, nil
}
