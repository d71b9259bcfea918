package cache

import (
	"fmt"
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/PawDesk/internal/pkg/env"
)

// NewLimiterStorage returns a redis-backed fiber.Storage for the API rate
// limiter so limits hold across instances. It uses LIMITER_DB (default 1) on
// the cache server.
func NewLimiterStorage() (storage fiber.Storage, err error) {
	opts := Options()
	host, portStr, splitErr := net.SplitHostPort(opts.Addr)
	if splitErr != nil {
		return nil, fmt.Errorf("parse cache address %q: %w", opts.Addr, splitErr)
	}
	port, convErr := strconv.Atoi(portStr)
	if convErr != nil {
		return nil, fmt.Errorf("parse cache port %q: %w", portStr, convErr)
	}

	// redis.New panics when the server cannot be reached.
	defer func() {
		if r := recover(); r != nil {
			storage = nil
			err = fmt.Errorf("connect limiter storage: %v", r)
		}
	}()

	storage = redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: env.GetEnvInt("LIMITER_DB", 1),
		Reset:    false,
	})
	log.Infof("[Cache] Rate limiter storage on %s", opts.Addr)
	return storage, nil
}
