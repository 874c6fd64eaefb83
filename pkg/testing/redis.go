package testing

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

// GetMiniredisClient starts an in-memory redis living as long as the test,
// and a client connected to it.
func GetMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
		DB:   0, // use default DB
	})
	t.Cleanup(func() {
		assert.NoError(t, rdb.Close())
	})

	return s, rdb
}
