package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"app/internal/model"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// touchFailingClient serves a stored entry but fails the access-index touch.
// Only the commands the store issues in Get are implemented.
type touchFailingClient struct {
	goredis.Cmdable
	raw      []byte
	touchErr error
	touched  bool
}

func (c *touchFailingClient) Get(_ context.Context, _ string) *goredis.StringCmd {
	return goredis.NewStringResult(string(c.raw), nil)
}

func (c *touchFailingClient) ZAdd(_ context.Context, _ string, _ ...goredis.Z) *goredis.IntCmd {
	c.touched = true
	return goredis.NewIntResult(0, c.touchErr)
}

func TestRedisGetSurvivesAccessIndexFailure(t *testing.T) {
	stored := &Entry{
		Key:       "k1",
		Payload:   []byte("webp-bytes"),
		SizeBytes: 10,
		Format:    model.FormatWebP,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)

	client := &touchFailingClient{raw: raw, touchErr: errors.New("readonly replica")}
	store := NewRedisStore(client, zerolog.Nop())

	got, err := store.Get(context.Background(), "k1")
	require.NoError(t, err, "a decoded hit must not become a miss over index bookkeeping")
	require.NotNil(t, got)
	assert.Equal(t, []byte("webp-bytes"), got.Payload)
	assert.True(t, client.touched)
}
