package chain

import (
	"context"
	"errors"
	"strconv"

	"xepbot/internal/state"
)

// StateCursor хранит курсоры в state.Store без TTL
type StateCursor struct {
	store state.Store
}

func NewStateCursor(store state.Store) *StateCursor {
	return &StateCursor{store: store}
}

func cursorKey(key string) string {
	return "xepbot:cursor:" + key
}

func (c *StateCursor) Load(ctx context.Context, key string) (uint64, bool, error) {
	v, err := c.store.Get(ctx, cursorKey(key))
	if errors.Is(err, state.ErrNoValue) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func (c *StateCursor) Save(ctx context.Context, key string, value uint64) error {
	return c.store.Set(ctx, cursorKey(key), strconv.FormatUint(value, 10), 0)
}
