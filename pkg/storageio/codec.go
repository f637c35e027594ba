package storageio

import (
	"context"
	"encoding/json"
	"fmt"
)

type recordReader interface {
	Get(ctx context.Context, key Key) ([]byte, error)
}

func getRecord[T any](ctx context.Context, r recordReader, key Key) (*T, error) {
	data, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrBackendFatal, key, err)
	}
	return &v, nil
}

func putRecord(ctx context.Context, tx Txn, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrBackendFatal, key, err)
	}
	return tx.Put(ctx, key, data)
}

func decodeEntities[T any](entities []Entity) ([]*T, error) {
	out := make([]*T, 0, len(entities))
	for _, e := range entities {
		var v T
		if err := json.Unmarshal(e.Data, &v); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrBackendFatal, e.Key, err)
		}
		out = append(out, &v)
	}
	return out, nil
}
