package badger

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Values are JSON encoded: records are small and JSON keeps the database
// inspectable with badger's CLI tooling.

// vaultRecord is the stored form of a vault registration.
type vaultRecord struct {
	CreatedAt time.Time `json:"created_at"`
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

func decodeItem[T any](item *badger.Item) (*T, error) {
	var out T
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", item.Key(), err)
	}
	return &out, nil
}

// get loads and decodes key. found is false when the key does not exist.
func get[T any](txn *badger.Txn, key []byte) (*T, bool, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := decodeItem[T](item)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func set(txn *badger.Txn, key []byte, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
