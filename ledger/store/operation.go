package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"pixelate.dev/pixelate/ledger"
	"pixelate.dev/pixelate/wallet"
)

// header is the stored account header. Records live under their own keys.
type header struct {
	ID        string          `cbor:"id"`
	Authority wallet.Identity `cbor:"authority"`
	Count     uint64          `cbor:"count"`
	Next      uint64          `cbor:"next"`
}

var errKeyExists = errors.New("key already exists")

func accountKey(id string) []byte { return []byte("a/" + id) }

func recordPrefix(id string) []byte { return []byte("r/" + id + "/") }

func recordKey(id string, number uint64) []byte {
	key := recordPrefix(id)
	return binary.BigEndian.AppendUint64(key, number)
}

func txKey(txid string) []byte { return []byte("t/" + txid) }

// insert encodes entity as CBOR under key. It fails if key already exists.
func insert(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		if err == nil {
			return errKeyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("could not check key: %w", err)
		}
		return upsert(key, entity)(tx)
	}
}

// upsert encodes entity as CBOR under key, replacing any previous value.
func upsert(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		val, err := ledger.Marshal(entity)
		if err != nil {
			return fmt.Errorf("could not encode entity: %w", err)
		}
		if err := tx.Set(key, val); err != nil {
			return fmt.Errorf("could not store data: %w", err)
		}
		return nil
	}
}

// retrieve decodes the value under key into entity. A missing key is
// ledger.ErrNotFound.
func retrieve(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ledger.ErrNotFound
			}
			return fmt.Errorf("could not load data: %w", err)
		}
		err = item.Value(func(val []byte) error {
			return ledger.Unmarshal(val, entity)
		})
		if err != nil {
			return fmt.Errorf("could not decode entity: %w", err)
		}
		return nil
	}
}

func check(key []byte, exists *bool) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			*exists = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not check existence: %w", err)
		}
		*exists = true
		return nil
	}
}

func remove(key []byte) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		if err := tx.Delete(key); err != nil {
			return fmt.Errorf("could not delete key %x: %w", key, err)
		}
		return nil
	}
}

// recordEntry pairs a stored record with its key.
type recordEntry struct {
	key    []byte
	record ledger.Record
}

// records collects every record of account id in append order.
func records(id string, out *[]recordEntry) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		prefix := recordPrefix(id)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec ledger.Record
			err := item.Value(func(val []byte) error {
				return ledger.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("could not decode record %x: %w", item.Key(), err)
			}
			*out = append(*out, recordEntry{key: item.KeyCopy(nil), record: rec})
		}
		return nil
	}
}

// retryOnConflict reruns op while Badger reports a write conflict.
func retryOnConflict(update func(func(*badger.Txn) error) error, op func(*badger.Txn) error) error {
	for {
		err := update(op)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}
