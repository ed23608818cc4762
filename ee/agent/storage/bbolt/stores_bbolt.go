package agentbbolt

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/kolide/localnotify/ee/agent/storage"
	"github.com/kolide/localnotify/ee/agent/types"
	"go.etcd.io/bbolt"
)

const dbFilename = "localnotify.db"

// OpenDB opens (creating if needed) the daemon database under rootDirectory.
func OpenDB(rootDirectory string) (*bbolt.DB, error) {
	return OpenDBTimeout(rootDirectory, time.Duration(30)*time.Second)
}

// OpenDBTimeout is OpenDB, giving up after timeout if another process holds
// the database.
func OpenDBTimeout(rootDirectory string, timeout time.Duration) (*bbolt.DB, error) {
	boltOptions := &bbolt.Options{Timeout: timeout}
	db, err := bbolt.Open(filepath.Join(rootDirectory, dbFilename), 0600, boltOptions)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db in %s: %w", rootDirectory, err)
	}

	return db, nil
}

// MakeStores creates all the KVStores used by the daemon
func MakeStores(logger log.Logger, db *bbolt.DB) (map[storage.Store]types.KVStore, error) {
	stores := make(map[storage.Store]types.KVStore)

	for _, storeName := range storage.AllStores {
		store, err := NewStore(logger, db, storeName.String())
		if err != nil {
			return nil, fmt.Errorf("failed to create '%s' KVStore: %w", storeName, err)
		}

		stores[storeName] = store
	}

	return stores, nil
}
