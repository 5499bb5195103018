package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/repository"
)

const driverKeyPrefix = "driver:"

// DriverRepository stores the driver registry in BadgerDB.
type DriverRepository struct {
	db *badger.DB
}

func NewDriverRepository(db *badger.DB) *DriverRepository {
	return &DriverRepository{db: db}
}

func (r *DriverRepository) Create(ctx context.Context, driver *entities.Driver) error {
	data, err := json.Marshal(driver)
	if err != nil {
		return fmt.Errorf("marshal driver: %w", err)
	}
	key := []byte(driverKeyPrefix + driver.ID)

	return r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return fmt.Errorf("driver %s: %w", driver.ID, repository.ErrAlreadyExists)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("check driver %s: %w", driver.ID, err)
		}
		return txn.Set(key, data)
	})
}

func (r *DriverRepository) GetByID(ctx context.Context, id string) (*entities.Driver, error) {
	var driver entities.Driver
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(driverKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("driver %s: %w", id, repository.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get driver %s: %w", id, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &driver)
		})
	})
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

// List returns every driver ordered by name.
func (r *DriverRepository) List(ctx context.Context) ([]*entities.Driver, error) {
	drivers := []*entities.Driver{}
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(driverKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var d entities.Driver
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return err
			}
			drivers = append(drivers, &d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}

	sort.Slice(drivers, func(i, j int) bool {
		return drivers[i].Name < drivers[j].Name
	})
	return drivers, nil
}
