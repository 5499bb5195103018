package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/repository"
)

// DriverRepository keeps the driver registry in memory.
type DriverRepository struct {
	mu      sync.RWMutex
	drivers map[string]*entities.Driver
}

func NewDriverRepository() *DriverRepository {
	return &DriverRepository{
		drivers: make(map[string]*entities.Driver),
	}
}

func (r *DriverRepository) Create(ctx context.Context, driver *entities.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[driver.ID]; exists {
		return fmt.Errorf("driver %s: %w", driver.ID, repository.ErrAlreadyExists)
	}
	stored := *driver
	r.drivers[driver.ID] = &stored
	return nil
}

func (r *DriverRepository) GetByID(ctx context.Context, id string) (*entities.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	driver, exists := r.drivers[id]
	if !exists {
		return nil, fmt.Errorf("driver %s: %w", id, repository.ErrNotFound)
	}
	out := *driver
	return &out, nil
}

// List returns every driver ordered by name.
func (r *DriverRepository) List(ctx context.Context) ([]*entities.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drivers := make([]*entities.Driver, 0, len(r.drivers))
	for _, driver := range r.drivers {
		out := *driver
		drivers = append(drivers, &out)
	}
	sort.Slice(drivers, func(i, j int) bool {
		return drivers[i].Name < drivers[j].Name
	})
	return drivers, nil
}
