package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db       *gorm.DB
	provider string
	repos    *Repositories
	once     sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB, provider string) *Factory {
	return &Factory{
		db:       db,
		provider: provider,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db, f.provider)
	})
	return f.repos
}
