package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	t.Setenv("DB_USER", "paw")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "pawdesk")

	assert.Equal(t, "paw:secret@tcp(db:3307)/pawdesk?charset=utf8mb4&parseTime=True&loc=UTC", DSN())
}

func TestBillingModels(t *testing.T) {
	assert.Len(t, BillingModels(), 4)
}
