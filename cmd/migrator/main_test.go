package main

import (
	"testing"

	"github.com/linemk/shop-orders/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	dbCfg := config.DatabaseConfig{Host: "db", Port: 5433, User: "shop", Password: "secret", Name: "orders"}

	assert.Equal(t, "postgres://shop:secret@db:5433/orders?sslmode=disable", buildQueryDSN(dbCfg))
	assert.Equal(t, "postgres://shop:secret@db:5433/orders?sslmode=disable&x-migrations-table=migrations",
		buildMigrateDSN(dbCfg, migrationTableName))
}
