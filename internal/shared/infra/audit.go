package infra

import (
	"context"
	"fmt"
	"log"

	"batchrpc/internal/shared/storage"
	"batchrpc/internal/shared/storage/dbutil"
	pgdriver "batchrpc/internal/shared/storage/driver/postgres"
	sqlitedriver "batchrpc/internal/shared/storage/driver/sqlite"
	"batchrpc/internal/shared/storage/mongostore"
	"batchrpc/internal/shared/storage/repository"
)

// OpenAudit 按驱动打开审计存储并完成建表
//
// driver: sqlite | postgres | mongodb
func OpenAudit(ctx context.Context, driver, dsn, dbName string) (storage.AuditStore, error) {
	switch driver {
	case "mongodb":
		if dbName == "" {
			dbName = "batchrpc"
		}
		s, err := mongostore.NewStore(ctx, dsn, dbName)
		if err != nil {
			return nil, err
		}
		log.Printf("[Audit] Using MongoDB database %s", dbName)
		return s, nil

	case "sqlite", "postgres":
		var dialect dbutil.Dialect
		open := sqlitedriver.Open
		dialect = sqlitedriver.NewDialect()
		if driver == "postgres" {
			open = pgdriver.Open
			dialect = pgdriver.NewDialect()
		}

		db, err := open(dsn)
		if err != nil {
			return nil, err
		}
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit migrate: %w", err)
		}
		log.Printf("[Audit] Using %s command audit table", dialect.DriverType())
		return repository.NewStore(db, dialect), nil

	default:
		return nil, fmt.Errorf("unknown audit driver %q", driver)
	}
}
