package telemetry

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

// gormOperation binds one GORM callback chain to its before/after hooks.
type gormOperation struct {
	name   string
	core   string
	before func(name string, fn func(*gorm.DB)) error
	after  func(name string, fn func(*gorm.DB)) error
}

func gormOperations(db *gorm.DB) []gormOperation {
	cb := db.Callback()
	return []gormOperation{
		{"create", "gorm:create",
			func(n string, fn func(*gorm.DB)) error { return cb.Create().Before("gorm:create").Register(n, fn) },
			func(n string, fn func(*gorm.DB)) error { return cb.Create().After("gorm:create").Register(n, fn) }},
		{"query", "gorm:query",
			func(n string, fn func(*gorm.DB)) error { return cb.Query().Before("gorm:query").Register(n, fn) },
			func(n string, fn func(*gorm.DB)) error { return cb.Query().After("gorm:query").Register(n, fn) }},
		{"update", "gorm:update",
			func(n string, fn func(*gorm.DB)) error { return cb.Update().Before("gorm:update").Register(n, fn) },
			func(n string, fn func(*gorm.DB)) error { return cb.Update().After("gorm:update").Register(n, fn) }},
		{"delete", "gorm:delete",
			func(n string, fn func(*gorm.DB)) error { return cb.Delete().Before("gorm:delete").Register(n, fn) },
			func(n string, fn func(*gorm.DB)) error { return cb.Delete().After("gorm:delete").Register(n, fn) }},
		{"row", "gorm:row",
			func(n string, fn func(*gorm.DB)) error { return cb.Row().Before("gorm:row").Register(n, fn) },
			func(n string, fn func(*gorm.DB)) error { return cb.Row().After("gorm:row").Register(n, fn) }},
		{"raw", "gorm:raw",
			func(n string, fn func(*gorm.DB)) error { return cb.Raw().Before("gorm:raw").Register(n, fn) },
			func(n string, fn func(*gorm.DB)) error { return cb.Raw().After("gorm:raw").Register(n, fn) }},
	}
}

// registerTimed installs before/after callbacks on every operation under
// prefix. The before hook stamps the statement context with key; after
// receives the operation name and elapsed time.
func registerTimed(db *gorm.DB, prefix string, key any, after func(db *gorm.DB, op string, elapsed time.Duration)) error {
	stamp := func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		db.Statement.Context = context.WithValue(ctx, key, time.Now())
	}

	for _, op := range gormOperations(db) {
		if err := op.before(prefix+":before_"+op.name, stamp); err != nil {
			return err
		}
		opName := op.name
		if err := op.after(prefix+":after_"+op.name, func(db *gorm.DB) {
			var elapsed time.Duration
			if db.Statement.Context != nil {
				if start, ok := db.Statement.Context.Value(key).(time.Time); ok {
					elapsed = time.Since(start)
				}
			}
			after(db, opName, elapsed)
		}); err != nil {
			return err
		}
	}
	return nil
}

// sqlOperation maps a GORM callback chain onto the SQL verb it issues.
// row and raw chains are classified by the statement text.
func sqlOperation(op, sql string) string {
	switch op {
	case "create":
		return "INSERT"
	case "query":
		return "SELECT"
	case "update":
		return "UPDATE"
	case "delete":
		return "DELETE"
	}

	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, verb) {
			return verb
		}
	}
	return "OTHER"
}
