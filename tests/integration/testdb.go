// Package integration runs the remittance ledger, cache and HTTP API against
// real PostgreSQL and Redis instances started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/erp/remittance/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB represents a migrated ledger database in its own container
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

// NewTestDB starts a PostgreSQL container and applies the embedded ledger
// migrations. The container is terminated when the test ends.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("remittance_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	runMigrations(t, dsn)
	db, sqlDB := connectToDatabase(t, dsn)

	testDB := &TestDB{
		DB:        db,
		SqlDB:     sqlDB,
		Container: container,
		DSN:       dsn,
		t:         t,
	}
	t.Cleanup(testDB.Close)

	return testDB
}

// Close closes the database connection and terminates the container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// connectToDatabase establishes a GORM connection to the database
func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

// runMigrations applies the embedded migrations over a dedicated connection,
// which the migrator closes when done
func runMigrations(t *testing.T, dsn string) {
	t.Helper()

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err, "Failed to open migration connection")

	m, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	defer func() {
		_ = m.Close()
	}()

	require.NoError(t, m.Up(), "Failed to run migrations")
}

// TestRedis is a Redis container with a connected client
type TestRedis struct {
	Client    *redis.Client
	Container testcontainers.Container
	Addr      string
}

// NewTestRedis starts a Redis container. The container is terminated when
// the test ends.
func NewTestRedis(t *testing.T) *TestRedis {
	t.Helper()
	skipIfShort(t)

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	addr := fmt.Sprintf("%s:%s", host, port.Port())
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(ctx).Err(), "Failed to ping Redis")

	t.Cleanup(func() {
		_ = client.Close()
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	return &TestRedis{Client: client, Container: container, Addr: addr}
}

func skipIfShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
}

// SeedCustomer inserts a customer master record
func (tdb *TestDB) SeedCustomer(customerID, name string) {
	tdb.t.Helper()

	err := tdb.DB.Exec(`
		INSERT INTO customers (customer_id, customer_name)
		VALUES (?, ?)
		ON CONFLICT (customer_id) DO NOTHING
	`, customerID, name).Error
	require.NoError(tdb.t, err, "Failed to seed customer")
}

// SeedFacility inserts a facility and returns its internal id
func (tdb *TestDB) SeedFacility(facilityID, name, facilityType string) string {
	tdb.t.Helper()

	internalID := "int-" + facilityID
	err := tdb.DB.Exec(`
		INSERT INTO facilities (internal_facility_id, facility_id, facility_name, facility_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (internal_facility_id) DO NOTHING
	`, internalID, facilityID, name, facilityType).Error
	require.NoError(tdb.t, err, "Failed to seed facility")
	return internalID
}

// InvoiceSeed describes one AR invoice to seed
type InvoiceSeed struct {
	CustomerID         string
	InvoiceNumber      string
	InternalFacilityID string
	ServiceType        string
	Amount             string
	Discounts          string
}

// SeedInvoice inserts an AR invoice
func (tdb *TestDB) SeedInvoice(inv InvoiceSeed) {
	tdb.t.Helper()

	discounts := decimal.Zero
	if inv.Discounts != "" {
		discounts = decimal.RequireFromString(inv.Discounts)
	}
	err := tdb.DB.Exec(`
		INSERT INTO invoices (invoice_id, customer_id, invoice_number, internal_facility_id,
			service_type, invoice_date, invoice_amount, discounts_applied)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.CustomerID+"/"+inv.InvoiceNumber,
		inv.CustomerID,
		inv.InvoiceNumber,
		inv.InternalFacilityID,
		inv.ServiceType,
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		decimal.RequireFromString(inv.Amount),
		discounts,
	).Error
	require.NoError(tdb.t, err, "Failed to seed invoice")
}

// SeedStandardLedger seeds one customer with three invoices across a
// hospital and a clinic:
//
//	INV-001 Hospital Radiology   1000.00 less 50.00 discount
//	INV-002 Hospital Laboratory   500.00
//	INV-003 Clinic   Therapy      300.25
func (tdb *TestDB) SeedStandardLedger(customerID string) {
	tdb.t.Helper()

	tdb.SeedCustomer(customerID, "Acme Health")
	hospital := tdb.SeedFacility("FAC-H1", "North Hospital", "Hospital")
	clinic := tdb.SeedFacility("FAC-C1", "East Clinic", "Clinic")

	tdb.SeedInvoice(InvoiceSeed{CustomerID: customerID, InvoiceNumber: "INV-001", InternalFacilityID: hospital,
		ServiceType: "Radiology", Amount: "1000.00", Discounts: "50.00"})
	tdb.SeedInvoice(InvoiceSeed{CustomerID: customerID, InvoiceNumber: "INV-002", InternalFacilityID: hospital,
		ServiceType: "Laboratory", Amount: "500.00"})
	tdb.SeedInvoice(InvoiceSeed{CustomerID: customerID, InvoiceNumber: "INV-003", InternalFacilityID: clinic,
		ServiceType: "Therapy", Amount: "300.25"})
}

// CountRows returns the number of rows in table matching where
func (tdb *TestDB) CountRows(table, where string, args ...any) int64 {
	tdb.t.Helper()

	var count int64
	err := tdb.DB.Table(table).Where(where, args...).Count(&count).Error
	require.NoError(tdb.t, err, "Failed to count rows")
	return count
}
