//go:build integration
// +build integration

package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fincalc/engine/store"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "fincalc_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=fincalc_test sslmode=disable", host, port.Port())

	// Wait for connection to be available
	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_create_kv_records.up.sql"))
	if err != nil {
		migrationSQL, err = os.ReadFile(filepath.Join("migrations", "000001_create_kv_records.up.sql"))
		if err != nil {
			t.Fatalf("Failed to read migration file: %v", err)
		}
	}

	_, err = db.Exec(string(migrationSQL))
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestPostgresKV_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	kv := store.NewPostgresKV(db)
	ctx := context.Background()

	// Save
	err := kv.Save(ctx, store.StoreInputs, store.Record{
		Key:   "balanco",
		Value: []byte(`{"ativoTotal": 1000, "passivoTotal": 400}`),
	})
	if err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	// Get
	rec, err := kv.Get(ctx, store.StoreInputs, "balanco")
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if rec.Key != "balanco" {
		t.Errorf("Expected key 'balanco', got '%s'", rec.Key)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("Expected updated_at to be set")
	}

	// Upsert
	err = kv.Save(ctx, store.StoreInputs, store.Record{
		Key:   "balanco",
		Value: []byte(`{"ativoTotal": 2000}`),
	})
	if err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}

	updated, err := kv.Get(ctx, store.StoreInputs, "balanco")
	if err != nil {
		t.Fatalf("Failed to get updated record: %v", err)
	}
	if string(updated.Value) != `{"ativoTotal": 2000}` {
		t.Errorf("Expected upserted value, got %s", updated.Value)
	}

	// Delete
	err = kv.Delete(ctx, store.StoreInputs, "balanco")
	if err != nil {
		t.Fatalf("Failed to delete record: %v", err)
	}

	_, err = kv.Get(ctx, store.StoreInputs, "balanco")
	if !store.IsNotFound(err) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestPostgresKV_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	kv := store.NewPostgresKV(db)
	ctx := context.Background()

	_, err := kv.Get(ctx, store.StoreInputs, "absent")
	if !store.IsNotFound(err) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	err = kv.Delete(ctx, store.StoreInputs, "absent")
	if !store.IsNotFound(err) {
		t.Errorf("Expected ErrNotFound when deleting absent key, got %v", err)
	}
}

func TestPostgresKV_StoreIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	kv := store.NewPostgresKV(db)
	ctx := context.Background()

	err := kv.Save(ctx, store.StoreInputs, store.Record{Key: "k", Value: []byte(`1`)})
	if err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	_, err = kv.Get(ctx, store.StoreHistory, "k")
	if !store.IsNotFound(err) {
		t.Errorf("Logical stores should be isolated, got %v", err)
	}
}

func TestPostgresKV_GetAllOrderedByKey(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	kv := store.NewPostgresKV(db)
	ctx := context.Background()

	for _, key := range []string{"dre", "balanco", "empresa"} {
		err := kv.Save(ctx, store.StoreInputs, store.Record{Key: key, Value: []byte(`{}`)})
		if err != nil {
			t.Fatalf("Failed to save record %s: %v", key, err)
		}
	}

	records, err := kv.GetAll(ctx, store.StoreInputs)
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	want := []string{"balanco", "dre", "empresa"}
	for i, rec := range records {
		if rec.Key != want[i] {
			t.Errorf("records[%d].Key = %q, want %q", i, rec.Key, want[i])
		}
	}
}

func TestPostgresKV_WithRetryDecorator(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	kv := store.NewRetryingKV(store.NewPostgresKV(db), store.DefaultRetryConfig())
	ctx := context.Background()

	err := kv.Save(ctx, store.StoreState, store.Record{
		Key:   "calculation_state",
		Value: []byte(`{"lastCalculated": null, "errors": []}`),
	})
	if err != nil {
		t.Fatalf("Failed to save through retry decorator: %v", err)
	}

	rec, err := kv.Get(ctx, store.StoreState, "calculation_state")
	if err != nil {
		t.Fatalf("Failed to get through retry decorator: %v", err)
	}
	if rec.Key != "calculation_state" {
		t.Errorf("Expected key 'calculation_state', got '%s'", rec.Key)
	}

	// Absence passes straight through without retries.
	_, err = kv.Get(ctx, store.StoreState, "absent")
	if !store.IsNotFound(err) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
