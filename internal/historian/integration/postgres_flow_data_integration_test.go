package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"watergrid-edge/internal/historian"
	historianpostgres "watergrid-edge/internal/historian/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestFlowDataBatchInsert_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "flow_data") {
		t.Skip("flow_data missing; run migrations")
	}

	ctx := context.Background()
	supplyLineID := "line-it-flow"
	base := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)

	_, _ = db.ExecContext(ctx, "DELETE FROM flow_data WHERE supply_line_id = $1", supplyLineID)

	repo := historianpostgres.NewFlowDataRepository(db)

	batch := []historian.Record{
		{Time: base, SupplyLineID: supplyLineID, FlowRate: 42.5, TotalVolume: 1000.1, Pressure: 4.2, ValvePosition: 80, Status: "normal"},
		{Time: base.Add(time.Second), SupplyLineID: supplyLineID, FlowRate: 125.0, TotalVolume: 1000.2, Pressure: 4.3, ValvePosition: 80, Status: "warning"},
		{Time: base.Add(2 * time.Second), SupplyLineID: supplyLineID, FlowRate: 145.0, TotalVolume: 1000.4, Pressure: 4.4, ValvePosition: 80, Status: "alarm"},
	}
	if err := repo.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	records, err := repo.ListBySupplyLine(ctx, supplyLineID, base, base.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("list by supply line: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Time.Before(records[i-1].Time) {
			t.Fatalf("records out of order: %v before %v", records[i].Time, records[i-1].Time)
		}
	}
	if records[2].Status != "alarm" {
		t.Fatalf("expected alarm status, got %s", records[2].Status)
	}

	latest, err := repo.ListLatest(ctx)
	if err != nil {
		t.Fatalf("list latest: %v", err)
	}
	found := false
	for _, record := range latest {
		if record.SupplyLineID == supplyLineID {
			found = true
			if !record.Time.Equal(base.Add(2 * time.Second)) {
				t.Fatalf("latest is not the newest sample: %v", record.Time)
			}
		}
	}
	if !found {
		t.Fatalf("expected %s in latest listing", supplyLineID)
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
