package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	alarms "watergrid-edge/internal/alarms/domain"
	alarmpostgres "watergrid-edge/internal/alarms/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestAlarmLifecycle_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "alarms") {
		t.Skip("alarms missing; run migrations")
	}

	ctx := context.Background()
	supplyLineID := "line-it"
	alarmID := "alarm-it-1"

	_, _ = db.ExecContext(ctx, "DELETE FROM alarms WHERE supply_line_id = $1", supplyLineID)

	repo := alarmpostgres.NewAlarmRepository(db)

	alarm := alarms.Alarm{
		ID:           alarmID,
		SupplyLineID: supplyLineID,
		Parameter:    alarms.ParameterFlowRate,
		AlarmType:    "flow_rate_greater_than",
		Severity:     alarms.SeverityHigh,
		Message:      "flow rate above limit",
		Value:        120,
		Threshold:    100,
		Status:       alarms.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, &alarm); err != nil {
		t.Fatalf("create alarm: %v", err)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if !containsAlarm(active, alarmID) {
		t.Fatalf("expected %s in active list", alarmID)
	}

	if err := repo.MarkAcknowledged(ctx, alarmID, "operator-it", "checking", time.Now().UTC()); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	acked, err := repo.GetByID(ctx, alarmID)
	if err != nil {
		t.Fatalf("get acked: %v", err)
	}
	if acked == nil || acked.Status != alarms.StatusAcknowledged || acked.AcknowledgedBy != "operator-it" {
		t.Fatalf("unexpected acked alarm: %+v", acked)
	}

	// Acknowledged alarms stay in the active listing until closed.
	active, err = repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active after ack: %v", err)
	}
	if !containsAlarm(active, alarmID) {
		t.Fatalf("expected acknowledged alarm in active list")
	}

	if err := repo.MarkClosed(ctx, alarmID, time.Now().UTC()); err != nil {
		t.Fatalf("close: %v", err)
	}
	closed, err := repo.GetByID(ctx, alarmID)
	if err != nil {
		t.Fatalf("get closed: %v", err)
	}
	if closed == nil || closed.Status != alarms.StatusClosed || closed.ClosedAt.IsZero() {
		t.Fatalf("unexpected closed alarm: %+v", closed)
	}

	active, err = repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active after close: %v", err)
	}
	if containsAlarm(active, alarmID) {
		t.Fatalf("closed alarm must leave active list")
	}

	byLine, err := repo.ListBySupplyLine(ctx, supplyLineID, alarms.StatusClosed, 10)
	if err != nil {
		t.Fatalf("list by supply line: %v", err)
	}
	if !containsAlarm(byLine, alarmID) {
		t.Fatalf("expected closed alarm in supply line listing")
	}
}

func TestAlarmRules_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "alarm_rules") {
		t.Skip("alarm_rules missing; run migrations")
	}

	ctx := context.Background()
	ruleID := "rule-it-1"
	_, _ = db.ExecContext(ctx, "DELETE FROM alarm_rules WHERE id = $1", ruleID)

	repo := alarmpostgres.NewAlarmRuleRepository(db)
	rule := alarms.AlarmRule{
		ID:        ruleID,
		Parameter: alarms.ParameterPressure,
		Condition: alarms.ConditionGreaterThan,
		Threshold: 9,
		Severity:  alarms.SeverityCritical,
		Enabled:   true,
	}
	if err := repo.Create(ctx, &rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	enabled, err := repo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	found := false
	for _, r := range enabled {
		if r.ID == ruleID {
			found = true
			if r.Parameter != alarms.ParameterPressure || r.Threshold != 9 {
				t.Fatalf("unexpected rule: %+v", r)
			}
		}
	}
	if !found {
		t.Fatalf("expected %s in enabled rules", ruleID)
	}
}

func containsAlarm(list []alarms.Alarm, id string) bool {
	for _, alarm := range list {
		if alarm.ID == id {
			return true
		}
	}
	return false
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
