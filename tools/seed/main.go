// Command seed loads demo vendors, supply lines and alarm rules so a fresh
// database matches the simulator's built-in fleet.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"

	alarms "watergrid-edge/internal/alarms/domain"
	alarmrepo "watergrid-edge/internal/alarms/infrastructure/postgres"
	masterdata "watergrid-edge/internal/masterdata/domain"
	masterdatarepo "watergrid-edge/internal/masterdata/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("PG_DSN"), "postgres dsn (defaults to PG_DSN)")
	withRules := flag.Bool("rules", true, "seed default alarm rules")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("PG_DSN or -dsn is required")
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	vendorRepo := masterdatarepo.NewVendorRepository(db)
	lineRepo := masterdatarepo.NewSupplyLineRepository(db)
	ruleRepo := alarmrepo.NewAlarmRuleRepository(db)

	for _, vendor := range demoVendors() {
		v := vendor
		if err := vendorRepo.Save(ctx, &v); err != nil {
			log.Fatalf("seed vendor %s: %v", vendor.ID, err)
		}
	}
	log.Printf("seeded vendors=%d", len(demoVendors()))

	for _, line := range demoSupplyLines() {
		l := line
		if err := lineRepo.Save(ctx, &l); err != nil {
			log.Fatalf("seed supply line %s: %v", line.ID, err)
		}
	}
	log.Printf("seeded supply_lines=%d", len(demoSupplyLines()))

	if *withRules {
		for _, rule := range demoRules() {
			r := rule
			if err := ruleRepo.Create(ctx, &r); err != nil {
				log.Printf("seed rule %s skipped: %v", rule.ID, err)
			}
		}
		log.Printf("seeded rules=%d", len(demoRules()))
	}
}

func demoVendors() []masterdata.Vendor {
	return []masterdata.Vendor{
		{ID: "750e8400-e29b-41d4-a716-446655440001", Name: "Aqua Nova Utilities", Code: "AQN", Email: "ops@aquanova.example", BillingRate: 2.5, Status: masterdata.VendorActive},
		{ID: "750e8400-e29b-41d4-a716-446655440002", Name: "ClearFlow Water Co", Code: "CFW", Email: "billing@clearflow.example", BillingRate: 3.1, Status: masterdata.VendorActive},
	}
}

func demoSupplyLines() []masterdata.SupplyLine {
	vendorA := "750e8400-e29b-41d4-a716-446655440001"
	vendorB := "750e8400-e29b-41d4-a716-446655440002"
	return []masterdata.SupplyLine{
		{ID: "650e8400-e29b-41d4-a716-446655440001", VendorID: vendorA, Name: "District A Line 1", FlowMeterID: "FM-A1-001", MaxFlowRate: 150, MaxDailyVolume: 5000, Status: masterdata.SupplyLineActive},
		{ID: "650e8400-e29b-41d4-a716-446655440002", VendorID: vendorA, Name: "District A Line 2", FlowMeterID: "FM-A2-002", MaxFlowRate: 120, MaxDailyVolume: 4000, Status: masterdata.SupplyLineActive},
		{ID: "650e8400-e29b-41d4-a716-446655440003", VendorID: vendorA, Name: "District B Line 1", FlowMeterID: "FM-B1-003", MaxFlowRate: 150, MaxDailyVolume: 6000, Status: masterdata.SupplyLineActive},
		{ID: "650e8400-e29b-41d4-a716-446655440004", VendorID: vendorB, Name: "District C Line 1", FlowMeterID: "FM-C1-004", MaxFlowRate: 150, MaxDailyVolume: 7000, Status: masterdata.SupplyLineActive},
		{ID: "650e8400-e29b-41d4-a716-446655440005", VendorID: vendorB, Name: "District C Line 2", FlowMeterID: "FM-C2-005", MaxFlowRate: 130, MaxDailyVolume: 4500, Status: masterdata.SupplyLineActive},
		{ID: "650e8400-e29b-41d4-a716-446655440006", VendorID: vendorB, Name: "District D Line 1", FlowMeterID: "FM-D1-006", MaxFlowRate: 150, MaxDailyVolume: 8000, Status: masterdata.SupplyLineActive},
		{ID: "650e8400-e29b-41d4-a716-446655440007", VendorID: vendorB, Name: "District E Line 1", FlowMeterID: "FM-E1-007", MaxFlowRate: 140, MaxDailyVolume: 5000, Status: masterdata.SupplyLineActive},
	}
}

func demoRules() []alarms.AlarmRule {
	return []alarms.AlarmRule{
		{ID: "rule-flow-high", Parameter: alarms.ParameterFlowRate, Condition: alarms.ConditionGreaterThan, Threshold: 140, Severity: alarms.SeverityCritical, MessageTemplate: "Flow rate {value} L/s exceeds {threshold} L/s on supply line {supply_line_id}", Enabled: true},
		{ID: "rule-flow-warn", Parameter: alarms.ParameterFlowRate, Condition: alarms.ConditionGreaterThan, Threshold: 120, Severity: alarms.SeverityHigh, MessageTemplate: "Flow rate {value} L/s above {threshold} L/s on supply line {supply_line_id}", Enabled: true},
		{ID: "rule-flow-low", Parameter: alarms.ParameterFlowRate, Condition: alarms.ConditionLessThan, Threshold: 5, Severity: alarms.SeverityHigh, MessageTemplate: "Flow rate {value} L/s below {threshold} L/s on supply line {supply_line_id}", Enabled: true},
		{ID: "rule-pressure-high", Parameter: alarms.ParameterPressure, Condition: alarms.ConditionGreaterThan, Threshold: 9.5, Severity: alarms.SeverityCritical, MessageTemplate: "Pressure {value} bar exceeds {threshold} bar on supply line {supply_line_id}", Enabled: true},
		{ID: "rule-pressure-low", Parameter: alarms.ParameterPressure, Condition: alarms.ConditionLessThan, Threshold: 1.5, Severity: alarms.SeverityMedium, MessageTemplate: "Pressure {value} bar below {threshold} bar on supply line {supply_line_id}", Enabled: true},
	}
}
