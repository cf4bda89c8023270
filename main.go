package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	alarmapp "watergrid-edge/internal/alarms/application"
	alarmrepo "watergrid-edge/internal/alarms/infrastructure/postgres"
	alarmhttp "watergrid-edge/internal/alarms/interfaces/http"
	alarmnotify "watergrid-edge/internal/alarms/notify"
	apihttp "watergrid-edge/internal/api/http"
	"watergrid-edge/internal/audit"
	"watergrid-edge/internal/auth"
	"watergrid-edge/internal/historian"
	historianrepo "watergrid-edge/internal/historian/infrastructure/postgres"
	masterdatarepo "watergrid-edge/internal/masterdata/infrastructure/postgres"
	"watergrid-edge/internal/observability/metrics"
	"watergrid-edge/internal/reports"
	"watergrid-edge/internal/simulator"
	telemetry "watergrid-edge/internal/telemetry/domain"
	telemetrymqtt "watergrid-edge/internal/telemetry/mqtt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

// telemetrySource is a telemetry.Source with a lifecycle.
type telemetrySource interface {
	telemetry.Source
	Start() error
	Stop()
}

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()
	auditRepo := audit.NewRepository(db)

	source, err := buildSource(cfg, logger)
	if err != nil {
		logger.Fatalf("telemetry source error: %v", err)
	}

	flowRepo := historianrepo.NewFlowDataRepository(db)
	buffer, err := historian.NewBuffer(source, flowRepo, logger,
		historian.WithBatchSize(cfg.HistorianBatchSize),
		historian.WithFlushInterval(cfg.HistorianFlushInterval),
	)
	if err != nil {
		logger.Fatalf("historian error: %v", err)
	}

	supplyLineRepo := masterdatarepo.NewSupplyLineRepository(db)
	vendorRepo := masterdatarepo.NewVendorRepository(db)
	alarmStore := alarmrepo.NewAlarmRepository(db)
	ruleStore := alarmrepo.NewAlarmRuleRepository(db)

	alarmBroker := alarmhttp.NewSSEBroker()
	notifiers := []alarmapp.AlarmNotifier{alarmBroker}
	if cfg.AlarmWebhookURL != "" {
		channel, err := alarmnotify.NewWebhookChannel(cfg.AlarmWebhookURL)
		if err != nil {
			logger.Fatalf("alarm webhook error: %v", err)
		}
		template, err := alarmnotify.NewTemplate(cfg.AlarmNotifyTemplate)
		if err != nil {
			logger.Fatalf("alarm template error: %v", err)
		}
		webhookNotifier, err := alarmnotify.NewNotifier(supplyLineRepo, channel, template,
			alarmnotify.WithCooldown(cfg.AlarmNotifyCooldown),
			alarmnotify.WithDedupeWindow(cfg.AlarmNotifyDedupeWindow),
		)
		if err != nil {
			logger.Fatalf("alarm notifier error: %v", err)
		}
		notifiers = append(notifiers, webhookNotifier)
	}

	engine, err := alarmapp.NewEngine(source, alarmStore, ruleStore, logger,
		alarmapp.WithInterval(cfg.AlarmCheckInterval),
		alarmapp.WithNotifier(alarmnotify.NewMultiNotifier(notifiers...)),
	)
	if err != nil {
		logger.Fatalf("alarm engine error: %v", err)
	}

	reportService, err := reports.NewService(reports.NewFlowStatsQuery(db), alarmStore, vendorRepo, supplyLineRepo)
	if err != nil {
		logger.Fatalf("report service error: %v", err)
	}
	reportHandler, err := reports.NewHandler(reportService)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}
	alarmHandler, err := alarmhttp.NewHandler(engine, alarmStore, auditRepo)
	if err != nil {
		logger.Fatalf("alarm handler error: %v", err)
	}

	ctx := context.Background()
	if err := source.Start(); err != nil {
		logger.Fatalf("telemetry source start error: %v", err)
	}
	if err := buffer.Start(ctx); err != nil {
		logger.Fatalf("historian start error: %v", err)
	}
	if err := engine.Start(ctx); err != nil {
		logger.Fatalf("alarm engine start error: %v", err)
	}

	startedAt := time.Now().UTC()
	mux := http.NewServeMux()
	mux.Handle("/healthz", apihttp.HealthHandler{})
	mux.Handle("/api/v1/status", apihttp.NewStatusHandler(source, buffer, engine, startedAt, version))
	mux.Handle("/api/v1/devices", apihttp.NewDevicesHandler(source))
	mux.Handle("/api/v1/supply-lines", apihttp.NewSupplyLinesHandler(supplyLineRepo))
	mux.Handle("/api/v1/flow-data/", apihttp.NewFlowDataHandler(flowRepo))
	mux.Handle("/api/v1/alarms/stream", alarmhttp.NewStreamHandler(alarmBroker))
	mux.Handle("/api/v1/alarms/", alarmHandler)
	mux.Handle("/api/v1/reports/billing", reportHandler)
	mux.Handle("/metrics", promhttp.Handler())

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	engine.Stop()
	source.Stop()
	// Stops the flush loop and drains the remaining buffer.
	buffer.Stop()
	logger.Printf("shutdown complete")
}

func buildSource(cfg config, logger *log.Logger) (telemetrySource, error) {
	if cfg.TelemetrySource == "mqtt" {
		return telemetrymqtt.NewSource(cfg.MQTTBroker, cfg.MQTTTopic, logger,
			telemetrymqtt.WithClientID(cfg.MQTTClientID))
	}
	sim, err := simulator.New(cfg.SimulatorInterval, logger)
	if err != nil {
		return nil, err
	}
	seedConfig, err := simulator.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := seedConfig.Seed(sim); err != nil {
		return nil, err
	}
	return sim, nil
}

type config struct {
	DatabaseURL             string
	HTTPAddr                string
	TelemetrySource         string
	SimulatorInterval       time.Duration
	MQTTBroker              string
	MQTTTopic               string
	MQTTClientID            string
	AlarmCheckInterval      time.Duration
	HistorianBatchSize      int
	HistorianFlushInterval  time.Duration
	AlarmWebhookURL         string
	AlarmNotifyTemplate     string
	AlarmNotifyCooldown     time.Duration
	AlarmNotifyDedupeWindow time.Duration
	JWTSecret               string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:             getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:                getenvDefault("HTTP_ADDR", ":8080"),
		TelemetrySource:         getenvDefault("TELEMETRY_SOURCE", "simulator"),
		SimulatorInterval:       getenvMillis("SIMULATOR_INTERVAL", time.Second),
		MQTTBroker:              getenvDefault("MQTT_BROKER", ""),
		MQTTTopic:               getenvDefault("MQTT_TOPIC", "watergrid/readings"),
		MQTTClientID:            getenvDefault("MQTT_CLIENT_ID", "watergrid-edge"),
		AlarmCheckInterval:      getenvMillis("ALARM_CHECK_INTERVAL", 5*time.Second),
		HistorianBatchSize:      getenvIntDefault("HISTORIAN_BATCH_SIZE", historian.DefaultBatchSize),
		HistorianFlushInterval:  getenvMillis("HISTORIAN_FLUSH_INTERVAL", historian.DefaultFlushInterval),
		AlarmWebhookURL:         getenvDefault("ALARM_WEBHOOK_URL", ""),
		AlarmNotifyTemplate:     getenvDefault("ALARM_NOTIFY_TEMPLATE", ""),
		AlarmNotifyCooldown:     getenvDuration("ALARM_NOTIFY_COOLDOWN", 0),
		AlarmNotifyDedupeWindow: getenvDuration("ALARM_NOTIFY_DEDUP_WINDOW", 0),
		JWTSecret:               getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if cfg.TelemetrySource == "mqtt" && cfg.MQTTBroker == "" {
		log.Fatal("MQTT_BROKER is required when TELEMETRY_SOURCE=mqtt")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvMillis reads an integer number of milliseconds.
func getenvMillis(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
