package reports

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"watergrid-edge/internal/auth"
)

// Handler serves billing report queries and exports.
type Handler struct {
	service *Service
}

// NewHandler constructs a report handler.
func NewHandler(service *Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("reports handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP handles GET /api/v1/reports/billing.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/api/v1/reports/billing" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	supplyLineID := r.URL.Query().Get("supply_line_id")
	if supplyLineID == "" {
		http.Error(w, "supply_line_id is required", http.StatusBadRequest)
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	report, err := h.service.Build(r.Context(), supplyLineID, from, to)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, "build report error", http.StatusInternalServerError)
		return
	}

	// A vendor token only sees its own supply lines.
	if vendorID := auth.VendorIDFromContext(r.Context()); vendorID != "" &&
		auth.RoleFromContext(r.Context()) == auth.RoleVendor && report.VendorID != vendorID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	case "pdf":
		data, err := BuildBillingPDF(report)
		if err != nil {
			http.Error(w, "render pdf error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="billing-`+report.SupplyLineID+`.pdf"`)
		_, _ = w.Write(data)
	case "xlsx":
		data, err := BuildBillingXLSX(report)
		if err != nil {
			http.Error(w, "render xlsx error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="billing-`+report.SupplyLineID+`.xlsx"`)
		_, _ = w.Write(data)
	default:
		http.Error(w, "unsupported format", http.StatusBadRequest)
	}
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}
