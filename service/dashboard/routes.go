package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pumpops/pumpops-server/cmd/models"
	"github.com/pumpops/pumpops-server/cmd/utils"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

type DashboardStats struct {
	TotalPumps          int64   `json:"total_pumps"`
	PumpsAvailable      int64   `json:"pumps_available"`
	PumpsOnJob          int64   `json:"pumps_on_job"`
	JobsThisWeek        int64   `json:"jobs_this_week"`
	OutstandingInvoices int64   `json:"outstanding_invoices"`
	Revenue             float64 `json:"revenue"`
	Expenses            float64 `json:"expenses"`
}

func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	dashboardRouter := router.PathPrefix("/dashboard").Subrouter()
	dashboardRouter.HandleFunc("/stats", utils.AuthMiddleware(h.GetDashboardStats)).Methods("GET")
}

func (h *DashboardHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	var stats DashboardStats

	h.db.Model(&models.Pump{}).Count(&stats.TotalPumps)
	h.db.Model(&models.Pump{}).Where("status = ?", models.PumpAvailable).Count(&stats.PumpsAvailable)
	h.db.Model(&models.Pump{}).Where("status = ?", models.PumpOnJob).Count(&stats.PumpsOnJob)

	weekStart := time.Now().AddDate(0, 0, -7)
	h.db.Model(&models.Schedule{}).Where("start_time >= ?", weekStart).Count(&stats.JobsThisWeek)

	h.db.Model(&models.Invoice{}).
		Where("status IN ?", []string{models.InvoiceSent, models.InvoiceOverdue}).
		Count(&stats.OutstandingInvoices)

	h.db.Model(&models.Invoice{}).Where("status = ?", models.InvoicePaid).
		Select("COALESCE(SUM(amount), 0)").Scan(&stats.Revenue)

	h.db.Model(&models.Expense{}).
		Select("COALESCE(SUM(amount), 0)").Scan(&stats.Expenses)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
