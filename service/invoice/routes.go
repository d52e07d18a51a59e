package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pumpops/pumpops-server/cmd/models"
	"github.com/pumpops/pumpops-server/cmd/utils"
	"github.com/pumpops/pumpops-server/service/push"
	"gorm.io/gorm"
)

type InvoiceHandler struct {
	db       *gorm.DB
	notifier *push.Notifier
}

func NewInvoiceHandler(db *gorm.DB, notifier *push.Notifier) *InvoiceHandler {
	return &InvoiceHandler{db: db, notifier: notifier}
}

func (h *InvoiceHandler) RegisterRoutes(router *mux.Router) {
	invoiceRouter := router.PathPrefix("/invoices").Subrouter()
	invoiceRouter.HandleFunc("", utils.AuthMiddleware(h.CreateInvoice)).Methods("POST")
	invoiceRouter.HandleFunc("", utils.AuthMiddleware(h.GetInvoices)).Methods("GET")
	invoiceRouter.HandleFunc("/{id}", utils.AuthMiddleware(h.GetInvoice)).Methods("GET")
	invoiceRouter.HandleFunc("/{id}/status", utils.AuthMiddleware(h.UpdateStatus)).Methods("PATCH")
}

// CreateInvoice opens a draft invoice, optionally tied to a schedule.
func (h *InvoiceHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var createRequest struct {
		ScheduleID uint      `json:"schedule_id"`
		ClientName string    `json:"client_name"`
		Amount     float64   `json:"amount"`
		DueDate    time.Time `json:"due_date"`
	}

	if err := json.NewDecoder(r.Body).Decode(&createRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if createRequest.ClientName == "" || createRequest.Amount <= 0 {
		http.Error(w, "Client name and a positive amount are required", http.StatusBadRequest)
		return
	}

	if createRequest.DueDate.IsZero() {
		createRequest.DueDate = time.Now().Add(30 * 24 * time.Hour)
	}

	invoice := models.Invoice{
		Number:     fmt.Sprintf("INV-%s", uuid.New().String()[:8]),
		ScheduleID: createRequest.ScheduleID,
		ClientName: createRequest.ClientName,
		Amount:     createRequest.Amount,
		Status:     models.InvoiceDraft,
		DueDate:    createRequest.DueDate,
	}

	if err := h.db.Create(&invoice).Error; err != nil {
		http.Error(w, "Error creating invoice", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoice)
}

func (h *InvoiceHandler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 100

	query := h.db.Model(&models.Invoice{})

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	query.Count(&total)

	var invoices []models.Invoice
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("due_date ASC").Find(&invoices).Error; err != nil {
		http.Error(w, "Error retrieving invoices", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"invoices":  invoices,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *InvoiceHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	invoiceID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid invoice ID", http.StatusBadRequest)
		return
	}

	var invoice models.Invoice
	if err := h.db.Preload("Schedule").First(&invoice, invoiceID).Error; err != nil {
		http.Error(w, "Invoice not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoice)
}

// UpdateStatus walks an invoice through draft -> sent -> paid/overdue and
// broadcasts a financial update.
func (h *InvoiceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	invoiceID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid invoice ID", http.StatusBadRequest)
		return
	}

	var statusRequest struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&statusRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var invoice models.Invoice
	if err := h.db.First(&invoice, invoiceID).Error; err != nil {
		http.Error(w, "Invoice not found", http.StatusNotFound)
		return
	}

	if !validTransition(invoice.Status, statusRequest.Status) {
		http.Error(w, fmt.Sprintf("Cannot move invoice from %s to %s", invoice.Status, statusRequest.Status), http.StatusBadRequest)
		return
	}

	now := time.Now()
	invoice.Status = statusRequest.Status
	switch statusRequest.Status {
	case models.InvoiceSent:
		invoice.SentAt = &now
	case models.InvoicePaid:
		invoice.PaidAt = &now
	}

	if err := h.db.Save(&invoice).Error; err != nil {
		http.Error(w, "Error updating invoice", http.StatusInternalServerError)
		return
	}

	go func() {
		result := h.notifier.FinancialUpdate(context.Background(),
			fmt.Sprintf("Invoice %s is now %s", invoice.Number, invoice.Status))
		if !result.Success {
			log.Printf("Invoice notification failed: %s", result.Error)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoice)
}

func validTransition(from, to string) bool {
	switch from {
	case models.InvoiceDraft:
		return to == models.InvoiceSent
	case models.InvoiceSent:
		return to == models.InvoicePaid || to == models.InvoiceOverdue
	case models.InvoiceOverdue:
		return to == models.InvoicePaid
	default:
		return false
	}
}
