package pump

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pumpops/pumpops-server/cmd/models"
	"github.com/pumpops/pumpops-server/cmd/utils"
	"github.com/pumpops/pumpops-server/service/push"
	"gorm.io/gorm"
)

type PumpHandler struct {
	db       *gorm.DB
	notifier *push.Notifier
}

func NewPumpHandler(db *gorm.DB, notifier *push.Notifier) *PumpHandler {
	return &PumpHandler{db: db, notifier: notifier}
}

func (h *PumpHandler) RegisterRoutes(router *mux.Router) {
	pumpRouter := router.PathPrefix("/pumps").Subrouter()
	pumpRouter.HandleFunc("", utils.AuthMiddleware(h.CreatePump)).Methods("POST")
	pumpRouter.HandleFunc("", utils.AuthMiddleware(h.GetPumps)).Methods("GET")
	pumpRouter.HandleFunc("/{id}", utils.AuthMiddleware(h.GetPump)).Methods("GET")
	pumpRouter.HandleFunc("/{id}", utils.AuthMiddleware(h.UpdatePump)).Methods("PUT")
	pumpRouter.HandleFunc("/{id}/status", utils.AuthMiddleware(h.UpdateStatus)).Methods("PATCH")
	pumpRouter.HandleFunc("/{id}", utils.AuthMiddleware(h.DeletePump)).Methods("DELETE")
}

func (h *PumpHandler) CreatePump(w http.ResponseWriter, r *http.Request) {
	var pump models.Pump
	if err := json.NewDecoder(r.Body).Decode(&pump); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if pump.Name == "" || pump.Registration == "" {
		http.Error(w, "Name and registration are required", http.StatusBadRequest)
		return
	}

	if pump.Status == "" {
		pump.Status = models.PumpAvailable
	}

	if err := h.db.Create(&pump).Error; err != nil {
		http.Error(w, "Error creating pump", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pump)
}

func (h *PumpHandler) GetPumps(w http.ResponseWriter, r *http.Request) {
	var pumps []models.Pump
	query := h.db

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Find(&pumps).Error; err != nil {
		http.Error(w, "Error retrieving pumps", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pumps)
}

func (h *PumpHandler) GetPump(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pumpID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid pump ID", http.StatusBadRequest)
		return
	}

	var pump models.Pump
	if err := h.db.First(&pump, pumpID).Error; err != nil {
		http.Error(w, "Pump not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pump)
}

func (h *PumpHandler) UpdatePump(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pumpID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid pump ID", http.StatusBadRequest)
		return
	}

	var pump models.Pump
	if err := h.db.First(&pump, pumpID).Error; err != nil {
		http.Error(w, "Pump not found", http.StatusNotFound)
		return
	}

	var updates models.Pump
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pump.Name = updates.Name
	pump.PumpType = updates.PumpType
	pump.BoomLength = updates.BoomLength
	pump.Notes = updates.Notes

	if err := h.db.Save(&pump).Error; err != nil {
		http.Error(w, "Error updating pump", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pump)
}

// UpdateStatus moves a pump between available, on_job and maintenance and
// notifies dispatchers.
func (h *PumpHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pumpID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid pump ID", http.StatusBadRequest)
		return
	}

	var statusRequest struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&statusRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch statusRequest.Status {
	case models.PumpAvailable, models.PumpOnJob, models.PumpMaintenance:
	default:
		http.Error(w, "Invalid pump status", http.StatusBadRequest)
		return
	}

	var pump models.Pump
	if err := h.db.First(&pump, pumpID).Error; err != nil {
		http.Error(w, "Pump not found", http.StatusNotFound)
		return
	}

	pump.Status = statusRequest.Status
	if err := h.db.Save(&pump).Error; err != nil {
		http.Error(w, "Error updating pump status", http.StatusInternalServerError)
		return
	}

	go func() {
		ids, err := dispatcherIDs(h.db)
		if err != nil {
			log.Printf("Error loading dispatchers for pump status notification: %v", err)
			return
		}
		result := h.notifier.PumpStatusChanged(context.Background(), ids, pump.Name, pump.Status)
		if !result.Success {
			log.Printf("Pump status notification failed: %s", result.Error)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pump)
}

func (h *PumpHandler) DeletePump(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pumpID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid pump ID", http.StatusBadRequest)
		return
	}

	result := h.db.Delete(&models.Pump{}, pumpID)
	if result.Error != nil {
		http.Error(w, "Error deleting pump", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Pump not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Pump deleted successfully",
	})
}

func dispatcherIDs(db *gorm.DB) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.User{}).Where("role = ?", "dispatcher").Pluck("id", &ids).Error
	return ids, err
}
