package schedule

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pumpops/pumpops-server/cmd/models"
	"github.com/pumpops/pumpops-server/cmd/utils"
	"github.com/pumpops/pumpops-server/service/push"
	"gorm.io/gorm"
)

type ScheduleHandler struct {
	db       *gorm.DB
	notifier *push.Notifier
}

func NewScheduleHandler(db *gorm.DB, notifier *push.Notifier) *ScheduleHandler {
	return &ScheduleHandler{db: db, notifier: notifier}
}

func (h *ScheduleHandler) RegisterRoutes(router *mux.Router) {
	scheduleRouter := router.PathPrefix("/schedules").Subrouter()
	scheduleRouter.HandleFunc("", utils.AuthMiddleware(h.CreateSchedule)).Methods("POST")
	scheduleRouter.HandleFunc("", utils.AuthMiddleware(h.GetSchedules)).Methods("GET")
	scheduleRouter.HandleFunc("/{id}", utils.AuthMiddleware(h.GetSchedule)).Methods("GET")
	scheduleRouter.HandleFunc("/{id}/status", utils.AuthMiddleware(h.UpdateStatus)).Methods("PATCH")
	scheduleRouter.HandleFunc("/operator/{operatorId}", utils.AuthMiddleware(h.GetOperatorSchedules)).Methods("GET")
}

// CreateSchedule books a pump job and notifies the assigned operator.
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var bookingRequest struct {
		PumpID     uint      `json:"pump_id"`
		OperatorID uint      `json:"operator_id"`
		ClientName string    `json:"client_name"`
		Site       string    `json:"site"`
		StartTime  time.Time `json:"start_time"`
		EndTime    time.Time `json:"end_time"`
		Volume     float64   `json:"volume"`
		Notes      string    `json:"notes"`
	}

	if err := json.NewDecoder(r.Body).Decode(&bookingRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if bookingRequest.ClientName == "" || bookingRequest.Site == "" {
		http.Error(w, "Client name and site are required", http.StatusBadRequest)
		return
	}
	if !bookingRequest.EndTime.After(bookingRequest.StartTime) {
		http.Error(w, "End time must be after start time", http.StatusBadRequest)
		return
	}

	tx := h.db.Begin()

	var pump models.Pump
	if err := tx.First(&pump, bookingRequest.PumpID).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Pump not found", http.StatusNotFound)
		return
	}

	// Reject overlapping bookings for the same pump
	var existing models.Schedule
	if err := tx.Where("pump_id = ? AND status != ? AND start_time < ? AND end_time > ?",
		bookingRequest.PumpID, "cancelled", bookingRequest.EndTime, bookingRequest.StartTime).
		First(&existing).Error; err == nil {
		tx.Rollback()
		http.Error(w, "Pump is already booked for this window", http.StatusConflict)
		return
	}

	schedule := models.Schedule{
		PumpID:     bookingRequest.PumpID,
		OperatorID: bookingRequest.OperatorID,
		ClientName: bookingRequest.ClientName,
		Site:       bookingRequest.Site,
		StartTime:  bookingRequest.StartTime,
		EndTime:    bookingRequest.EndTime,
		Volume:     bookingRequest.Volume,
		Status:     "scheduled",
		Notes:      bookingRequest.Notes,
	}

	if err := tx.Create(&schedule).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating schedule", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error completing booking", http.StatusInternalServerError)
		return
	}

	h.db.Preload("Pump").Preload("Operator").First(&schedule, schedule.ID)

	go func() {
		result := h.notifier.ScheduleCreated(context.Background(), schedule.OperatorID, schedule.Site, schedule.StartTime)
		if !result.Success {
			log.Printf("Schedule notification failed: %s", result.Error)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}

func (h *ScheduleHandler) GetSchedules(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 100

	query := h.db.Model(&models.Schedule{}).Preload("Pump").Preload("Operator")

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if date := r.URL.Query().Get("date"); date != "" {
		query = query.Where("DATE(start_time) = ?", date)
	}

	var total int64
	query.Count(&total)

	var schedules []models.Schedule
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("start_time DESC").Find(&schedules).Error; err != nil {
		http.Error(w, "Error retrieving schedules", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"schedules":   schedules,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	scheduleID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
		return
	}

	var schedule models.Schedule
	if err := h.db.Preload("Pump").Preload("Operator").First(&schedule, scheduleID).Error; err != nil {
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}

func (h *ScheduleHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	scheduleID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid schedule ID", http.StatusBadRequest)
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
	case "scheduled", "in_progress", "completed", "cancelled":
	default:
		http.Error(w, "Invalid schedule status", http.StatusBadRequest)
		return
	}

	var schedule models.Schedule
	if err := h.db.First(&schedule, scheduleID).Error; err != nil {
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}

	schedule.Status = statusRequest.Status
	if err := h.db.Save(&schedule).Error; err != nil {
		http.Error(w, "Error updating schedule", http.StatusInternalServerError)
		return
	}

	// A completed job means its report is ready for dispatcher review.
	if schedule.Status == "completed" {
		go func(site string) {
			var ids []uint
			if err := h.db.Model(&models.User{}).Where("role = ?", "dispatcher").Pluck("id", &ids).Error; err != nil {
				log.Printf("Error loading dispatchers for report notification: %v", err)
				return
			}
			result := h.notifier.ReportCreated(context.Background(), ids, site)
			if !result.Success {
				log.Printf("Report notification failed: %s", result.Error)
			}
		}(schedule.Site)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}

func (h *ScheduleHandler) GetOperatorSchedules(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	operatorID, err := strconv.ParseUint(vars["operatorId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid operator ID", http.StatusBadRequest)
		return
	}

	var schedules []models.Schedule
	if err := h.db.Where("operator_id = ?", operatorID).
		Preload("Pump").Order("start_time DESC").Find(&schedules).Error; err != nil {
		http.Error(w, "Error retrieving schedules", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedules)
}
