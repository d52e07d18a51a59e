package expense

import (
	"context"
	"encoding/json"
	"fmt"
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

type ExpenseHandler struct {
	db       *gorm.DB
	notifier *push.Notifier
}

func NewExpenseHandler(db *gorm.DB, notifier *push.Notifier) *ExpenseHandler {
	return &ExpenseHandler{db: db, notifier: notifier}
}

func (h *ExpenseHandler) RegisterRoutes(router *mux.Router) {
	expenseRouter := router.PathPrefix("/expenses").Subrouter()
	expenseRouter.HandleFunc("", utils.AuthMiddleware(h.CreateExpense)).Methods("POST")
	expenseRouter.HandleFunc("", utils.AuthMiddleware(h.GetExpenses)).Methods("GET")
	expenseRouter.HandleFunc("/{id}", utils.AuthMiddleware(h.GetExpense)).Methods("GET")
	expenseRouter.HandleFunc("/{id}", utils.AuthMiddleware(h.DeleteExpense)).Methods("DELETE")
}

func (h *ExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var expense models.Expense
	if err := json.NewDecoder(r.Body).Decode(&expense); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if expense.Category == "" || expense.Amount <= 0 {
		http.Error(w, "Category and a positive amount are required", http.StatusBadRequest)
		return
	}

	expense.RecordedBy = userID
	if expense.IncurredAt.IsZero() {
		expense.IncurredAt = time.Now()
	}

	if err := h.db.Create(&expense).Error; err != nil {
		http.Error(w, "Error creating expense", http.StatusInternalServerError)
		return
	}

	go func() {
		result := h.notifier.FinancialUpdate(context.Background(),
			fmt.Sprintf("New %s expense of %.2f recorded", expense.Category, expense.Amount))
		if !result.Success {
			log.Printf("Expense notification failed: %s", result.Error)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(expense)
}

func (h *ExpenseHandler) GetExpenses(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 100

	query := h.db.Model(&models.Expense{}).Preload("Pump")

	if category := r.URL.Query().Get("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if pumpID := r.URL.Query().Get("pump_id"); pumpID != "" {
		query = query.Where("pump_id = ?", pumpID)
	}

	var total int64
	query.Count(&total)

	var expenses []models.Expense
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("incurred_at DESC").Find(&expenses).Error; err != nil {
		http.Error(w, "Error retrieving expenses", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"expenses":  expenses,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *ExpenseHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	expenseID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid expense ID", http.StatusBadRequest)
		return
	}

	var expense models.Expense
	if err := h.db.Preload("Pump").First(&expense, expenseID).Error; err != nil {
		http.Error(w, "Expense not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(expense)
}

func (h *ExpenseHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	expenseID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid expense ID", http.StatusBadRequest)
		return
	}

	result := h.db.Delete(&models.Expense{}, expenseID)
	if result.Error != nil {
		http.Error(w, "Error deleting expense", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Expense not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Expense deleted successfully",
	})
}
