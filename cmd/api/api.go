package api

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pumpops/pumpops-server/service/dashboard"
	"github.com/pumpops/pumpops-server/service/expense"
	"github.com/pumpops/pumpops-server/service/invoice"
	"github.com/pumpops/pumpops-server/service/pump"
	"github.com/pumpops/pumpops-server/service/push"
	"github.com/pumpops/pumpops-server/service/schedule"
	"github.com/pumpops/pumpops-server/service/user"
	"github.com/pumpops/pumpops-server/service/worker"
	"gorm.io/gorm"
)

// Cache generation name; bump when the static asset set changes.
const cacheName = "pumpops-static-v1"

var staticAssets = []string{
	"index.html",
	"app.js",
	"styles.css",
	"icons/icon-192x192.png",
	"icons/badge-72x72.png",
}

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	origin := os.Getenv("APP_ORIGIN")
	if origin == "" {
		origin = "http://localhost:8080"
	}

	gateway := worker.NewGateway(origin)

	pushHandler := push.NewPushHandler(s.db, gateway)
	pushHandler.RegisterRoutes(subrouter)
	notifier := push.NewNotifier(pushHandler)

	assetDir := os.Getenv("STATIC_DIR")
	if assetDir == "" {
		assetDir = "static"
	}
	runtime := worker.NewRuntime(cacheName, origin, worker.DirFetcher(assetDir), gateway, gateway)
	gateway.Attach(runtime, pushHandler)

	if err := runtime.HandleInstall(staticAssets); err != nil {
		// A failed install leaves asset serving on network fallback only.
		log.Printf("Worker install failed: %v", err)
	} else if _, err := runtime.HandleActivate(); err != nil {
		log.Printf("Worker activate failed: %v", err)
	}

	assetHandler := worker.NewAssetHandler(runtime)
	assetHandler.RegisterRoutes(router)
	gateway.RegisterRoutes(router)

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	pumpHandler := pump.NewPumpHandler(s.db, notifier)
	pumpHandler.RegisterRoutes(subrouter)

	scheduleHandler := schedule.NewScheduleHandler(s.db, notifier)
	scheduleHandler.RegisterRoutes(subrouter)

	expenseHandler := expense.NewExpenseHandler(s.db, notifier)
	expenseHandler.RegisterRoutes(subrouter)

	invoiceHandler := invoice.NewInvoiceHandler(s.db, notifier)
	invoiceHandler.RegisterRoutes(subrouter)

	dashboardHandler := dashboard.NewDashboardHandler(s.db)
	dashboardHandler.RegisterRoutes(subrouter)

	// Permissive preflight for the dispatch endpoint and the rest of the API.
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, cors(router))
}
