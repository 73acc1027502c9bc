package main

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/skaiser/nebenkosten-billing/backend/config"
	"github.com/skaiser/nebenkosten-billing/backend/database"
	"github.com/skaiser/nebenkosten-billing/backend/handlers"
	"github.com/skaiser/nebenkosten-billing/backend/middleware"
	"github.com/skaiser/nebenkosten-billing/backend/services"
)

var dataCollector *services.DataCollector

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC RECOVERED: %v", err)
				log.Printf("Stack trace: %s", debug.Stack())

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s - completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func main() {
	log.Println("Starting Nebenkosten Billing System...")
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	mqttCollector := services.NewMQTTCollector(db)
	modbusCollector := services.NewModbusCollector(db)
	dataCollector = services.NewDataCollector(db, mqttCollector, modbusCollector)
	settlementService := services.NewSettlementService(db)
	pdfGenerator := services.NewPDFGenerator(cfg.StatementsDir)

	go dataCollector.Start()

	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	buildingHandler := handlers.NewBuildingHandler(db)
	unitHandler := handlers.NewUnitHandler(db)
	meterHandler := handlers.NewMeterHandler(db, mqttCollector, modbusCollector)
	costItemHandler := handlers.NewCostItemHandler(db)
	billingHandler := handlers.NewBillingHandler(db, settlementService, pdfGenerator, cfg.StatementsDir)
	dashboardHandler := handlers.NewDashboardHandler(db)
	exportHandler := handlers.NewExportHandler(db)

	r := mux.NewRouter()

	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/health", healthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	api.HandleFunc("/auth/change-password", authHandler.ChangePassword).Methods("POST")
	api.HandleFunc("/debug/status", debugStatusHandler).Methods("GET")

	api.HandleFunc("/buildings", buildingHandler.List).Methods("GET")
	api.HandleFunc("/buildings", buildingHandler.Create).Methods("POST")
	api.HandleFunc("/buildings/{id}", buildingHandler.Get).Methods("GET")
	api.HandleFunc("/buildings/{id}", buildingHandler.Update).Methods("PUT")
	api.HandleFunc("/buildings/{id}", buildingHandler.Delete).Methods("DELETE")

	api.HandleFunc("/units", unitHandler.List).Methods("GET")
	api.HandleFunc("/units", unitHandler.Create).Methods("POST")
	api.HandleFunc("/units/{id}", unitHandler.Get).Methods("GET")
	api.HandleFunc("/units/{id}", unitHandler.Update).Methods("PUT")
	api.HandleFunc("/units/{id}", unitHandler.Delete).Methods("DELETE")

	api.HandleFunc("/meters", meterHandler.List).Methods("GET")
	api.HandleFunc("/meters", meterHandler.Create).Methods("POST")
	api.HandleFunc("/meters/status", meterHandler.GetCollectorStatus).Methods("GET")
	api.HandleFunc("/meters/{id}", meterHandler.Get).Methods("GET")
	api.HandleFunc("/meters/{id}", meterHandler.Update).Methods("PUT")
	api.HandleFunc("/meters/{id}", meterHandler.Delete).Methods("DELETE")
	api.HandleFunc("/meters/{id}/readings", meterHandler.ListReadings).Methods("GET")
	api.HandleFunc("/meters/{id}/readings", meterHandler.CreateReading).Methods("POST")
	api.HandleFunc("/meters/{id}/readings/{readingId}", meterHandler.DeleteReading).Methods("DELETE")

	api.HandleFunc("/cost-items", costItemHandler.List).Methods("GET")
	api.HandleFunc("/cost-items", costItemHandler.Create).Methods("POST")
	api.HandleFunc("/cost-items/{id}", costItemHandler.Get).Methods("GET")
	api.HandleFunc("/cost-items/{id}", costItemHandler.Update).Methods("PUT")
	api.HandleFunc("/cost-items/{id}", costItemHandler.Delete).Methods("DELETE")

	api.HandleFunc("/billing/settings/{buildingId}", billingHandler.GetSettings).Methods("GET")
	api.HandleFunc("/billing/settings/{buildingId}", billingHandler.UpdateSettings).Methods("PUT")

	api.HandleFunc("/settlement/preview", billingHandler.Preview).Methods("POST")
	api.HandleFunc("/settlement/estimate", billingHandler.Estimate).Methods("POST")
	api.HandleFunc("/settlement/generate", billingHandler.Generate).Methods("POST")

	api.HandleFunc("/statements", billingHandler.ListStatements).Methods("GET")
	api.HandleFunc("/statements/{id}", billingHandler.GetStatement).Methods("GET")
	api.HandleFunc("/statements/{id}", billingHandler.DeleteStatement).Methods("DELETE")
	api.HandleFunc("/statements/{id}/pdf", billingHandler.DownloadPDF).Methods("GET")

	api.HandleFunc("/export", exportHandler.ExportData).Methods("GET")

	api.HandleFunc("/dashboard/stats", dashboardHandler.GetStats).Methods("GET")
	api.HandleFunc("/dashboard/consumption-by-building", dashboardHandler.GetConsumptionByBuilding).Methods("GET")
	api.HandleFunc("/dashboard/logs", dashboardHandler.GetLogs).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:4173", "*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	})

	handler := c.Handler(r)

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  180 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.ServerAddress)
	log.Println("Data collector running (15-minute intervals)")
	log.Println("Default credentials: admin / admin123")
	log.Println("IMPORTANT: Change default password after first login!")
	log.Println("===========================================")

	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func debugStatusHandler(w http.ResponseWriter, r *http.Request) {
	debugInfo := dataCollector.GetDebugInfo()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(debugInfo)
}
