package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/neuro-mcq/backend/internal/auth"
	"github.com/neuro-mcq/backend/internal/cache"
	"github.com/neuro-mcq/backend/internal/casegen"
	"github.com/neuro-mcq/backend/internal/cases"
	"github.com/neuro-mcq/backend/internal/config"
	"github.com/neuro-mcq/backend/internal/database"
	"github.com/neuro-mcq/backend/internal/mcqs"
	"github.com/neuro-mcq/backend/internal/middleware"
	"github.com/neuro-mcq/backend/internal/highyield"
	"github.com/neuro-mcq/backend/internal/review"
	"github.com/rs/cors"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: reading .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Conversion cache: Redis when configured, otherwise in-process
	var caseCache cache.Cache = cache.NewMemoryCache()
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, "neuro-mcq:")
		if err != nil {
			log.Printf("WARN: redis unavailable, using memory cache: %v", err)
		} else {
			defer rc.Close()
			caseCache = rc
		}
	}

	llm, model := casegen.NewClient(cfg.Generator)
	converter := casegen.NewConverter(llm, model, caseCache, cfg.Conversion)

	// Initialize services
	userStore := auth.NewStore(db)
	authn := middleware.NewAuth([]byte(cfg.JWTSecret), userStore)

	mcqService := mcqs.NewService(mcqs.NewStore(db))
	mcqService.SetLLM(llm)
	reviewService := review.NewService(review.NewStore(db), mcqService)
	mcqService.SetStudyTracker(reviewService)
	caseService := cases.NewService(cases.NewStore(db), mcqService, converter, cfg.Conversion)
	highYieldService := highyield.NewService(highyield.NewStore(db))

	// Initialize handlers
	authHandler := auth.NewHandler(userStore, authn)
	mcqHandler := mcqs.NewHandler(mcqService, mcqs.NewMaintenance(mcqs.NewStore(db)))
	reviewHandler := review.NewHandler(reviewService)
	caseHandler := cases.NewHandler(caseService)
	highYieldHandler := highyield.NewHandler(highYieldService)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(authn.AuthMiddleware)
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")
	protected.HandleFunc("/dashboard", mcqHandler.Dashboard).Methods("GET")

	protected.HandleFunc("/mcqs", mcqHandler.List).Methods("GET")
	protected.HandleFunc("/mcqs/subspecialties", mcqHandler.Subspecialties).Methods("GET")
	protected.HandleFunc("/mcqs/random", mcqHandler.Random).Methods("GET")
	protected.HandleFunc("/mcqs/exam", mcqHandler.SubmitExam).Methods("POST")
	protected.HandleFunc("/mcqs/weakness-test", mcqHandler.WeaknessTest).Methods("GET")
	protected.HandleFunc("/mcqs/bookmarks", mcqHandler.Bookmarks).Methods("GET")
	protected.HandleFunc("/mcqs/hidden", mcqHandler.Hidden).Methods("GET")
	protected.HandleFunc("/mcqs/{id:[0-9]+}", mcqHandler.Get).Methods("GET")
	protected.HandleFunc("/mcqs/{id:[0-9]+}/check", mcqHandler.CheckAnswer).Methods("POST")
	protected.HandleFunc("/mcqs/{id:[0-9]+}/bookmark", mcqHandler.ToggleBookmark).Methods("POST")
	protected.HandleFunc("/mcqs/{id:[0-9]+}/note", mcqHandler.SaveNote).Methods("PUT")
	protected.HandleFunc("/mcqs/{id:[0-9]+}/note", mcqHandler.DeleteNote).Methods("DELETE")
	protected.HandleFunc("/mcqs/{id:[0-9]+}/hide", mcqHandler.Hide).Methods("POST")
	protected.HandleFunc("/mcqs/{id:[0-9]+}/hide", mcqHandler.Unhide).Methods("DELETE")
	protected.HandleFunc("/mcqs/{id:[0-9]+}/report", mcqHandler.Report).Methods("POST")
	protected.HandleFunc("/mcqs/{id:[0-9]+}/convert-to-case", caseHandler.ConvertToCase).Methods("POST")

	protected.HandleFunc("/flashcards", reviewHandler.ListFlashcards).Methods("GET")
	protected.HandleFunc("/flashcards", reviewHandler.CreateFlashcard).Methods("POST")
	protected.HandleFunc("/flashcards/stats", reviewHandler.Stats).Methods("GET")
	protected.HandleFunc("/flashcards/{id:[0-9]+}/review", reviewHandler.ReviewFlashcard).Methods("POST")
	protected.HandleFunc("/flashcards/{id:[0-9]+}", reviewHandler.DeleteFlashcard).Methods("DELETE")
	protected.HandleFunc("/streak", reviewHandler.Streak).Methods("GET")

	protected.HandleFunc("/case-sessions", caseHandler.ListSessions).Methods("GET")
	protected.HandleFunc("/case-sessions/{id:[0-9]+}", caseHandler.GetSession).Methods("GET")
	protected.HandleFunc("/case-sessions/{id:[0-9]+}", caseHandler.DeleteSession).Methods("DELETE")
	protected.HandleFunc("/case-sessions/{id:[0-9]+}/retry", caseHandler.RetrySession).Methods("POST")

	protected.HandleFunc("/high-yield", highYieldHandler.Specialties).Methods("GET")
	protected.HandleFunc("/high-yield/{specialty}", highYieldHandler.Specialty).Methods("GET")
	protected.HandleFunc("/high-yield/{specialty}/{topic}", highYieldHandler.Specialty).Methods("GET")

	// Staff routes
	staff := protected.PathPrefix("/staff").Subrouter()
	staff.Use(authn.RequireStaff)
	staff.HandleFunc("/reports", mcqHandler.Reports).Methods("GET")
	staff.HandleFunc("/reports/{id:[0-9]+}/resolve", mcqHandler.ResolveReport).Methods("POST")
	staff.HandleFunc("/mcqs/{id:[0-9]+}/question", mcqHandler.UpdateQuestion).Methods("PUT")
	staff.HandleFunc("/mcqs/{id:[0-9]+}/options", mcqHandler.UpdateOptions).Methods("PUT")
	staff.HandleFunc("/mcqs/{id:[0-9]+}/explanation", mcqHandler.UpdateExplanation).Methods("PUT")
	staff.HandleFunc("/mcqs/{id:[0-9]+}/image", mcqHandler.UpdateImage).Methods("PUT")
	staff.HandleFunc("/mcqs/{id:[0-9]+}/metadata", mcqHandler.UpdateMetadata).Methods("PUT")
	staff.HandleFunc("/mcqs/{id:[0-9]+}/revise/question", mcqHandler.ReviseQuestion).Methods("POST")
	staff.HandleFunc("/mcqs/{id:[0-9]+}/revise/options", mcqHandler.ReviseOptions).Methods("POST")
	staff.HandleFunc("/mcqs/{id:[0-9]+}/revise/explanation", mcqHandler.ReviseExplanation).Methods("POST")
	staff.HandleFunc("/mcqs/{id:[0-9]+}", mcqHandler.Delete).Methods("DELETE")
	staff.HandleFunc("/mcqs/export", mcqHandler.Export).Methods("GET")
	staff.HandleFunc("/mcqs/import", mcqHandler.Import).Methods("POST")
	staff.HandleFunc("/mcqs/placeholders", mcqHandler.Placeholders).Methods("GET")

	staff.HandleFunc("/cases/cache/{id:[0-9]+}", caseHandler.ClearCache).Methods("DELETE")
	staff.HandleFunc("/cases/cache", caseHandler.ClearAllCaches).Methods("DELETE")
	staff.HandleFunc("/cases/tracking/{tracking_id}", caseHandler.Tracking).Methods("GET")
	staff.HandleFunc("/cases/events", caseHandler.RecentEvents).Methods("GET")
	staff.HandleFunc("/cases/integrity", caseHandler.IntegrityCheck).Methods("GET")
	staff.HandleFunc("/cases/stats", caseHandler.Stats).Methods("GET")

	staff.HandleFunc("/high-yield/specialties", highYieldHandler.CreateSpecialty).Methods("POST")
	staff.HandleFunc("/high-yield/specialties/{id:[0-9]+}", highYieldHandler.UpdateSpecialty).Methods("PUT")
	staff.HandleFunc("/high-yield/specialties/{id:[0-9]+}", highYieldHandler.DeleteSpecialty).Methods("DELETE")
	staff.HandleFunc("/high-yield/specialties/{id:[0-9]+}/topics", highYieldHandler.CreateTopic).Methods("POST")
	staff.HandleFunc("/high-yield/topics/{id:[0-9]+}", highYieldHandler.UpdateTopic).Methods("PUT")
	staff.HandleFunc("/high-yield/topics/{id:[0-9]+}", highYieldHandler.DeleteTopic).Methods("DELETE")
	staff.HandleFunc("/high-yield/topics/{id:[0-9]+}/images", highYieldHandler.AddSectionImage).Methods("POST")
	staff.HandleFunc("/high-yield/images/{id:[0-9]+}", highYieldHandler.DeleteSectionImage).Methods("DELETE")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	go caseService.StartConversionWorker(ctx)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: c.Handler(r)}
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server")
		srv.Shutdown(context.Background())
	}()

	log.Printf("Server starting on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
