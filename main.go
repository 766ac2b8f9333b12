package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voice-memo/backend/internal/api"
	"github.com/voice-memo/backend/internal/auth"
	"github.com/voice-memo/backend/internal/config"
	"github.com/voice-memo/backend/internal/db"
	"github.com/voice-memo/backend/internal/job"
	"github.com/voice-memo/backend/internal/summarize"
	"github.com/voice-memo/backend/internal/transcribe"
)

func main() {
	cfg := config.Load()

	// Ensure data directory exists
	os.MkdirAll(cfg.DataPath, 0755)

	// Initialize database
	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Ensure admin user exists
	if err := database.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	log.Printf("Admin user ensured: %s", cfg.AdminUsername)

	// Initialize JWT service
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	// Provider clients; keys resolve from settings with env fallback so
	// they can be changed at runtime
	transcriber := transcribe.NewClient(func() string {
		return database.GetSetting("deepgram_api_key", cfg.DeepgramKey)
	})
	summarizer := summarize.NewClient(func() (string, string) {
		return database.GetSetting("openai_api_key", cfg.OpenAIKey),
			database.GetSetting("summary_model", cfg.SummaryModel)
	})

	// Job queue + summary task
	jobQueue := job.NewJobQueue(database.DB())
	summaryService := summarize.NewService(database, summarizer)
	jobQueue.RegisterHandler(job.JobSummarize, summaryService.HandleJob)

	// Reconciliation sweep for records stuck in processing
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	sweeper := job.NewSweeper(jobQueue, database, 5*time.Minute, 2*time.Minute)
	go sweeper.Run(sweepCtx)

	// Create router
	router := api.NewRouter(database, jwtService, cfg, jobQueue, transcriber)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Starting server on %s", addr)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancelSweep()
		jobQueue.Stop()
		database.Close()
		os.Exit(0)
	}()

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
