package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/attendance"
	"classtrack/internal/config"
	"classtrack/internal/proximity"
	"classtrack/internal/queue"
	"classtrack/internal/store"
	"classtrack/internal/verification"
)

// Worker consumes audit messages for degraded joins, re-queries the beacon
// collaborator, and records the outcome.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:audits")
	}

	repo := attendance.NewRepository(db.Client)
	verify := proximity.New(cfg.VerifyServiceURL, cfg.VerifySkip)

	// Check verification service health on startup
	if !cfg.VerifySkip {
		if err := verify.Health(ctx); err != nil {
			log.Printf("WARNING: verification service not available: %v", err)
			log.Println("Worker will retry audits when messages arrive")
		} else {
			log.Println("verification service connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != verification.AuditMessageType {
			continue
		}

		var m verification.AuditMessage
		if err := json.Unmarshal(msg.Body, &m); err != nil {
			log.Printf("bad audit message: %v", err)
			continue
		}
		log.Printf("auditing degraded join: student %s, session %s", m.StudentID, m.SessionID)

		result, err := verify.CheckBeacon(ctx, m.SessionID)
		if err != nil {
			log.Printf("beacon check failed for session %s: %v", m.SessionID, err)
			continue
		}

		audit := attendance.Audit{
			ID:           uuid.NewString(),
			AttendanceID: m.AttendanceID,
			SessionID:    m.SessionID,
			StudentID:    m.StudentID,
			Present:      result.Present,
			RSSI:         result.RSSI,
			Confidence:   result.Confidence,
			CheckedAt:    time.Now(),
		}
		if err := repo.InsertAudit(ctx, audit); err != nil {
			log.Printf("audit insert failed for session %s: %v", m.SessionID, err)
			continue
		}
		log.Printf("audit recorded for student %s: present=%v rssi=%d", m.StudentID, result.Present, result.RSSI)

		time.Sleep(10 * time.Millisecond) // Small delay between processing
	}

	log.Println("worker stopped")
}
