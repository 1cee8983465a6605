package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"groupware/approval-portal/approval-portal-backend/internal/approval"
	"groupware/approval-portal/approval-portal-backend/internal/config"
	"groupware/approval-portal/approval-portal-backend/internal/directory"
	"groupware/approval-portal/approval-portal-backend/internal/notifications"
	"groupware/approval-portal/approval-portal-backend/internal/notifications/websocket"
)

// ReminderWorker nudges approvers who have documents sitting on their turn.
// It runs on a cron schedule, typically weekday mornings.
type ReminderWorker struct {
	repo      approval.Repository
	directory *directory.Service
	notifier  approval.Notifier
	logger    *zap.Logger
}

func NewReminderWorker(repo approval.Repository, directorySvc *directory.Service, notifier approval.Notifier, logger *zap.Logger) *ReminderWorker {
	return &ReminderWorker{
		repo:      repo,
		directory: directorySvc,
		notifier:  notifier,
		logger:    logger,
	}
}

// Run sends one reminder per employee with at least one document currently
// waiting on them.
func (w *ReminderWorker) Run(ctx context.Context) {
	page := 1
	reminded := 0
	for {
		employees, total, err := w.directory.ListEmployees(ctx, "", page, 100)
		if err != nil {
			w.logger.Error("failed to list employees", zap.Error(err))
			return
		}
		for _, employee := range employees {
			count, err := w.repo.CountInbox(ctx, approval.FilterPendingApproval, employee.ID)
			if err != nil {
				w.logger.Error("failed to count pending documents",
					zap.String("employee_id", employee.ID.String()), zap.Error(err))
				continue
			}
			if count == 0 {
				continue
			}

			err = w.notifier.Notify(ctx, "", approval.Notification{
				Recipients: []uuid.UUID{employee.ID},
				Title:      "Documents awaiting your approval",
				Content:    fmt.Sprintf("You have %d document(s) waiting for your action.", count),
				LinkURL:    "/approval/inbox?filter=PENDING_APPROVAL",
				Metadata:   map[string]any{"pending_count": count},
			})
			if err != nil {
				w.logger.Error("failed to send reminder",
					zap.String("employee_id", employee.ID.String()), zap.Error(err))
				continue
			}
			reminded++
		}
		if int64(page*100) >= total {
			break
		}
		page++
	}
	w.logger.Info("reminder run complete", zap.Int("reminded", reminded))
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to get database handle", zap.Error(err))
	}
	defer sqlDB.Close()

	directoryRepo := directory.NewRepository(db)
	directoryService := directory.NewService(directoryRepo, logger)
	wsManager := websocket.NewManager(logger)
	notificationService := notifications.NewService(db, wsManager, nil, directoryService, logger)
	defer notificationService.Close()
	approvalRepo := approval.NewRepository(db)

	worker := NewReminderWorker(approvalRepo, directoryService, notificationService, logger)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Reminder.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		worker.Run(ctx)
	})
	if err != nil {
		logger.Fatal("Invalid reminder schedule",
			zap.String("schedule", cfg.Reminder.Schedule), zap.Error(err))
	}
	scheduler.Start()
	logger.Info("Reminder worker started", zap.String("schedule", cfg.Reminder.Schedule))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx := scheduler.Stop()
	<-ctx.Done()
	logger.Info("Reminder worker exiting")
}
