package service

import (
	"context"
	"fmt"
	"log/slog"
	"smartbank/internal/config"
	"smartbank/internal/domain"
	"sync"
	"time"
)

type NotificationType string

const (
	NotificationEmail NotificationType = "email"
	NotificationSlack NotificationType = "slack"
)

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// DropRecorder counts alerts lost to a full queue. *metrics.MetricsCollector satisfies it.
type DropRecorder interface {
	RecordAlertDropped()
}

// NotificationService delivers fraud alerts on a small worker pool so that
// a slow mail or chat backend never holds up a transfer.
type NotificationService struct {
	emailService EmailService
	slackService SlackService
	slackChannel string
	securityMail string
	messageQueue chan NotificationMessage
	workers      int
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	drops        DropRecorder
	logger       *slog.Logger
}

type NotificationMessage struct {
	Type      NotificationType
	Recipient string
	Subject   string
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time
}

type EmailService interface {
	SendEmail(to, subject, body string) error
}

type SlackService interface {
	SendMessage(channel, message string) error
}

func NewNotificationService(
	emailService EmailService,
	slackService SlackService,
	cfg config.Notification,
	drops DropRecorder,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}

	service := &NotificationService{
		emailService: emailService,
		slackService: slackService,
		slackChannel: cfg.SlackChannel,
		securityMail: cfg.SecurityMail,
		messageQueue: make(chan NotificationMessage, cfg.QueueSize),
		workers:      cfg.Workers,
		shutdownChan: make(chan struct{}),
		drops:        drops,
		logger:       logger,
	}

	service.startWorkers()

	return service
}

// NotifyFlagged queues a fraud alert for a committed, flagged transfer. It
// never blocks; when the queue is full the alert is dropped and logged.
func (s *NotificationService) NotifyFlagged(ctx context.Context, tx *domain.Transaction, source domain.VerdictSource) {
	severity := SeverityMedium
	if source == domain.SourceRule {
		severity = SeverityHigh
	}

	message := fmt.Sprintf(
		"🚨 Fraud Alert!\nTransaction ID: %s\nFrom: %s\nTo: %s\nAmount: ₹%s\nReason: %s",
		tx.ID, tx.FromAccountID, tx.ToAccountID, tx.Amount.StringFixed(2), tx.FlagReason,
	)
	metadata := map[string]string{
		"transaction_id": tx.ID,
		"severity":       severity,
		"source":         string(source),
	}
	now := time.Now()

	notifications := []NotificationMessage{
		{
			Type:      NotificationSlack,
			Recipient: s.slackChannel,
			Subject:   fmt.Sprintf("Fraud Alert - %s", severity),
			Message:   message,
			Metadata:  metadata,
			CreatedAt: now,
		},
		{
			Type:      NotificationEmail,
			Recipient: s.securityMail,
			Subject:   fmt.Sprintf("Fraud Alert: %s - %s", severity, tx.ID),
			Message:   message,
			Metadata:  metadata,
			CreatedAt: now,
		},
	}

	for _, notification := range notifications {
		select {
		case s.messageQueue <- notification:
			s.logger.WarnContext(ctx, "Fraud alert notification queued",
				slog.String("type", string(notification.Type)),
				slog.String("transaction_id", tx.ID),
				slog.String("severity", severity))
		default:
			if s.drops != nil {
				s.drops.RecordAlertDropped()
			}
			s.logger.ErrorContext(ctx, "Notification queue full, fraud alert dropped",
				slog.String("type", string(notification.Type)),
				slog.String("transaction_id", tx.ID))
		}
	}
}

func (s *NotificationService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *NotificationService) worker(id int) {
	defer s.wg.Done()

	s.logger.Info("Notification worker started", slog.Int("worker_id", id))

	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, id)
		case <-s.shutdownChan:
			s.drain(id)
			s.logger.Info("Notification worker stopping", slog.Int("worker_id", id))
			return
		}
	}
}

// drain delivers whatever is still queued at shutdown.
func (s *NotificationService) drain(workerID int) {
	for {
		select {
		case msg := <-s.messageQueue:
			s.processNotification(msg, workerID)
		default:
			return
		}
	}
}

func (s *NotificationService) processNotification(msg NotificationMessage, workerID int) {
	startTime := time.Now()
	var err error

	switch msg.Type {
	case NotificationEmail:
		err = s.emailService.SendEmail(msg.Recipient, msg.Subject, msg.Message)
	case NotificationSlack:
		err = s.slackService.SendMessage(msg.Recipient, msg.Message)
	default:
		err = fmt.Errorf("unknown notification type: %s", msg.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Failed to send notification",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	} else {
		s.logger.Info("Notification sent successfully",
			slog.String("type", string(msg.Type)),
			slog.String("recipient", msg.Recipient),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", duration))
	}
}

func (s *NotificationService) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogEmailService and LogSlackService write alerts to the structured log.
// They stand in until a real mail relay or chat webhook is configured.
type LogEmailService struct {
	Logger *slog.Logger
}

func (l LogEmailService) SendEmail(to, subject, body string) error {
	l.Logger.Warn("Email alert", slog.String("to", to), slog.String("subject", subject), slog.String("body", body))
	return nil
}

type LogSlackService struct {
	Logger *slog.Logger
}

func (l LogSlackService) SendMessage(channel, message string) error {
	l.Logger.Warn("Slack alert", slog.String("channel", channel), slog.String("message", message))
	return nil
}
