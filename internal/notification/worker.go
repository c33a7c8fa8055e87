package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/model"
)

// queueDepth bounds how many timed out machines may wait for a worker.
const queueDepth = 64

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool tells push subscribers when a machine they follow was logged out
// because it stopped pinging.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *logger.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, log *logger.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, queueDepth),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("notification worker started", "worker", id)
	for {
		select {
		case hostname := <-wp.jobs:
			wp.sendNotificationsForMachine(ctx, hostname)
		case <-ctx.Done():
			wp.log.Debug("notification worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues a machine for notification. It never blocks; a full queue
// drops the job and reports false.
func (wp *WorkerPool) Dispatch(hostname string) bool {
	select {
	case wp.jobs <- hostname:
		return true
	default:
		wp.log.Warn("notification queue full, dropping alert", "machine", hostname)
		return false
	}
}

// SessionTimedOut queues an alert for the session's machine.
func (wp *WorkerPool) SessionTimedOut(usage model.MachineUsage) {
	wp.Dispatch(usage.MachineHostname)
}

func (wp *WorkerPool) sendNotificationsForMachine(ctx context.Context, hostname string) {
	db := wp.db.WithContext(ctx)

	var subscriptions []model.PushSubscription
	err := db.
		Joins("JOIN subscription_machine_mapping smm ON smm.subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_hostname = ?", hostname).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", "machine", hostname, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := hostname
	var machine model.Machine
	if err := db.Select("name").Where("hostname = ?", hostname).Take(&machine).Error; err != nil {
		wp.log.Warn("failed to fetch machine name", "machine", hostname, "error", err)
	} else if machine.Name != "" {
		label = machine.Name
	}

	wp.log.Info("sending session timeout alerts", "machine", hostname, "subscribers", len(subscriptions))
	message := fmt.Sprintf("%s was logged out after it stopped pinging.", label)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Error("failed to send notification", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Select(clause.Associations).Delete(&sub).Error; err != nil {
			wp.log.Error("failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
	}
}
