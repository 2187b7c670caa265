package notification

import (
	"context"
	"errors"
	"fabtracker/internal/app/logger"
	"fabtracker/internal/app/metrics"
	"time"
)

type DispatcherConfig struct {
	BatchSize  int
	BatchDelay time.Duration
	RetryDelay time.Duration
}

// Drains the queue in batches of BatchSize, starting batches at least BatchDelay apart.
type Dispatcher struct {
	queue          *Queue
	sender         Sender
	logger         logger.LoggerInterface
	config         DispatcherConfig
	now            func() time.Time
	sleep          func(ctx context.Context, duration time.Duration) error
	lastBatchStart time.Time
}

func NewDispatcher(queue *Queue, sender Sender, logger logger.LoggerInterface, config DispatcherConfig) *Dispatcher {
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}

	return &Dispatcher{
		queue:  queue,
		sender: sender,
		logger: logger,
		config: config,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Replace time source and the way waiting is done.
func (d *Dispatcher) WithClock(now func() time.Time, sleep func(ctx context.Context, duration time.Duration) error) *Dispatcher {
	d.now = now
	d.sleep = sleep

	return d
}

// Deliver queued notifications until context is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Println("Dispatcher started")

	for {
		if err := d.Drain(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("Dispatcher error:", err)
		}

		select {
		case <-ctx.Done():
			d.logger.Println("Dispatcher stopped,", d.queue.Len(), "notification(s) left undelivered")
			return nil
		case <-d.queue.Notify():
		}
	}
}

// Deliver everything queued, returns once the queue is empty.
func (d *Dispatcher) Drain(ctx context.Context) error {
	for d.queue.Len() > 0 {
		if err := d.waitForBatchSlot(ctx); err != nil {
			return err
		}

		batch := d.takeDeliverable(d.config.BatchSize)
		if len(batch) == 0 {
			return nil
		}

		d.lastBatchStart = d.now()

		d.logger.Println("Dispatching batch of", len(batch), "notification(s)")

		for _, item := range batch {
			d.deliver(ctx, item)
		}
	}

	return nil
}

// Take up to limit entries that have a destination; the rest are dropped
// without using a batch slot.
func (d *Dispatcher) takeDeliverable(limit int) []Notification {
	batch := make([]Notification, 0, limit)

	for len(batch) < limit {
		taken := d.queue.Take(limit - len(batch))
		if len(taken) == 0 {
			break
		}

		for _, item := range taken {
			if item.Payload.ChannelId == "" {
				d.logger.Warn("No channel configured for", item.Type, "notifications of guild", item.GuildId, "- skipped")
				metrics.Notifications.WithLabelValues(metrics.OutcomeSkipped).Inc()
				continue
			}

			batch = append(batch, item)
		}
	}

	return batch
}

func (d *Dispatcher) waitForBatchSlot(ctx context.Context) error {
	if d.lastBatchStart.IsZero() {
		return nil
	}

	wait := d.lastBatchStart.Add(d.config.BatchDelay).Sub(d.now())
	if wait <= 0 {
		return nil
	}

	return d.sleep(ctx, wait)
}

// Send single notification with one retry; failures never stop the batch.
func (d *Dispatcher) deliver(ctx context.Context, item Notification) {
	attempts := 1

	sent, err := d.sender.Send(ctx, item.Payload)
	if err != nil && !isPermanent(err) {
		d.logger.Warn("Delivery of notification", item.Id, "failed, retrying:", err)
		metrics.Notifications.WithLabelValues(metrics.OutcomeRetried).Inc()

		if sleepErr := d.sleep(ctx, d.retryDelay(err)); sleepErr == nil {
			attempts++
			sent, err = d.sender.Send(ctx, item.Payload)
		}
	}

	if err != nil {
		d.logger.Error(&DispatchFailure{Notification: item, Attempts: attempts, Err: err})
		metrics.Notifications.WithLabelValues(metrics.OutcomeDropped).Inc()
		return
	}

	metrics.Notifications.WithLabelValues(metrics.OutcomeSent).Inc()

	if item.Payload.Announce {
		d.publish(ctx, sent)
	}
}

func isPermanent(err error) bool {
	var deliveryErr DeliveryError

	return errors.As(err, &deliveryErr) && deliveryErr.IsPermanent()
}

// Configured retry delay, stretched to the wait the destination asked for.
func (d *Dispatcher) retryDelay(err error) time.Duration {
	var deliveryErr DeliveryError
	if errors.As(err, &deliveryErr) && deliveryErr.Backoff() > d.config.RetryDelay {
		return deliveryErr.Backoff()
	}

	return d.config.RetryDelay
}

// Cross-post to followers of announcement channels.
func (d *Dispatcher) publish(ctx context.Context, sent SentMessage) {
	isAnnouncement, err := d.sender.IsAnnouncementChannel(ctx, sent.ChannelId)
	if err != nil {
		d.logger.Warn("Unable to check channel", sent.ChannelId, err)
		return
	}

	if !isAnnouncement {
		return
	}

	if err := d.sender.Crosspost(ctx, sent.ChannelId, sent.Id); err != nil {
		d.logger.Warn("Unable to publish message", sent.Id, "of channel", sent.ChannelId, err)
	}
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
