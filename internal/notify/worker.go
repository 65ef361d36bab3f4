package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Counter is the slice of the unread-counter cache the worker needs.
type Counter interface {
	Incr(ctx context.Context, receiverID, senderID uint) error
}

// Worker consumes notification events and maintains unread counters.
type Worker struct {
	conn      *amqp.Connection
	counters  Counter
	queueName string
	log       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(conn *amqp.Connection, counters Counter, queueName string, log *slog.Logger) *Worker {
	return &Worker{
		conn:      conn,
		counters:  counters,
		queueName: queueName,
		log:       log,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		w.log.Error("decode notify event failed", "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.counters.Incr(ctx, event.ReceiverID, event.SenderID); err != nil {
		w.log.Error("bump unread counter failed",
			"receiver_id", event.ReceiverID, "sender_id", event.SenderID, "error", err)
		// requeue once; redis may just be restarting
		_ = d.Nack(false, !d.Redelivered)
		return
	}

	_ = d.Ack(false)
}

func (w *Worker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
