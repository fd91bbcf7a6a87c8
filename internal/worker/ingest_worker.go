package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docchat/internal/model"
	"docchat/internal/platform/rabbitmq"
)

type JobProcessor interface {
	ProcessIngestJob(ctx context.Context, job model.IngestJob) error
}

// IngestWorker consumes background ingestion jobs. A job that fails is still
// acknowledged: the failure is recorded on the session and the client polls
// for it. Only jobs interrupted by shutdown go back to the queue.
type IngestWorker struct {
	conn        *amqp.Connection
	processor   JobProcessor
	queueName   string
	concurrency int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, processor JobProcessor, queueName string, concurrency int) *IngestWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &IngestWorker{
		conn:        conn,
		processor:   processor,
		queueName:   queueName,
		concurrency: concurrency,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
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

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.concurrency, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
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

	var consumers sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
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
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	return nil
}

func (w *IngestWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job model.IngestJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.SessionID == "" {
		log.Printf("worker decode ingest job failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.processor.ProcessIngestJob(ctx, job); err != nil {
		if ctx.Err() != nil {
			log.Printf("worker interrupted on session %s, requeueing", job.SessionID)
			_ = d.Nack(false, true)
			return
		}
		log.Printf("worker ingest session %s failed: %v", job.SessionID, err)
	}
	_ = d.Ack(false)
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
