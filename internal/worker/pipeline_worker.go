package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"documind/internal/apperr"
	"documind/internal/platform/rabbitmq"
)

type pipelineRunner interface {
	Process(ctx context.Context, tenantID, documentID uint) error
}

// PipelineWorker consumes document pipeline jobs and runs the processing
// pipeline for each. Concurrency is bounded by the configured number of
// consumer goroutines; the per-document lock inside the pipeline keeps
// concurrent jobs for the same document from overlapping.
type PipelineWorker struct {
	conn        *amqp.Connection
	pipeline    pipelineRunner
	queueName   string
	concurrency int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPipelineWorker(conn *amqp.Connection, pipeline pipelineRunner, queueName string, concurrency int) *PipelineWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PipelineWorker{
		conn:        conn,
		pipeline:    pipeline,
		queueName:   queueName,
		concurrency: concurrency,
	}
}

func (w *PipelineWorker) Start(ctx context.Context) error {
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

	if err := ch.Qos(w.concurrency, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
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

	var once sync.Once
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer once.Do(func() { _ = ch.Close() })

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

	return nil
}

func (w *PipelineWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job rabbitmq.PipelineJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("worker decode pipeline job failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	err := w.pipeline.Process(ctx, job.TenantID, job.DocumentID)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case apperr.KindOf(err) == apperr.KindConflict:
		// Another run holds the document; the holder finishes the work.
		log.Printf("worker skipped document %d: %v", job.DocumentID, err)
		_ = d.Ack(false)
	case apperr.Retryable(err) && !d.Redelivered:
		log.Printf("worker requeueing document %d: %v", job.DocumentID, err)
		_ = d.Nack(false, true)
	default:
		log.Printf("worker processing document %d failed: %v", job.DocumentID, err)
		_ = d.Nack(false, false)
	}
}

func (w *PipelineWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
