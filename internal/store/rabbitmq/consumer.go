package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/investocrafy/internal/email"
)

const (
	attemptHeader = "x-attempt"
	MaxAttempts   = 4
)

// HandleFunc delivers one job. A returned error schedules a retry.
type HandleFunc func(ctx context.Context, job email.Job) error

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	log         zerolog.Logger
}

func NewConsumer(url, queue string, concurrency int, log zerolog.Logger) (*Consumer, error) {
	conn, ch, err := open(url, queue)
	if err != nil {
		return nil, err
	}
	// at most one unacked delivery per worker
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, concurrency: concurrency, log: log}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context, handle HandleFunc) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	// publishing retries shares the channel with acks
	var pubMu sync.Mutex

	// in-flight jobs finish after shutdown starts
	workCtx := context.WithoutCancel(ctx)

	// worker pool
	jobs := make(chan amqp.Delivery, c.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			log := c.log.With().Int("worker", workerID).Logger()
			for d := range jobs {
				c.process(workCtx, log, &pubMu, d, handle)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("consumer shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) process(ctx context.Context, log zerolog.Logger, pubMu *sync.Mutex, d amqp.Delivery, handle HandleFunc) {
	job, err := decodeJob(d.Body)
	if err != nil {
		log.Warn().Err(err).Msg("bad message")
		_ = d.Nack(false, false)
		return
	}

	attempt := attemptOf(d.Headers)
	start := time.Now()
	err = handle(ctx, job)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Error().Err(err).Msg("ack failed")
		}
		return
	}

	log = log.With().Str("kind", string(job.Kind)).Int("attempt", attempt).Dur("cost", time.Since(start)).Logger()
	if attempt >= MaxAttempts {
		log.Error().Err(err).Msg("mail job exhausted retries")
		_ = d.Nack(false, false)
		return
	}

	pubMu.Lock()
	retry := persistent(d.Body, d.Type)
	retry.Expiration = strconv.FormatInt(retryDelay(attempt).Milliseconds(), 10)
	retry.Headers = amqp.Table{attemptHeader: int32(attempt + 1)}
	perr := c.ch.PublishWithContext(ctx, "", RetryQueue(c.queue), false, false, retry)
	pubMu.Unlock()
	if perr != nil {
		log.Error().Err(perr).Msg("schedule retry failed")
		_ = d.Nack(false, false)
		return
	}
	log.Warn().Err(err).Msg("mail job failed, retry scheduled")
	_ = d.Ack(false)
}

func decodeJob(body []byte) (email.Job, error) {
	var j email.Job
	if err := json.Unmarshal(body, &j); err != nil {
		return email.Job{}, err
	}
	if err := j.Validate(); err != nil {
		return email.Job{}, err
	}
	return j, nil
}

// attemptOf reads the delivery attempt number; first deliveries have none.
func attemptOf(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 1
}

// retryDelay backs off 5s, 20s, 80s...
func retryDelay(attempt int) time.Duration {
	d := 5 * time.Second
	for i := 1; i < attempt; i++ {
		d *= 4
	}
	return d
}
