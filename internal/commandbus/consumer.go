package commandbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// StartConsumer reads command messages from commandsTopic with a pool
// of workerCount workers, handing each to HandleCommandMessage and
// committing its offset once handling returns (successful handling and
// DLQ routing both commit; only a transient error skips the commit so
// the broker redelivers it).
func StartConsumer(ctx context.Context, brokers []string, groupID, commandsTopic string, producer *kafka.Writer, submitter Submitter, dedupe DedupeStore, workerCount int, defaultReplyTopic string) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    commandsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Error().Err(err).Msg("commandbus: error closing kafka reader")
		}
	}()

	jobs := make(chan kafka.Message, maxInt(64, workerCount*4))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			defer wg.Done()
			for msg := range jobs {
				if err := HandleCommandMessage(ctx, submitter, dedupe, producer, msg, defaultReplyTopic); err != nil {
					log.Warn().Err(err).Int("worker", workerID).Msg("commandbus: transient handling error, message will be redelivered")
					continue
				}
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Error().Err(err).Msg("commandbus: commit failed")
				}
			}
		}(i)
	}

	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return
			}
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Warn().Err(err).Msg("commandbus: fetch error")
				t := time.NewTimer(500 * time.Millisecond)
				select {
				case <-t.C:
				case <-ctx.Done():
					if !t.Stop() {
						<-t.C
					}
					return
				}
				continue
			}
			select {
			case jobs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return ctx.Err()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
