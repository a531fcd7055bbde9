package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizdeck/quizdeck-backend/internal/config"
	"github.com/quizdeck/quizdeck-backend/internal/model"
)

const (
	GuardBatchSize    = 50
	GuardBatchTimeout = 2 * time.Second
	GuardPollTimeout  = 1 * time.Second
)

// GuardEventWorker drains guard trips (back navigation, timer expiry) from
// Redis into PostgreSQL for the teacher's audit view.
type GuardEventWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewGuardEventWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *GuardEventWorker {
	return &GuardEventWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "guard_event_worker").Logger(),
	}
}

func (w *GuardEventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("GuardEventWorker started")

	buffer := make([]*model.GuardEvent, 0, GuardBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= GuardBatchSize || time.Since(lastFlush) >= GuardBatchTimeout) {

			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return

		default:
			item, err := w.rdb.BLPop(ctx, GuardPollTimeout, config.WorkerKey.PersistGuardEventsQueue).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
				time.Sleep(3 * time.Second)
				continue
			}

			if len(item) < 2 {
				continue
			}

			var ev model.GuardEvent
			if err := json.Unmarshal([]byte(item[1]), &ev); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
				continue
			}

			buffer = append(buffer, &ev)
		}
	}
}

func (w *GuardEventWorker) flushSafe(ctx context.Context, batch []*model.GuardEvent) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *GuardEventWorker) bulkInsert(ctx context.Context, batch []*model.GuardEvent) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, ev := range batch {
		rows = append(rows, []interface{}{
			ev.QuizCode, ev.StudentID, string(ev.EventType), ev.OccurredAt,
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"guard_events"},
		[]string{"quiz_code", "student_id", "event_type", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *GuardEventWorker) fallbackInsert(ctx context.Context, batch []*model.GuardEvent) {
	requeueList := make([]*model.GuardEvent, 0)

	for _, ev := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO guard_events (quiz_code, student_id, event_type, occurred_at)
			 VALUES ($1, $2, $3, $4)`,
			ev.QuizCode, ev.StudentID, string(ev.EventType), ev.OccurredAt,
		)
		if err != nil {
			w.log.Error().Err(err).Str("student_id", ev.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, ev)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *GuardEventWorker) requeue(ctx context.Context, items []*model.GuardEvent) {
	pipe := w.rdb.Pipeline()
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, config.WorkerKey.PersistGuardEventsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}

	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	time.Sleep(2 * time.Second)
}

func (w *GuardEventWorker) shutdown(buffer []*model.GuardEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
