package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizdeck/quizdeck-backend/internal/config"
	"github.com/quizdeck/quizdeck-backend/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ResultWorker drains graded attempt results from Redis into PostgreSQL.
// Results are batched and written with a bulk upsert; a student's newer
// attempt replaces the stored one.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	buffer := make([]*model.AttemptResult, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
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

			var res model.AttemptResult
			if err := json.Unmarshal([]byte(item[1]), &res); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
				continue
			}

			buffer = append(buffer, &res)
		}
	}
}

// flushSafe attempts the bulk upsert, then row-by-row fallback with requeue.
// After the batch lands, the students' autosave buffers are cleared.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.AttemptResult) {
	// A statement cannot upsert the same (quiz, student) row twice, so a
	// fast resubmit within one batch keeps only the latest result.
	batch = dedupe(batch)

	if err := w.bulkUpsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk upsert failed, attempting row-by-row recovery")
		w.fallbackUpsert(ctx, batch)
		return
	}

	w.clearAutosavedAnswers(ctx, batch)
}

func dedupe(batch []*model.AttemptResult) []*model.AttemptResult {
	latest := make(map[string]int, len(batch))
	out := batch[:0]
	for _, res := range batch {
		key := res.QuizCode + ":" + res.StudentID
		if i, ok := latest[key]; ok {
			out[i] = res
			continue
		}
		latest[key] = len(out)
		out = append(out, res)
	}
	return out
}

func (w *ResultWorker) bulkUpsert(ctx context.Context, batch []*model.AttemptResult) error {
	n := len(batch)

	quizCodes := make([]string, 0, n)
	studentIDs := make([]string, 0, n)
	studentNames := make([]string, 0, n)
	roles := make([]string, 0, n)
	scores := make([]int, 0, n)
	totals := make([]int, 0, n)
	percentages := make([]int, 0, n)
	attemptedAts := make([]time.Time, 0, n)
	certifieds := make([]bool, 0, n)
	answers := make([]string, 0, n)

	for _, res := range batch {
		answersJSON, err := json.Marshal(res.Answers)
		if err != nil {
			return err
		}
		quizCodes = append(quizCodes, res.QuizCode)
		studentIDs = append(studentIDs, res.StudentID)
		studentNames = append(studentNames, res.StudentName)
		roles = append(roles, res.Role)
		scores = append(scores, res.Score)
		totals = append(totals, res.Total)
		percentages = append(percentages, res.Percentage)
		attemptedAts = append(attemptedAts, res.AttemptedAt)
		certifieds = append(certifieds, res.Certified)
		answers = append(answers, string(answersJSON))
	}

	query := `
		INSERT INTO attempt_results (quiz_code, student_id, student_name, role, score, total, percentage, attempted_at, certified, answers)
		SELECT
			u.quiz_code,
			u.student_id,
			u.student_name,
			u.role,
			u.score,
			u.total,
			u.percentage,
			u.attempted_at,
			u.certified,
			u.answers::jsonb
		FROM UNNEST(
			$1::text[],
			$2::text[],
			$3::text[],
			$4::text[],
			$5::int[],
			$6::int[],
			$7::int[],
			$8::timestamptz[],
			$9::bool[],
			$10::text[]
		) AS u (quiz_code, student_id, student_name, role, score, total, percentage, attempted_at, certified, answers)
		ON CONFLICT (quiz_code, student_id) DO UPDATE
		SET student_name = EXCLUDED.student_name,
		    role = EXCLUDED.role,
		    score = EXCLUDED.score,
		    total = EXCLUDED.total,
		    percentage = EXCLUDED.percentage,
		    attempted_at = EXCLUDED.attempted_at,
		    certified = EXCLUDED.certified,
		    answers = EXCLUDED.answers
	`

	_, err := w.pool.Exec(ctx, query,
		quizCodes, studentIDs, studentNames, roles,
		scores, totals, percentages, attemptedAts, certifieds, answers,
	)
	return err
}

func (w *ResultWorker) fallbackUpsert(ctx context.Context, batch []*model.AttemptResult) {
	requeueList := make([]*model.AttemptResult, 0)
	persisted := make([]*model.AttemptResult, 0, len(batch))

	for _, res := range batch {
		answersJSON, err := json.Marshal(res.Answers)
		if err != nil {
			w.log.Error().Err(err).Str("quiz_code", res.QuizCode).Msg("Dropping unencodable result")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO attempt_results (quiz_code, student_id, student_name, role, score, total, percentage, attempted_at, certified, answers)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
			 ON CONFLICT (quiz_code, student_id) DO UPDATE
			 SET student_name = EXCLUDED.student_name,
			     role = EXCLUDED.role,
			     score = EXCLUDED.score,
			     total = EXCLUDED.total,
			     percentage = EXCLUDED.percentage,
			     attempted_at = EXCLUDED.attempted_at,
			     certified = EXCLUDED.certified,
			     answers = EXCLUDED.answers`,
			res.QuizCode, res.StudentID, res.StudentName, res.Role,
			res.Score, res.Total, res.Percentage, res.AttemptedAt, res.Certified, string(answersJSON),
		)
		if err != nil {
			w.log.Error().Err(err).Str("student_id", res.StudentID).Msg("Upsert failed, requeueing")
			requeueList = append(requeueList, res)
			continue
		}
		persisted = append(persisted, res)
	}

	w.clearAutosavedAnswers(ctx, persisted)

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ResultWorker) requeue(ctx context.Context, items []*model.AttemptResult) {
	pipe := w.rdb.Pipeline()
	for _, res := range items {
		data, _ := json.Marshal(res)
		pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}

	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Sleep a bit to avoid thrashing if the DB is down hard
	time.Sleep(2 * time.Second)
}

// clearAutosavedAnswers drops the Redis autosave buffers of persisted results.
func (w *ResultWorker) clearAutosavedAnswers(ctx context.Context, batch []*model.AttemptResult) {
	if len(batch) == 0 {
		return
	}

	pipe := w.rdb.Pipeline()
	for _, res := range batch {
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(res.QuizCode, res.StudentID))
	}
	_, _ = pipe.Exec(ctx)
}

func (w *ResultWorker) shutdown(buffer []*model.AttemptResult) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
