package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/xaenox/curatord/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) CreateCurator(ctx context.Context, curator *models.Curator) error {
	if curator.ID == "" {
		curator.ID = uuid.New().String()
	}

	query := `
		INSERT INTO curators (id, collection_id, name, prompt, model, status, schedule_type,
			auto_approve, confidence_threshold, rules, last_run_at, next_run_at,
			performance_metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		curator.ID,
		curator.CollectionID,
		curator.Name,
		curator.Prompt,
		curator.Model,
		curator.Status,
		curator.ScheduleType,
		curator.AutoApprove,
		curator.ConfidenceThreshold,
		mustJSON(curator.Rules, "[]"),
		curator.LastRunAt,
		curator.NextRunAt,
		mustJSON(curator.PerformanceMetrics, "{}"),
	).Scan(&curator.CreatedAt, &curator.UpdatedAt)

	if err != nil {
		return fmt.Errorf("error creating curator: %v", err)
	}

	return nil
}

const curatorColumns = `id, collection_id, name, prompt, model, status, schedule_type,
	auto_approve, confidence_threshold, rules, last_run_at, next_run_at,
	suggestions_made, suggestions_approved, suggestions_rejected,
	performance_metrics, created_at, updated_at`

func (s *PostgresStorage) GetCurator(ctx context.Context, id string) (*models.Curator, error) {
	query := `SELECT ` + curatorColumns + ` FROM curators WHERE id = $1`
	return scanCurator(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStorage) UpdateCurator(ctx context.Context, curator *models.Curator) error {
	query := `
		UPDATE curators
		SET prompt = $2, model = $3, status = $4, schedule_type = $5, auto_approve = $6,
			confidence_threshold = $7, rules = $8, name = $9, updated_at = NOW()
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		curator.ID,
		curator.Prompt,
		curator.Model,
		curator.Status,
		curator.ScheduleType,
		curator.AutoApprove,
		curator.ConfidenceThreshold,
		mustJSON(curator.Rules, "[]"),
		curator.Name,
	)
	if err != nil {
		return fmt.Errorf("error updating curator: %v", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) DeleteCurator(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM curators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting curator: %v", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) ListDueCurators(ctx context.Context, now time.Time) ([]*models.Curator, error) {
	query := `
		SELECT ` + curatorColumns + `
		FROM curators
		WHERE status = 'active'
		  AND schedule_type != 'manual'
		  AND (next_run_at IS NULL OR next_run_at <= $1)
		ORDER BY next_run_at NULLS FIRST`

	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error querying due curators: %v", err)
	}
	defer rows.Close()

	var curators []*models.Curator
	for rows.Next() {
		curator, err := scanCurator(rows)
		if err != nil {
			return nil, err
		}
		curators = append(curators, curator)
	}
	return curators, rows.Err()
}

func (s *PostgresStorage) SetRunTimes(ctx context.Context, id string, lastRunAt *time.Time, nextRunAt time.Time) error {
	query := `
		UPDATE curators
		SET last_run_at = COALESCE($2, last_run_at), next_run_at = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, lastRunAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("error updating curator run times: %v", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) SetCuratorStatus(ctx context.Context, id string, status models.CuratorStatus, lastError string) error {
	query := `
		UPDATE curators
		SET status = $2,
			performance_metrics = CASE
				WHEN $3 = '' THEN performance_metrics
				ELSE performance_metrics || jsonb_build_object('last_error', $3::text)
			END,
			updated_at = NOW()
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, status, lastError)
	if err != nil {
		return fmt.Errorf("error updating curator status: %v", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) IncrementCuratorCounter(ctx context.Context, id string, counter Counter, delta int) error {
	var query string
	switch counter {
	case CounterSuggestionsMade:
		query = `UPDATE curators SET suggestions_made = suggestions_made + $2, updated_at = NOW() WHERE id = $1`
	case CounterSuggestionsApproved:
		query = `UPDATE curators SET suggestions_approved = suggestions_approved + $2, updated_at = NOW() WHERE id = $1`
	case CounterSuggestionsRejected:
		query = `UPDATE curators SET suggestions_rejected = suggestions_rejected + $2, updated_at = NOW() WHERE id = $1`
	default:
		return fmt.Errorf("unknown curator counter: %s", counter)
	}

	result, err := s.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("error incrementing curator counter: %v", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) CreateSuggestion(ctx context.Context, suggestion *models.Suggestion) error {
	if suggestion.ID == "" {
		suggestion.ID = uuid.New().String()
	}

	query := `
		INSERT INTO suggestions (id, curator_id, user_id, collection_id, item_id,
			action_type, action, reasoning, confidence_score, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		suggestion.ID,
		nullString(suggestion.CuratorID),
		nullString(suggestion.UserID),
		suggestion.CollectionID,
		nullString(suggestion.ItemID),
		suggestion.Action.Kind(),
		mustJSON(suggestion.Action, "{}"),
		suggestion.Reasoning,
		suggestion.ConfidenceScore,
		suggestion.Status,
		suggestion.ExpiresAt,
	).Scan(&suggestion.CreatedAt, &suggestion.UpdatedAt)

	if err != nil {
		return fmt.Errorf("error creating suggestion: %v", err)
	}

	return nil
}

const suggestionColumns = `id, curator_id, user_id, collection_id, item_id,
	action, reasoning, confidence_score, status, reviewed_by, reviewed_at,
	review_notes, executed, executed_at, execution_result, expires_at,
	created_at, updated_at`

func (s *PostgresStorage) GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = $1`
	return scanSuggestion(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStorage) UpdateSuggestion(ctx context.Context, suggestion *models.Suggestion) error {
	query := `
		UPDATE suggestions
		SET status = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5,
			executed = $6, executed_at = $7, execution_result = $8, item_id = $9,
			updated_at = NOW()
		WHERE id = $1`

	var executionResult any
	if suggestion.ExecutionResult != nil {
		executionResult = mustJSON(suggestion.ExecutionResult, "{}")
	}

	result, err := s.db.ExecContext(ctx, query,
		suggestion.ID,
		suggestion.Status,
		nullString(suggestion.ReviewedBy),
		suggestion.ReviewedAt,
		nullString(suggestion.ReviewNotes),
		suggestion.Executed,
		suggestion.ExecutedAt,
		executionResult,
		nullString(suggestion.ItemID),
	)
	if err != nil {
		return fmt.Errorf("error updating suggestion: %v", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) HasPendingForItem(ctx context.Context, curatorID, itemName string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM suggestions
			WHERE curator_id = $1
			  AND status = 'pending'
			  AND (
				LOWER(action -> 'add_item' ->> 'item_name') = LOWER($2)
				OR LOWER(action -> 'add_subcollection' ->> 'name') = LOWER($2)
				OR LOWER(action -> 'remove_item' ->> 'item_name') = LOWER($2)
			  )
		)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, curatorID, itemName).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking pending suggestions: %v", err)
	}
	return exists, nil
}

func (s *PostgresStorage) ListSuggestions(ctx context.Context, ids []string) ([]*models.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = ANY($1) ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("error querying suggestions: %v", err)
	}
	defer rows.Close()

	return collectSuggestions(rows)
}

func (s *PostgresStorage) ListApprovedUnexecuted(ctx context.Context, collectionID string, limit int) ([]*models.Suggestion, error) {
	query := `
		SELECT ` + suggestionColumns + `
		FROM suggestions
		WHERE collection_id = $1 AND status = 'approved' AND executed = FALSE
		ORDER BY created_at`
	args := []any{collectionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying approved suggestions: %v", err)
	}
	defer rows.Close()

	return collectSuggestions(rows)
}

func (s *PostgresStorage) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE suggestions
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < $1`

	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("error expiring suggestions: %v", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStorage) CreateRunLog(ctx context.Context, log *models.RunLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	query := `
		INSERT INTO run_logs (id, curator_id, status, started_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query, log.ID, log.CuratorID, log.Status, log.StartedAt); err != nil {
		return fmt.Errorf("error creating run log: %v", err)
	}
	return nil
}

func (s *PostgresStorage) FinalizeRunLog(ctx context.Context, log *models.RunLog) error {
	query := `
		UPDATE run_logs
		SET status = $2, completed_at = $3, items_analyzed = $4,
			suggestions_generated = $5, api_usage = $6, error_message = $7
		WHERE id = $1 AND status = 'started'`

	result, err := s.db.ExecContext(ctx, query,
		log.ID,
		log.Status,
		log.CompletedAt,
		log.ItemsAnalyzed,
		log.SuggestionsGenerated,
		mustJSON(log.APIUsage, "{}"),
		nullString(log.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("error finalizing run log: %v", err)
	}
	return requireRow(result)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so collaborators pointed at the same
// database (the item catalog) can share the connection pool.
func (s *PostgresStorage) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCurator(row rowScanner) (*models.Curator, error) {
	curator := &models.Curator{}
	var rules, metrics []byte
	var lastRunAt, nextRunAt sql.NullTime

	err := row.Scan(
		&curator.ID,
		&curator.CollectionID,
		&curator.Name,
		&curator.Prompt,
		&curator.Model,
		&curator.Status,
		&curator.ScheduleType,
		&curator.AutoApprove,
		&curator.ConfidenceThreshold,
		&rules,
		&lastRunAt,
		&nextRunAt,
		&curator.SuggestionsMade,
		&curator.SuggestionsApproved,
		&curator.SuggestionsRejected,
		&metrics,
		&curator.CreatedAt,
		&curator.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning curator: %v", err)
	}

	if err := json.Unmarshal(rules, &curator.Rules); err != nil {
		return nil, fmt.Errorf("error decoding curator rules: %v", err)
	}
	if err := json.Unmarshal(metrics, &curator.PerformanceMetrics); err != nil {
		return nil, fmt.Errorf("error decoding curator metrics: %v", err)
	}
	if lastRunAt.Valid {
		curator.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		curator.NextRunAt = &nextRunAt.Time
	}
	return curator, nil
}

func scanSuggestion(row rowScanner) (*models.Suggestion, error) {
	suggestion := &models.Suggestion{}
	var action, executionResult []byte
	var curatorID, userID, itemID, reviewedBy, reviewNotes sql.NullString
	var reviewedAt, executedAt, expiresAt sql.NullTime

	err := row.Scan(
		&suggestion.ID,
		&curatorID,
		&userID,
		&suggestion.CollectionID,
		&itemID,
		&action,
		&suggestion.Reasoning,
		&suggestion.ConfidenceScore,
		&suggestion.Status,
		&reviewedBy,
		&reviewedAt,
		&reviewNotes,
		&suggestion.Executed,
		&executedAt,
		&executionResult,
		&expiresAt,
		&suggestion.CreatedAt,
		&suggestion.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning suggestion: %v", err)
	}

	if err := json.Unmarshal(action, &suggestion.Action); err != nil {
		return nil, fmt.Errorf("error decoding suggestion action: %v", err)
	}
	if len(executionResult) > 0 {
		suggestion.ExecutionResult = &models.ExecutionResult{}
		if err := json.Unmarshal(executionResult, suggestion.ExecutionResult); err != nil {
			return nil, fmt.Errorf("error decoding execution result: %v", err)
		}
	}
	suggestion.CuratorID = curatorID.String
	suggestion.UserID = userID.String
	suggestion.ItemID = itemID.String
	suggestion.ReviewedBy = reviewedBy.String
	suggestion.ReviewNotes = reviewNotes.String
	if reviewedAt.Valid {
		suggestion.ReviewedAt = &reviewedAt.Time
	}
	if executedAt.Valid {
		suggestion.ExecutedAt = &executedAt.Time
	}
	if expiresAt.Valid {
		suggestion.ExpiresAt = &expiresAt.Time
	}
	return suggestion, nil
}

func collectSuggestions(rows *sql.Rows) ([]*models.Suggestion, error) {
	var suggestions []*models.Suggestion
	for rows.Next() {
		suggestion, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, suggestion)
	}
	return suggestions, rows.Err()
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %v", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// mustJSON serializes for a jsonb column. Nil slices and maps marshal to the
// JSON null literal, which breaks jsonb concatenation later, so they are
// stored as empty in their given shape instead.
func mustJSON(v any, empty string) []byte {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return []byte(empty)
	}
	return data
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
