package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/missmatchapp/missmatch/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Uploads ---

const uploadColumns = `id, original_name, file_size, mime_type, width, height,
	blob_url, thumbnail_url, status, nsfw_score, nsfw_checked,
	expires_at, created_at, updated_at`

func scanUpload(row pgx.Row) (*models.Upload, error) {
	var u models.Upload
	err := row.Scan(&u.ID, &u.OriginalName, &u.FileSize, &u.MimeType, &u.Width, &u.Height,
		&u.BlobURL, &u.ThumbnailURL, &u.Status, &u.NSFWScore, &u.NSFWChecked,
		&u.ExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) CreateUpload(ctx context.Context, u *models.Upload) error {
	stampNew(&u.CreatedAt, &u.UpdatedAt)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO uploads (id, original_name, file_size, mime_type, width, height,
		   blob_url, thumbnail_url, status, nsfw_score, nsfw_checked, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.OriginalName, u.FileSize, u.MimeType, u.Width, u.Height,
		u.BlobURL, u.ThumbnailURL, u.Status, u.NSFWScore, u.NSFWChecked,
		u.ExpiresAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUpload(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	u, err := scanUpload(s.pool.QueryRow(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) SetUploadModeration(ctx context.Context, id uuid.UUID, status string, score *float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE uploads SET status = $2, nsfw_score = $3, nsfw_checked = TRUE, updated_at = NOW()
		 WHERE id = $1`, id, status, score)
	if err != nil {
		return fmt.Errorf("set upload moderation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListExpiredUploads(ctx context.Context, before time.Time) ([]*models.Upload, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE expires_at < $1`, before)
	if err != nil {
		return nil, fmt.Errorf("list expired uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

func (s *PostgresStore) DeleteUpload(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

// --- Garments ---

const garmentColumns = `id, name, description, category, image_url, thumbnail_url,
	brand, color, is_active, display_order, created_at, updated_at`

func scanGarment(row pgx.Row) (*models.Garment, error) {
	var g models.Garment
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Category, &g.ImageURL, &g.ThumbnailURL,
		&g.Brand, &g.Color, &g.IsActive, &g.DisplayOrder, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStore) ListGarments(ctx context.Context, filter GarmentFilter) ([]*models.Garment, int, error) {
	where := []string{"is_active = TRUE"}
	args := []any{}
	arg := 1

	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", arg))
		args = append(args, strings.ToUpper(filter.Category))
		arg++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", arg, arg))
		args = append(args, "%"+filter.Search+"%")
		arg++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM garments WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count garments: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx,
		`SELECT `+garmentColumns+` FROM garments WHERE `+whereClause+
			fmt.Sprintf(` ORDER BY display_order ASC, created_at DESC LIMIT $%d OFFSET $%d`, arg, arg+1),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list garments: %w", err)
	}
	defer rows.Close()

	var garments []*models.Garment
	for rows.Next() {
		g, err := scanGarment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan garment: %w", err)
		}
		garments = append(garments, g)
	}
	return garments, total, rows.Err()
}

func (s *PostgresStore) GetGarment(ctx context.Context, id uuid.UUID) (*models.Garment, error) {
	g, err := scanGarment(s.pool.QueryRow(ctx,
		`SELECT `+garmentColumns+` FROM garments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get garment: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) CreateGarment(ctx context.Context, g *models.Garment) error {
	stampNew(&g.CreatedAt, &g.UpdatedAt)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO garments (id, name, description, category, image_url, thumbnail_url,
		   brand, color, is_active, display_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		g.ID, g.Name, g.Description, g.Category, g.ImageURL, g.ThumbnailURL,
		g.Brand, g.Color, g.IsActive, g.DisplayOrder, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create garment: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateGarment(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE garments SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("deactivate garment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, upload_id, garment_id, driver, external_job_id, status,
	result_url, result_thumbnail_url, processing_time_ms, error_message,
	webhook_received, retry_count, max_retries, finalizing_at,
	expires_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.UploadID, &j.GarmentID, &j.Driver, &j.ExternalJobID, &j.Status,
		&j.ResultURL, &j.ResultThumbnailURL, &j.ProcessingTimeMs, &j.ErrorMessage,
		&j.WebhookReceived, &j.RetryCount, &j.MaxRetries, &j.FinalizingAt,
		&j.ExpiresAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, j *models.Job) error {
	stampNew(&j.CreatedAt, &j.UpdatedAt)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tryon_jobs (id, upload_id, garment_id, driver, status,
		   retry_count, max_retries, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, j.UploadID, j.GarmentID, j.Driver, j.Status,
		j.RetryCount, j.MaxRetries, j.ExpiresAt, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		// The partial unique index on (upload_id, garment_id) over
		// non-terminal rows makes duplicate in-flight submission a
		// constraint violation rather than a read-then-insert race.
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM tryon_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetJobByExternalID(ctx context.Context, externalJobID string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM tryon_jobs WHERE external_job_id = $1`, externalJobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by external id: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetActiveJob(ctx context.Context, uploadID, garmentID uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM tryon_jobs
		 WHERE upload_id = $1 AND garment_id = $2 AND status IN ('QUEUED', 'PROCESSING')
		 LIMIT 1`, uploadID, garmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobsForUpload(ctx context.Context, uploadID uuid.UUID) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM tryon_jobs WHERE upload_id = $1`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for upload: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *PostgresStore) MarkJobDispatched(ctx context.Context, id uuid.UUID, externalJobID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tryon_jobs
		 SET external_job_id = $2, status = 'PROCESSING', updated_at = NOW()
		 WHERE id = $1 AND status = 'QUEUED' AND external_job_id IS NULL`,
		id, externalJobID)
	if err != nil {
		return false, fmt.Errorf("mark job dispatched: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, result models.JobResult) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tryon_jobs
		 SET status = 'COMPLETED', result_url = $2, result_thumbnail_url = NULLIF($3, ''),
		     processing_time_ms = $4, webhook_received = webhook_received OR $5,
		     updated_at = NOW()
		 WHERE id = $1 AND status IN ('QUEUED', 'PROCESSING')`,
		id, result.ResultURL, result.ResultThumbnailURL, result.ProcessingTimeMs, result.WebhookReceived)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, reason string, webhookReceived bool) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tryon_jobs
		 SET status = 'FAILED', error_message = $2,
		     webhook_received = webhook_received OR $3, updated_at = NOW()
		 WHERE id = $1 AND status IN ('QUEUED', 'PROCESSING')`,
		id, reason, webhookReceived)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ClaimFinalize(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tryon_jobs
		 SET finalizing_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status IN ('QUEUED', 'PROCESSING')
		   AND (finalizing_at IS NULL OR finalizing_at < NOW() - make_interval(secs => $2))`,
		id, staleAfter.Seconds())
	if err != nil {
		return false, fmt.Errorf("claim finalize: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MarkWebhookReceived(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tryon_jobs SET webhook_received = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark webhook received: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExpiredJobs(ctx context.Context, before time.Time) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM tryon_jobs WHERE expires_at < $1`, before)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tryon_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteFailedJobsBefore(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tryon_jobs WHERE status = 'FAILED' AND updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete failed jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListArtifactURLs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT blob_url FROM uploads
		 UNION SELECT thumbnail_url FROM uploads WHERE thumbnail_url IS NOT NULL
		 UNION SELECT image_url FROM garments
		 UNION SELECT thumbnail_url FROM garments WHERE thumbnail_url IS NOT NULL
		 UNION SELECT result_url FROM tryon_jobs WHERE result_url IS NOT NULL
		 UNION SELECT result_thumbnail_url FROM tryon_jobs WHERE result_thumbnail_url IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list artifact urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan artifact url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// stampNew fills creation timestamps when the caller left them zero.
func stampNew(createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = now
	}
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PostgresStore)(nil)
