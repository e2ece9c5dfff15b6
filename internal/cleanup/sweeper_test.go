package cleanup_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/missmatchapp/missmatch/internal/blob"
	"github.com/missmatchapp/missmatch/internal/cleanup"
	"github.com/missmatchapp/missmatch/internal/store"
	"github.com/missmatchapp/missmatch/pkg/models"
)

// --- Mock Store ---

type mockStore struct {
	mu       sync.Mutex
	uploads  map[uuid.UUID]*models.Upload
	jobs     map[uuid.UUID]*models.Job
}

func newMockStore() *mockStore {
	return &mockStore{
		uploads: make(map[uuid.UUID]*models.Upload),
		jobs:    make(map[uuid.UUID]*models.Job),
	}
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

func (m *mockStore) CreateUpload(_ context.Context, u *models.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[u.ID] = u
	return nil
}

func (m *mockStore) GetUpload(_ context.Context, id uuid.UUID) (*models.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *mockStore) SetUploadModeration(_ context.Context, _ uuid.UUID, _ string, _ *float64) error {
	return nil
}

func (m *mockStore) ListExpiredUploads(_ context.Context, before time.Time) ([]*models.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Upload
	for _, u := range m.uploads {
		if u.ExpiresAt.Before(before) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteUpload(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, id)
	return nil
}

func (m *mockStore) ListGarments(_ context.Context, _ store.GarmentFilter) ([]*models.Garment, int, error) {
	return nil, 0, nil
}
func (m *mockStore) GetGarment(_ context.Context, _ uuid.UUID) (*models.Garment, error) {
	return nil, store.ErrNotFound
}
func (m *mockStore) CreateGarment(_ context.Context, _ *models.Garment) error     { return nil }
func (m *mockStore) DeactivateGarment(_ context.Context, _ uuid.UUID) error       { return nil }

func (m *mockStore) CreateJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (m *mockStore) GetJobByExternalID(_ context.Context, _ string) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (m *mockStore) GetActiveJob(_ context.Context, _, _ uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) ListJobsForUpload(_ context.Context, uploadID uuid.UUID) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, job := range m.jobs {
		if job.UploadID == uploadID {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *mockStore) MarkJobDispatched(_ context.Context, _ uuid.UUID, _ string) (bool, error) {
	return false, nil
}
func (m *mockStore) CompleteJob(_ context.Context, _ uuid.UUID, _ models.JobResult) (bool, error) {
	return false, nil
}
func (m *mockStore) FailJob(_ context.Context, _ uuid.UUID, _ string, _ bool) (bool, error) {
	return false, nil
}
func (m *mockStore) ClaimFinalize(_ context.Context, _ uuid.UUID, _ time.Duration) (bool, error) {
	return false, nil
}
func (m *mockStore) MarkWebhookReceived(_ context.Context, _ uuid.UUID) error { return nil }

func (m *mockStore) ListExpiredJobs(_ context.Context, before time.Time) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Job
	for _, job := range m.jobs {
		if job.ExpiresAt.Before(before) {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *mockStore) DeleteFailedJobsBefore(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, job := range m.jobs {
		if job.Status == models.JobStatusFailed && job.UpdatedAt.Before(before) {
			delete(m.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockStore) ListArtifactURLs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var urls []string
	for _, u := range m.uploads {
		urls = append(urls, u.BlobURL)
		if u.ThumbnailURL != nil {
			urls = append(urls, *u.ThumbnailURL)
		}
	}
	for _, job := range m.jobs {
		if job.ResultURL != nil {
			urls = append(urls, *job.ResultURL)
		}
		if job.ResultThumbnailURL != nil {
			urls = append(urls, *job.ResultThumbnailURL)
		}
	}
	return urls, nil
}

var _ store.Store = (*mockStore)(nil)

// --- Mock Blob Store ---

type mockBlob struct {
	mu      sync.Mutex
	objects map[string]time.Time // url -> last modified
}

func newMockBlob() *mockBlob {
	return &mockBlob{objects: make(map[string]time.Time)}
}

func (m *mockBlob) add(url string, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[url] = time.Now().Add(-age)
}

func (m *mockBlob) has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[url]
	return ok
}

func (m *mockBlob) Ping(_ context.Context) error { return nil }

func (m *mockBlob) Put(_ context.Context, _ []byte, _, folder string) (blob.UploadResult, error) {
	return blob.UploadResult{}, nil
}

func (m *mockBlob) PutFromURL(_ context.Context, _, _ string) (blob.UploadResult, error) {
	return blob.UploadResult{}, nil
}

func (m *mockBlob) Delete(_ context.Context, url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[url]; !ok {
		return false
	}
	delete(m.objects, url)
	return true
}

func (m *mockBlob) DeleteMany(ctx context.Context, urls []string) blob.DeleteReport {
	var report blob.DeleteReport
	for _, url := range urls {
		if m.Delete(ctx, url) {
			report.Succeeded = append(report.Succeeded, url)
		} else {
			report.Failed = append(report.Failed, url)
		}
	}
	return report
}

func (m *mockBlob) ListOlderThan(_ context.Context, age time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-age)
	var out []string
	for url, modified := range m.objects {
		if modified.Before(cutoff) {
			out = append(out, url)
		}
	}
	return out, nil
}

var _ blob.Store = (*mockBlob)(nil)

// --- Helpers ---

func strPtr(s string) *string { return &s }

func seedUploadWithJob(t *testing.T, st *mockStore, blobs *mockBlob, expired bool) (uuid.UUID, []string) {
	t.Helper()
	ctx := context.Background()

	expiresAt := time.Now().Add(24 * time.Hour)
	if expired {
		expiresAt = time.Now().Add(-time.Hour)
	}

	uploadID := uuid.New()
	urls := []string{
		"https://cdn.test/uploads/" + uploadID.String() + ".jpg",
		"https://cdn.test/thumbnails/" + uploadID.String() + ".jpg",
		"https://cdn.test/results/" + uploadID.String() + ".jpg",
	}
	for _, url := range urls {
		blobs.add(url, 40*24*time.Hour)
	}

	require.NoError(t, st.CreateUpload(ctx, &models.Upload{
		ID:           uploadID,
		BlobURL:      urls[0],
		ThumbnailURL: strPtr(urls[1]),
		Status:       models.UploadStatusApproved,
		ExpiresAt:    expiresAt,
	}))
	require.NoError(t, st.CreateJob(ctx, &models.Job{
		ID:        uuid.New(),
		UploadID:  uploadID,
		GarmentID: uuid.New(),
		Status:    models.JobStatusCompleted,
		ResultURL: strPtr(urls[2]),
		ExpiresAt: expiresAt,
	}))

	return uploadID, urls
}

// --- Sweeper Tests ---

func TestRun_RemovesExpiredUploadAndItsJobs(t *testing.T) {
	st := newMockStore()
	blobs := newMockBlob()
	_, urls := seedUploadWithJob(t, st, blobs, true)

	sweeper := cleanup.NewSweeper(st, blobs, 30*24*time.Hour, 24*time.Hour)
	report := sweeper.Run(context.Background())

	assert.Equal(t, 1, report.DeletedUploads)
	assert.Equal(t, 1, report.DeletedJobs)
	assert.Equal(t, 3, report.DeletedArtifacts)
	assert.Empty(t, report.Errors)

	for _, url := range urls {
		assert.False(t, blobs.has(url), "artifact %s should be gone", url)
	}
}

func TestRun_LeavesLiveDataAlone(t *testing.T) {
	st := newMockStore()
	blobs := newMockBlob()
	uploadID, urls := seedUploadWithJob(t, st, blobs, false)

	// Live rows keep their artifacts even when the blobs are old, because
	// the orphan phase only collects unreferenced ones.
	sweeper := cleanup.NewSweeper(st, blobs, 30*24*time.Hour, 24*time.Hour)
	report := sweeper.Run(context.Background())

	assert.Zero(t, report.DeletedUploads)
	assert.Zero(t, report.DeletedJobs)
	assert.Zero(t, report.OrphansRemoved)

	_, err := st.GetUpload(context.Background(), uploadID)
	assert.NoError(t, err)
	for _, url := range urls {
		assert.True(t, blobs.has(url))
	}
}

func TestRun_RemovesOrphanedBlobs(t *testing.T) {
	st := newMockStore()
	blobs := newMockBlob()

	// Referenced by nothing, and old enough to be past retention.
	blobs.add("https://cdn.test/results/orphan.jpg", 31*24*time.Hour)
	// Unreferenced but too young to touch.
	blobs.add("https://cdn.test/uploads/fresh.jpg", time.Hour)

	sweeper := cleanup.NewSweeper(st, blobs, 30*24*time.Hour, 24*time.Hour)
	report := sweeper.Run(context.Background())

	assert.Equal(t, 1, report.OrphansRemoved)
	assert.False(t, blobs.has("https://cdn.test/results/orphan.jpg"))
	assert.True(t, blobs.has("https://cdn.test/uploads/fresh.jpg"))
}

func TestRun_RemovesStaleFailedJobsEarly(t *testing.T) {
	st := newMockStore()
	blobs := newMockBlob()
	ctx := context.Background()

	require.NoError(t, st.CreateJob(ctx, &models.Job{
		ID:        uuid.New(),
		UploadID:  uuid.New(),
		GarmentID: uuid.New(),
		Status:    models.JobStatusFailed,
		UpdatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(29 * 24 * time.Hour),
	}))

	sweeper := cleanup.NewSweeper(st, blobs, 30*24*time.Hour, 24*time.Hour)
	report := sweeper.Run(ctx)

	assert.Equal(t, 1, report.DeletedJobs)
}

func TestRun_Idempotent(t *testing.T) {
	st := newMockStore()
	blobs := newMockBlob()
	seedUploadWithJob(t, st, blobs, true)

	sweeper := cleanup.NewSweeper(st, blobs, 30*24*time.Hour, 24*time.Hour)

	first := sweeper.Run(context.Background())
	assert.Equal(t, 1, first.DeletedUploads)

	second := sweeper.Run(context.Background())
	assert.Zero(t, second.DeletedUploads)
	assert.Zero(t, second.DeletedJobs)
	assert.Zero(t, second.DeletedArtifacts)
	assert.Empty(t, second.Errors)
}
