package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/missmatchapp/missmatch/internal/config"
)

const (
	deleteBatchSize = 10
	maxFetchSize    = 20 << 20 // results from providers should never exceed 20MB
	fetchTimeout    = 60 * time.Second
)

var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// MinioStore implements Store on a MinIO/S3 bucket.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	httpc     *http.Client
}

// NewMinioStore initializes the client and verifies the bucket exists.
func NewMinioStore(ctx context.Context, cfg config.BlobConfig) (*MinioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &MinioStore{
		client:    cli,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		httpc:     &http.Client{Timeout: fetchTimeout},
	}, nil
}

func (m *MinioStore) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}

func (m *MinioStore) Put(ctx context.Context, data []byte, contentType, folder string) (UploadResult, error) {
	ext := extByContentType[contentType]
	if ext == "" {
		ext = ".jpg"
	}
	key := path.Join(folder, uuid.NewString()+ext)

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return UploadResult{}, fmt.Errorf("put object %s: %w", key, err)
	}

	return UploadResult{
		URL:  m.publicURL + "/" + key,
		Key:  key,
		Size: int64(len(data)),
	}, nil
}

func (m *MinioStore) PutFromURL(ctx context.Context, sourceURL, folder string) (UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return UploadResult{}, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := m.httpc.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("fetch %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UploadResult{}, fmt.Errorf("fetch %s: unexpected status %d", sourceURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize+1))
	if err != nil {
		return UploadResult{}, fmt.Errorf("read %s: %w", sourceURL, err)
	}
	if len(data) > maxFetchSize {
		return UploadResult{}, fmt.Errorf("fetch %s: body exceeds %d bytes", sourceURL, maxFetchSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	return m.Put(ctx, data, contentType, folder)
}

func (m *MinioStore) Delete(ctx context.Context, url string) bool {
	key, ok := m.keyFromURL(url)
	if !ok {
		slog.Warn("delete skipped: url outside this store", "url", url)
		return false
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		slog.Error("blob delete failed", "key", key, "error", err)
		return false
	}
	return true
}

func (m *MinioStore) DeleteMany(ctx context.Context, urls []string) DeleteReport {
	var (
		mu     sync.Mutex
		report DeleteReport
	)

	for i := 0; i < len(urls); i += deleteBatchSize {
		end := i + deleteBatchSize
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for _, url := range urls[i:end] {
			wg.Add(1)
			go func(url string) {
				defer wg.Done()
				ok := m.Delete(ctx, url)
				mu.Lock()
				defer mu.Unlock()
				if ok {
					report.Succeeded = append(report.Succeeded, url)
				} else {
					report.Failed = append(report.Failed, url)
				}
			}(url)
		}
		wg.Wait()
	}

	return report
}

func (m *MinioStore) ListOlderThan(ctx context.Context, age time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-age)

	var urls []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		if obj.LastModified.Before(cutoff) {
			urls = append(urls, m.publicURL+"/"+obj.Key)
		}
	}
	return urls, nil
}

func (m *MinioStore) keyFromURL(url string) (string, bool) {
	key, found := strings.CutPrefix(url, m.publicURL+"/")
	if !found || key == "" {
		return "", false
	}
	return key, true
}

var _ Store = (*MinioStore)(nil)
