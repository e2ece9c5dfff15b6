// Package cleanup implements the retention sweeper. It removes expired
// uploads and try-on jobs together with their stored artifacts, and
// reconciles the blob store against the database to catch orphans.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/missmatchapp/missmatch/internal/blob"
	"github.com/missmatchapp/missmatch/internal/store"
	"github.com/missmatchapp/missmatch/pkg/models"
)

// Sweeper deletes expired rows and their artifacts. Run is idempotent: a
// sweep that finds nothing to do reports zeros, and a crashed sweep leaves
// at worst orphaned blobs that the next reconciliation phase collects.
type Sweeper struct {
	store store.Store
	blobs blob.Store

	retention       time.Duration
	failedRetention time.Duration
}

func NewSweeper(st store.Store, blobs blob.Store, retention, failedRetention time.Duration) *Sweeper {
	return &Sweeper{
		store:           st,
		blobs:           blobs,
		retention:       retention,
		failedRetention: failedRetention,
	}
}

// Report summarizes one sweep. Errors are collected rather than aborting;
// one bad row never blocks the rest of the sweep.
type Report struct {
	DeletedUploads   int      `json:"deleted_uploads"`
	DeletedJobs      int      `json:"deleted_jobs"`
	DeletedArtifacts int      `json:"deleted_artifacts"`
	OrphansRemoved   int      `json:"orphans_removed"`
	Errors           []string `json:"errors,omitempty"`
}

// Run executes a full sweep: rows first, then their artifacts, then orphan
// reconciliation. Deleting rows before blobs means a crash mid-sweep leaves
// unreferenced blobs (cleaned up next run), never dangling references.
func (s *Sweeper) Run(ctx context.Context) Report {
	now := time.Now()
	var report Report

	artifactURLs := s.sweepExpiredUploads(ctx, now, &report)
	artifactURLs = append(artifactURLs, s.sweepExpiredJobs(ctx, now, &report)...)

	if len(artifactURLs) > 0 {
		deleted := s.blobs.DeleteMany(ctx, dedupe(artifactURLs))
		report.DeletedArtifacts = len(deleted.Succeeded)
		for _, url := range deleted.Failed {
			report.Errors = append(report.Errors, "delete artifact "+url)
		}
	}

	s.sweepStaleFailedJobs(ctx, now, &report)
	s.reconcileOrphans(ctx, &report)

	slog.Info("retention sweep finished",
		"deleted_uploads", report.DeletedUploads,
		"deleted_jobs", report.DeletedJobs,
		"deleted_artifacts", report.DeletedArtifacts,
		"orphans_removed", report.OrphansRemoved,
		"errors", len(report.Errors))
	return report
}

// sweepExpiredUploads removes expired uploads and every job hanging off
// them, collecting all referenced artifact URLs for batch deletion.
func (s *Sweeper) sweepExpiredUploads(ctx context.Context, now time.Time, report *Report) []string {
	uploads, err := s.store.ListExpiredUploads(ctx, now)
	if err != nil {
		report.Errors = append(report.Errors, "list expired uploads: "+err.Error())
		return nil
	}

	var urls []string
	for _, upload := range uploads {
		jobs, err := s.store.ListJobsForUpload(ctx, upload.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("list jobs for upload %s: %v", upload.ID, err))
			continue
		}
		for _, job := range jobs {
			urls = append(urls, jobArtifactURLs(job)...)
			if err := s.store.DeleteJob(ctx, job.ID); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("delete job %s: %v", job.ID, err))
				continue
			}
			report.DeletedJobs++
		}

		urls = append(urls, upload.BlobURL)
		if upload.ThumbnailURL != nil {
			urls = append(urls, *upload.ThumbnailURL)
		}
		if err := s.store.DeleteUpload(ctx, upload.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("delete upload %s: %v", upload.ID, err))
			continue
		}
		report.DeletedUploads++
	}
	return urls
}

func (s *Sweeper) sweepExpiredJobs(ctx context.Context, now time.Time, report *Report) []string {
	jobs, err := s.store.ListExpiredJobs(ctx, now)
	if err != nil {
		report.Errors = append(report.Errors, "list expired jobs: "+err.Error())
		return nil
	}

	var urls []string
	for _, job := range jobs {
		urls = append(urls, jobArtifactURLs(job)...)
		if err := s.store.DeleteJob(ctx, job.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("delete job %s: %v", job.ID, err))
			continue
		}
		report.DeletedJobs++
	}
	return urls
}

// sweepStaleFailedJobs removes FAILED rows earlier than the general
// retention window. They hold no artifacts, only an error message.
func (s *Sweeper) sweepStaleFailedJobs(ctx context.Context, now time.Time, report *Report) {
	deleted, err := s.store.DeleteFailedJobsBefore(ctx, now.Add(-s.failedRetention))
	if err != nil {
		report.Errors = append(report.Errors, "delete stale failed jobs: "+err.Error())
		return
	}
	report.DeletedJobs += deleted
}

// reconcileOrphans deletes blobs old enough to be past retention that no
// live row references. The age filter keeps just-written blobs whose rows
// commit a moment later out of the candidate set.
func (s *Sweeper) reconcileOrphans(ctx context.Context, report *Report) {
	stored, err := s.blobs.ListOlderThan(ctx, s.retention)
	if err != nil {
		report.Errors = append(report.Errors, "list aged blobs: "+err.Error())
		return
	}
	if len(stored) == 0 {
		return
	}

	referenced, err := s.store.ListArtifactURLs(ctx)
	if err != nil {
		report.Errors = append(report.Errors, "list referenced artifacts: "+err.Error())
		return
	}
	live := make(map[string]bool, len(referenced))
	for _, url := range referenced {
		live[url] = true
	}

	var orphans []string
	for _, url := range stored {
		if !live[url] {
			orphans = append(orphans, url)
		}
	}
	if len(orphans) == 0 {
		return
	}

	deleted := s.blobs.DeleteMany(ctx, orphans)
	report.OrphansRemoved = len(deleted.Succeeded)
	for _, url := range deleted.Failed {
		report.Errors = append(report.Errors, "delete orphan "+url)
	}
}

func jobArtifactURLs(job *models.Job) []string {
	var urls []string
	if job.ResultURL != nil && *job.ResultURL != "" {
		urls = append(urls, *job.ResultURL)
	}
	if job.ResultThumbnailURL != nil && *job.ResultThumbnailURL != "" {
		urls = append(urls, *job.ResultThumbnailURL)
	}
	return urls
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, url := range urls {
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		out = append(out, url)
	}
	return out
}
