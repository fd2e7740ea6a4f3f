package audit

import (
	"context"
	"encoding/json"

	"github.com/ccdh/authservice/internal/logging"
	"github.com/ccdh/authservice/internal/models"
	"github.com/ccdh/authservice/internal/repo"
)

type Entry struct {
	UserID    *uint
	Action    string
	Resource  string
	Success   bool
	IPAddress string
	UserAgent string
	Details   map[string]any
}

// Indexer mirrors recorded entries into a secondary search store.
type Indexer interface {
	Index(ctx context.Context, entry *models.AuditLog) error
}

type Recorder struct {
	Repo    *repo.GormRepo
	Indexer Indexer
}

func NewRecorder(r *repo.GormRepo, idx Indexer) *Recorder {
	return &Recorder{Repo: r, Indexer: idx}
}

// Record persists the entry and propagates storage failures. Use it on
// paths where a missing audit row must fail the surrounding operation.
func (rec *Recorder) Record(ctx context.Context, e Entry) error {
	row := &models.AuditLog{
		UserID:    e.UserID,
		Action:    e.Action,
		Resource:  e.Resource,
		Success:   e.Success,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
	}
	if e.Details != nil {
		if data, err := json.Marshal(e.Details); err == nil {
			row.Details = string(data)
		}
	}

	if err := rec.Repo.InsertAudit(ctx, row); err != nil {
		return err
	}

	if rec.Indexer != nil {
		if err := rec.Indexer.Index(ctx, row); err != nil {
			logging.FromContext(ctx).Warn("audit index failed", "action", e.Action, "error", err)
		}
	}
	return nil
}

// RecordBestEffort logs storage failures internally and never returns
// them. For side effects that must not abort the caller.
func (rec *Recorder) RecordBestEffort(ctx context.Context, e Entry) {
	if err := rec.Record(ctx, e); err != nil {
		logging.FromContext(ctx).Error("audit write failed", "action", e.Action, "error", err)
	}
}
