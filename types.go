package main

import (
	"context"
	"time"

	"kulumasiina/bookkeeping"
	"kulumasiina/claim"
)

// ClaimStore is the part of the repository the HTTP handlers need.
type ClaimStore interface {
	FindClaim(ctx context.Context, id string) (claim.Claim, error)
	FindClaims(ctx context.Context, ids []string) ([]claim.Claim, []string, error)
	ClaimsByStatus(ctx context.Context, status string) ([]claim.Claim, error)
}

// Exporter runs the document pipeline for the export endpoints.
type Exporter interface {
	ClaimPDF(ctx context.Context, c claim.Claim) (bookkeeping.File, error)
	ClaimExport(ctx context.Context, c claim.Claim) (bookkeeping.File, error)
	BatchExport(ctx context.Context, claims []claim.Claim) (bookkeeping.File, error)
}

// MultiExportRequest is the query of the /entry/multi endpoints
type MultiExportRequest struct {
	EntryIDs string `form:"entry_ids" binding:"required"`
}

// HealthResponse is the payload of /health
type HealthResponse struct {
	Status        string `json:"status"`
	StorageDriver string `json:"storage_driver"`
	Uptime        string `json:"uptime"`
}

// ArchiveCleaner is the part of the repository the cleanup loop needs.
type ArchiveCleaner interface {
	DeleteArchivedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
