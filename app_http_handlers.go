package main

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"kulumasiina/api"
	"kulumasiina/bookkeeping"
	"kulumasiina/claim"
)

var entryIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{1,64}$`)

// entryPDFHandler handles the GET /api/entry/:id/pdf endpoint
func (app *App) entryPDFHandler(c *gin.Context) {
	ctx := c.Request.Context()

	entry, err := app.loadEntry(c)
	if err != nil {
		app.respondWithError(c, err)
		return
	}

	file, err := app.Exporter.ClaimPDF(ctx, entry)
	if err != nil {
		app.respondWithError(c, err)
		return
	}

	respondWithFile(c, file)
}

// entryCSVHandler handles the GET /api/entry/:id/csv endpoint
func (app *App) entryCSVHandler(c *gin.Context) {
	ctx := c.Request.Context()

	entry, err := app.loadEntry(c)
	if err != nil {
		app.respondWithError(c, err)
		return
	}

	file, err := app.Exporter.ClaimExport(ctx, entry)
	if err != nil {
		app.respondWithError(c, err)
		return
	}

	respondWithFile(c, file)
}

// multiExportHandler handles the GET /api/entry/multi/csv and /api/entry/multi/zip endpoints
func (app *App) multiExportHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req MultiExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		app.respondWithError(c, api.NewAppError(fmt.Errorf("invalid query: %w", err), api.ErrorInvalidEntryID, api.CategoryUser))
		return
	}

	ids, err := parseEntryIDs(req.EntryIDs)
	if err != nil {
		app.respondWithError(c, err)
		return
	}

	entries, missing, err := app.Repo.FindClaims(ctx, ids)
	if err != nil {
		app.respondWithError(c, repositoryError(err))
		return
	}
	if len(missing) > 0 {
		appErr := api.NewAppError(
			fmt.Errorf("entries not found: %s", strings.Join(missing, ", ")),
			api.ErrorClaimsNotFound,
			api.CategoryNotFound,
		)
		appErr.Extras = map[string]interface{}{"missing": missing}
		app.respondWithError(c, appErr)
		return
	}

	file, err := app.Exporter.BatchExport(ctx, entries)
	if err != nil {
		app.respondWithError(c, err)
		return
	}

	respondWithFile(c, file)
}

// paidExportHandler handles the GET /api/entry/multi/paid endpoint
func (app *App) paidExportHandler(c *gin.Context) {
	ctx := c.Request.Context()

	entries, err := app.Repo.ClaimsByStatus(ctx, claim.StatusPaid)
	if err != nil {
		app.respondWithError(c, repositoryError(err))
		return
	}
	if len(entries) == 0 {
		app.respondWithError(c, api.NewAppError(errors.New("no paid entries to export"), api.ErrorClaimsNotFound, api.CategoryNotFound))
		return
	}

	file, err := app.Exporter.BatchExport(ctx, entries)
	if err != nil {
		app.respondWithError(c, err)
		return
	}

	respondWithFile(c, file)
}

// healthHandler handles the GET /api/health endpoint
func (app *App) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		StorageDriver: app.StorageDriver,
		Uptime:        time.Since(app.StartedAt).Round(time.Second).String(),
	})
}

func (app *App) loadEntry(c *gin.Context) (claim.Claim, error) {
	id := c.Param("id")
	if !entryIDPattern.MatchString(id) {
		return claim.Claim{}, api.NewAppError(fmt.Errorf("invalid entry id %q", id), api.ErrorInvalidEntryID, api.CategoryUser)
	}

	entry, err := app.Repo.FindClaim(c.Request.Context(), id)
	if err != nil {
		return claim.Claim{}, repositoryError(err)
	}
	return entry, nil
}

// parseEntryIDs splits a comma separated id list, dropping blanks and duplicates
func parseEntryIDs(raw string) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		if !entryIDPattern.MatchString(id) {
			return nil, api.NewAppError(fmt.Errorf("invalid entry id %q", id), api.ErrorInvalidEntryID, api.CategoryUser)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, api.NewAppError(errors.New("no entry ids given"), api.ErrorInvalidEntryID, api.CategoryUser)
	}
	return ids, nil
}

func repositoryError(err error) *api.AppError {
	switch {
	case errors.Is(err, ErrClaimNotFound):
		return api.NewAppError(err, api.ErrorClaimNotFound, api.CategoryNotFound)
	case errors.Is(err, claim.ErrInvalidStatus):
		return api.NewAppError(err, api.ErrorClaimCorrupt, api.CategoryInternal)
	default:
		return api.NewAppError(err, api.ErrorQueryFailure, api.CategoryDatabase)
	}
}

func (app *App) respondWithError(c *gin.Context, err error) {
	appErr := api.AsAppError(err)

	entry := log.WithFields(logrus.Fields{
		"key":    appErr.Key,
		"status": appErr.HttpStatus,
		"path":   c.Request.URL.Path,
	})
	if appErr.HttpStatus >= http.StatusInternalServerError {
		entry.Errorf("Request failed: %v", err)
	} else {
		entry.Infof("Request rejected: %v", err)
	}

	c.JSON(appErr.HttpStatus, appErr)
}

func respondWithFile(c *gin.Context, file bookkeeping.File) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	c.Header("Content-Length", strconv.Itoa(len(file.Data)))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
