package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kulumasiina/storage"
)

// This is our interface, allowing us to enable proper testing
type BackgroundProcessor interface {
	processArchivedEntries(ctx context.Context) (int, error)
}

var (
	minBackoffDuration = 10 * time.Second
	maxBackoffDuration = time.Hour
	pollingInterval    = time.Hour
)

// Start our background tasks in a thread
func StartBackgroundTasks(ctx context.Context, app BackgroundProcessor) {
	go func() {
		backoffDuration := minBackoffDuration

		for {
			select {
			case <-ctx.Done():
				log.Infoln("Background tasks shutting down")
				return
			default: // needed to make this non-blocking
			}

			_, err := app.processArchivedEntries(ctx)
			wait := pollingInterval
			if err != nil {
				log.Errorf("Error in archived entry cleanup: %v", err)
				wait = backoffDuration

				// Exponential backoff logic
				backoffDuration *= 2
				if backoffDuration > maxBackoffDuration {
					log.Warnf("Max backoff duration reached. Using %v", maxBackoffDuration)
					backoffDuration = maxBackoffDuration
				}
			} else {
				// Reset backoff when processing succeeds
				backoffDuration = minBackoffDuration
			}

			select {
			case <-ctx.Done():
				log.Infoln("Background tasks shutting down")
				return
			case <-time.After(wait):
			}
		}
	}()
}

// processArchivedEntries deletes archived entries older than the age limit
// together with their attachment files
func (app *App) processArchivedEntries(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-app.ArchiveAgeLimit)

	fileIDs, err := app.Cleaner.DeleteArchivedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("error deleting archived entries: %w", err)
	}

	if len(fileIDs) == 0 {
		log.Debugf("No archived entries older than %s", cutoff.Format(time.DateOnly))
		return 0, nil
	}

	var errs []error
	deleted := 0
	for _, fileID := range fileIDs {
		if err := app.Store.Delete(ctx, fileID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.WithField("file_id", fileID).Errorf("Failed to delete attachment file: %v", err)
			errs = append(errs, fmt.Errorf("file %s: %w", fileID, err))
			continue
		}
		deleted++
	}

	log.Infof("Removed %d attachment files of archived entries", deleted)

	if len(errs) > 0 {
		return deleted, fmt.Errorf("one or more errors occurred: %w", errors.Join(errs...))
	}
	return deleted, nil
}
