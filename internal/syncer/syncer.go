package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/takak2166/expo2joplin/internal/joplin"
	"github.com/takak2166/expo2joplin/internal/logger"
	"github.com/takak2166/expo2joplin/internal/metrics"
	"github.com/takak2166/expo2joplin/internal/models"
	"github.com/takak2166/expo2joplin/internal/render"
)

const (
	OverviewTitle   = "00-Overview"
	TodoFolderTitle = "TODO"
	DefaultAuthor   = "joplin-expo-sync"

	todoTag = "todo"
)

// ErrAmbiguous is returned when a lookup matches more than one folder or note
var ErrAmbiguous = errors.New("more than one match found")

// ErrTruncated is returned when a lookup finds nothing on an incomplete page
var ErrTruncated = errors.New("results truncated")

// Allowlist decides which hosts get synced
type Allowlist interface {
	IsAllowed(expoID string) bool
}

// HostObserver is told the result of every processed host
type HostObserver interface {
	ObserveHost(result string)
}

// Options controls what the Syncer creates
type Options struct {
	RootFolder string   // top-level folder holding the segment folders
	Author     string   // author set on overview notes
	SyncTodos  bool     // maintain the TODO folder and checklist notes
	Checklist  []string // one to-do note per item
}

// Syncer mirrors host records into Joplin folders and notes
type Syncer struct {
	api      joplin.API
	opts     Options
	observer HostObserver
}

// HostFailure records why one host could not be synced
type HostFailure struct {
	Index  int
	ExpoID string
	Err    error
}

// Report summarizes a sync run
type Report struct {
	RunID    string
	Total    int
	Skipped  int
	Synced   int
	Failures []HostFailure
}

// Failed returns the number of hosts that failed to sync
func (r *Report) Failed() int {
	return len(r.Failures)
}

// New creates a Syncer. observer may be nil.
func New(api joplin.API, opts Options, observer HostObserver) *Syncer {
	if opts.Author == "" {
		opts.Author = DefaultAuthor
	}
	return &Syncer{
		api:      api,
		opts:     opts,
		observer: observer,
	}
}

// Run syncs every allow-listed record in dump order. Per-host failures are
// logged and collected in the report; only failing to resolve the root
// folder or a canceled context aborts the run.
func (s *Syncer) Run(ctx context.Context, records []models.HostRecord, allowed Allowlist) (*Report, error) {
	report := &Report{
		RunID: uuid.New().String(),
		Total: len(records),
	}

	root, err := s.GetOrCreateFolder(ctx, s.opts.RootFolder, "")
	if err != nil {
		return report, fmt.Errorf("failed to resolve root folder %q: %w", s.opts.RootFolder, err)
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		record := &records[i]
		expoID, err := record.ExpoID()
		if err != nil {
			logger.Error("Failed to sync host", err, map[string]interface{}{
				"index":  i,
				"run_id": report.RunID,
			})
			report.Failures = append(report.Failures, HostFailure{Index: i, Err: err})
			s.observe(metrics.ResultFailed)
			continue
		}

		if !allowed.IsAllowed(expoID) {
			report.Skipped++
			s.observe(metrics.ResultSkipped)
			continue
		}

		if err := s.SyncHost(ctx, record, root.ID); err != nil {
			logger.Error("Failed to sync host", err, map[string]interface{}{
				"expo_id": expoID,
				"run_id":  report.RunID,
			})
			report.Failures = append(report.Failures, HostFailure{Index: i, ExpoID: expoID, Err: err})
			s.observe(metrics.ResultFailed)
			continue
		}

		report.Synced++
		s.observe(metrics.ResultSynced)
	}

	return report, nil
}

// SyncHost ensures root/segment/host folders exist and writes the host's
// TODO checklist and overview note
func (s *Syncer) SyncHost(ctx context.Context, record *models.HostRecord, rootID string) error {
	expoID, err := record.ExpoID()
	if err != nil {
		return err
	}
	segment, err := record.String(models.FieldSegment)
	if err != nil {
		return err
	}
	body, tags, err := render.Note(record)
	if err != nil {
		return err
	}

	logger.Info("Syncing host", map[string]interface{}{
		"expo_id": expoID,
		"segment": segment,
	})

	segmentFolder, err := s.GetOrCreateFolder(ctx, segment, rootID)
	if err != nil {
		return fmt.Errorf("segment folder: %w", err)
	}

	hostFolder, err := s.GetOrCreateFolder(ctx, expoID, segmentFolder.ID)
	if err != nil {
		return fmt.Errorf("host folder: %w", err)
	}

	if s.opts.SyncTodos {
		if err := s.syncTodos(ctx, expoID, hostFolder.ID); err != nil {
			return err
		}
	}

	overview := &models.Note{
		Title:    OverviewTitle,
		Body:     body,
		Tags:     tags,
		ParentID: hostFolder.ID,
		Author:   s.opts.Author,
	}
	created, err := s.upsertNote(ctx, noteQuery(OverviewTitle, expoID), overview)
	if err != nil {
		return fmt.Errorf("overview note: %w", err)
	}

	action := "Updated"
	if created {
		action = "Created"
	}
	logger.Info(action+" overview note", map[string]interface{}{
		"expo_id": expoID,
		"note_id": overview.ID,
	})

	return nil
}

// GetOrCreateFolder resolves the folder with exactly this title under
// parentID (top level when empty): no match creates it, one match is
// reused, more than one is ErrAmbiguous
func (s *Syncer) GetOrCreateFolder(ctx context.Context, title, parentID string) (*models.Folder, error) {
	list, err := s.api.FindFolder(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.resolveFolder(ctx, title, list, title, parentID)
}

// resolveFolder applies the get-or-create rule to one page of folders
func (s *Syncer) resolveFolder(ctx context.Context, query string, list *models.FolderList, title, parentID string) (*models.Folder, error) {
	var matches []models.Folder
	for _, f := range list.Items {
		if f.Title == title && f.ParentID == parentID {
			matches = append(matches, f)
		}
	}

	if err := checkTruncated(query, list.HasMore, len(matches)); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		logger.Info("Creating folder", map[string]interface{}{
			"title":     title,
			"parent_id": parentID,
		})
		return s.api.CreateFolder(ctx, title, parentID)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %d folders titled %q", ErrAmbiguous, len(matches), title)
	}
}

// todoFolder lists folders and picks the TODO child of the host folder.
// Every host has one, so a title search would return all of them.
func (s *Syncer) todoFolder(ctx context.Context, hostFolderID string) (*models.Folder, error) {
	list, err := s.api.Folders(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolveFolder(ctx, "/folders", list, TodoFolderTitle, hostFolderID)
}

func (s *Syncer) syncTodos(ctx context.Context, expoID, hostFolderID string) error {
	todoFolder, err := s.todoFolder(ctx, hostFolderID)
	if err != nil {
		return fmt.Errorf("todo folder: %w", err)
	}

	for _, item := range s.opts.Checklist {
		note := &models.Note{
			Title:    item,
			Body:     expoID,
			Tags:     todoTag,
			ParentID: todoFolder.ID,
			IsTodo:   1,
		}
		created, err := s.upsertNote(ctx, noteQuery(item, expoID), note)
		if err != nil {
			return fmt.Errorf("todo note %q: %w", item, err)
		}
		logger.Debug("Synced todo note", map[string]interface{}{
			"expo_id": expoID,
			"todo":    item,
			"created": created,
		})
	}

	return nil
}

// upsertNote searches with query and keeps matches with the note's title
// and parent: none creates the note, one is updated in place, more is
// ErrAmbiguous. note.ID is set on success.
func (s *Syncer) upsertNote(ctx context.Context, query string, note *models.Note) (created bool, err error) {
	list, err := s.api.FindNote(ctx, query)
	if err != nil {
		return false, err
	}

	var matches []models.Note
	for _, n := range list.Items {
		if n.Title == note.Title && n.ParentID == note.ParentID {
			matches = append(matches, n)
		}
	}

	if err := checkTruncated(query, list.HasMore, len(matches)); err != nil {
		return false, err
	}

	switch len(matches) {
	case 0:
		saved, err := s.api.CreateNote(ctx, note)
		if err != nil {
			return false, err
		}
		note.ID = saved.ID
		return true, nil
	case 1:
		note.ID = matches[0].ID
		if _, err := s.api.UpdateNote(ctx, note); err != nil {
			return false, err
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %d notes titled %q", ErrAmbiguous, len(matches), note.Title)
	}
}

func (s *Syncer) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveHost(result)
	}
}

// checkTruncated guards against creating duplicates when the only page read
// is incomplete. Results beyond the first page are not fetched, so a missing
// match may be on a later page.
func checkTruncated(query string, hasMore bool, matches int) error {
	if !hasMore {
		return nil
	}
	if matches == 0 {
		return fmt.Errorf("%w: no match for %q on the first page", ErrTruncated, query)
	}
	logger.Warn("Search results truncated", map[string]interface{}{
		"query": query,
	})
	return nil
}

// noteQuery scopes a title search to the host's notebook, which also
// covers its TODO sub-notebook
func noteQuery(title, expoID string) string {
	return fmt.Sprintf("title:%s notebook:%s", quote(title), quote(expoID))
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}
