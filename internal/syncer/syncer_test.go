package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takak2166/expo2joplin/internal/joplin"
	"github.com/takak2166/expo2joplin/internal/joplin/mock_joplin"
	"github.com/takak2166/expo2joplin/internal/logger"
	"github.com/takak2166/expo2joplin/internal/metrics"
	"github.com/takak2166/expo2joplin/internal/models"
	"github.com/takak2166/expo2joplin/internal/parser"
)

const h1Dump = `[{"expo_id":"h1","segment":"dmz","os":"linux","service_checks":[{"service_name":"ssh","ip":"10.0.0.1","port":22}]}]`

type allowSet map[string]bool

func (a allowSet) IsAllowed(expoID string) bool { return a[expoID] }

type resultRecorder struct {
	results []string
}

func (r *resultRecorder) ObserveHost(result string) { r.results = append(r.results, result) }

func decode(t *testing.T, dump string) []models.HostRecord {
	t.Helper()
	records, err := parser.Decode([]byte(dump))
	require.NoError(t, err)
	return records
}

func folders(items ...models.Folder) *models.FolderList {
	return &models.FolderList{Items: items}
}

func notes(items ...models.Note) *models.NoteList {
	return &models.NoteList{Items: items}
}

func newSyncer(api joplin.API, opts Options, obs HostObserver) *Syncer {
	if opts.RootFolder == "" {
		opts.RootFolder = "10-Hosts"
	}
	return New(api, opts, obs)
}

func TestRunCreatesHierarchy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	gomock.InOrder(
		api.EXPECT().FindFolder(ctx, "10-Hosts").Return(folders(), nil),
		api.EXPECT().CreateFolder(ctx, "10-Hosts", "").Return(&models.Folder{ID: "root", Title: "10-Hosts"}, nil),
		api.EXPECT().FindFolder(ctx, "dmz").Return(folders(), nil),
		api.EXPECT().CreateFolder(ctx, "dmz", "root").Return(&models.Folder{ID: "seg", Title: "dmz", ParentID: "root"}, nil),
		api.EXPECT().FindFolder(ctx, "h1").Return(folders(), nil),
		api.EXPECT().CreateFolder(ctx, "h1", "seg").Return(&models.Folder{ID: "host", Title: "h1", ParentID: "seg"}, nil),
		api.EXPECT().FindNote(ctx, `title:"00-Overview" notebook:"h1"`).Return(notes(), nil),
		api.EXPECT().CreateNote(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, n *models.Note) (*models.Note, error) {
				assert.Equal(t, "00-Overview", n.Title)
				assert.Equal(t, "host", n.ParentID)
				assert.Equal(t, "zone:dmz,os:linux", n.Tags)
				assert.Equal(t, DefaultAuthor, n.Author)
				assert.Zero(t, n.IsTodo)
				assert.Contains(t, n.Body, "| service_name | ip | port |\n| ---|---|--- |\n| ssh | 10.0.0.1 | 22 |")
				return &models.Note{ID: "note1", Title: n.Title}, nil
			}),
	)

	obs := &resultRecorder{}
	s := newSyncer(api, Options{}, obs)

	report, err := s.Run(ctx, decode(t, h1Dump), allowSet{"h1": true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Synced)
	assert.Zero(t, report.Failed())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{metrics.ResultSynced}, obs.results)
}

func TestRunSkipsHostsNotAllowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	// only the root folder is resolved
	api.EXPECT().FindFolder(ctx, "10-Hosts").Return(folders(models.Folder{ID: "root", Title: "10-Hosts"}), nil)

	obs := &resultRecorder{}
	s := newSyncer(api, Options{SyncTodos: true, Checklist: []string{"/etc/passwd"}}, obs)

	report, err := s.Run(ctx, decode(t, h1Dump), allowSet{"h2": true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Synced)
	assert.Equal(t, []string{metrics.ResultSkipped}, obs.results)
}

func TestGetOrCreateFolderIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	api.EXPECT().FindFolder(ctx, "dmz").Return(folders(
		models.Folder{ID: "seg", Title: "dmz", ParentID: "root"},
	), nil).Times(2)

	s := newSyncer(api, Options{}, nil)

	first, err := s.GetOrCreateFolder(ctx, "dmz", "root")
	require.NoError(t, err)
	second, err := s.GetOrCreateFolder(ctx, "dmz", "root")
	require.NoError(t, err)
	assert.Equal(t, "seg", first.ID)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateFolderWarnsOnTruncatedSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	api.EXPECT().FindFolder(ctx, "dmz").Return(&models.FolderList{
		Items:   []models.Folder{{ID: "seg", Title: "dmz", ParentID: "root"}},
		HasMore: true,
	}, nil)

	s := newSyncer(api, Options{}, nil)

	folder, err := s.GetOrCreateFolder(ctx, "dmz", "root")
	require.NoError(t, err)
	assert.Equal(t, "seg", folder.ID)
	assert.Contains(t, buf.String(), "Search results truncated")
}

func TestGetOrCreateFolderScopesMatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	// same title under another parent and a LIKE false positive are ignored
	api.EXPECT().FindFolder(ctx, "h_1").Return(folders(
		models.Folder{ID: "other", Title: "h_1", ParentID: "seg-b"},
		models.Folder{ID: "like", Title: "hx1", ParentID: "seg-a"},
	), nil)
	api.EXPECT().CreateFolder(ctx, "h_1", "seg-a").Return(&models.Folder{ID: "new", Title: "h_1", ParentID: "seg-a"}, nil)

	s := newSyncer(api, Options{}, nil)

	folder, err := s.GetOrCreateFolder(ctx, "h_1", "seg-a")
	require.NoError(t, err)
	assert.Equal(t, "new", folder.ID)
}

func TestGetOrCreateFolderAmbiguous(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	api.EXPECT().FindFolder(ctx, "dmz").Return(folders(
		models.Folder{ID: "a", Title: "dmz", ParentID: "root"},
		models.Folder{ID: "b", Title: "dmz", ParentID: "root"},
	), nil)

	s := newSyncer(api, Options{}, nil)

	folder, err := s.GetOrCreateFolder(ctx, "dmz", "root")
	assert.Nil(t, folder)
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestSyncHostUpdatesExistingOverview(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	api.EXPECT().FindFolder(ctx, "dmz").Return(folders(models.Folder{ID: "seg", Title: "dmz", ParentID: "root"}), nil)
	api.EXPECT().FindFolder(ctx, "h1").Return(folders(models.Folder{ID: "host", Title: "h1", ParentID: "seg"}), nil)
	api.EXPECT().FindNote(ctx, gomock.Any()).Return(notes(
		models.Note{ID: "n1", Title: "00-Overview", ParentID: "host"},
		models.Note{ID: "n2", Title: "00-Overview", ParentID: "other-host"},
	), nil)
	api.EXPECT().UpdateNote(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, n *models.Note) (*models.Note, error) {
			assert.Equal(t, "n1", n.ID)
			assert.Equal(t, "host", n.ParentID)
			assert.Equal(t, "zone:dmz,os:linux", n.Tags)
			assert.True(t, strings.HasPrefix(n.Body, "\n# h1\n"))
			return n, nil
		})

	s := newSyncer(api, Options{}, nil)

	records := decode(t, h1Dump)
	require.NoError(t, s.SyncHost(ctx, &records[0], "root"))
}

func TestSyncHostAmbiguousOverview(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	api.EXPECT().FindFolder(ctx, "dmz").Return(folders(models.Folder{ID: "seg", Title: "dmz", ParentID: "root"}), nil)
	api.EXPECT().FindFolder(ctx, "h1").Return(folders(models.Folder{ID: "host", Title: "h1", ParentID: "seg"}), nil)
	api.EXPECT().FindNote(ctx, gomock.Any()).Return(notes(
		models.Note{ID: "n1", Title: "00-Overview", ParentID: "host"},
		models.Note{ID: "n2", Title: "00-Overview", ParentID: "host"},
	), nil)
	// no CreateNote or UpdateNote expected

	s := newSyncer(api, Options{}, nil)

	records := decode(t, h1Dump)
	err := s.SyncHost(ctx, &records[0], "root")
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestSyncHostTodos(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	gomock.InOrder(
		api.EXPECT().FindFolder(ctx, "dmz").Return(folders(models.Folder{ID: "seg", Title: "dmz", ParentID: "root"}), nil),
		api.EXPECT().FindFolder(ctx, "h1").Return(folders(models.Folder{ID: "host", Title: "h1", ParentID: "seg"}), nil),
		api.EXPECT().Folders(ctx).Return(folders(
			models.Folder{ID: "seg", Title: "dmz", ParentID: "root"},
			models.Folder{ID: "host", Title: "h1", ParentID: "seg"},
			models.Folder{ID: "todo", Title: "TODO", ParentID: "host"},
			models.Folder{ID: "todo-h2", Title: "TODO", ParentID: "host2"},
		), nil),
		api.EXPECT().FindNote(ctx, `title:"/etc/passwd" notebook:"h1"`).Return(notes(
			models.Note{ID: "t1", Title: "/etc/passwd", ParentID: "todo"},
		), nil),
		api.EXPECT().UpdateNote(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, n *models.Note) (*models.Note, error) {
				assert.Equal(t, "t1", n.ID)
				assert.Equal(t, 1, n.IsTodo)
				assert.Equal(t, "h1", n.Body)
				assert.Equal(t, "todo", n.Tags)
				return n, nil
			}),
		api.EXPECT().FindNote(ctx, `title:"services: check config" notebook:"h1"`).Return(notes(), nil),
		api.EXPECT().CreateNote(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, n *models.Note) (*models.Note, error) {
				assert.Empty(t, n.ID)
				assert.Equal(t, "services: check config", n.Title)
				assert.Equal(t, "todo", n.ParentID)
				assert.Equal(t, 1, n.IsTodo)
				return &models.Note{ID: "t2"}, nil
			}),
		api.EXPECT().FindNote(ctx, `title:"00-Overview" notebook:"h1"`).Return(notes(), nil),
		api.EXPECT().CreateNote(ctx, gomock.Any()).Return(&models.Note{ID: "ov"}, nil),
	)

	s := newSyncer(api, Options{
		SyncTodos: true,
		Checklist: []string{"/etc/passwd", "services: check config"},
	}, nil)

	records := decode(t, h1Dump)
	require.NoError(t, s.SyncHost(ctx, &records[0], "root"))
}

func TestSyncHostTodoFolderBeyondFirstPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	// 150 hosts each own a TODO folder; one page holds the first 100
	var page []models.Folder
	for i := 0; i < 100; i++ {
		page = append(page, models.Folder{
			ID:       fmt.Sprintf("todo%d", i),
			Title:    TodoFolderTitle,
			ParentID: fmt.Sprintf("host%d", i),
		})
	}

	gomock.InOrder(
		api.EXPECT().FindFolder(ctx, "dmz").Return(folders(models.Folder{ID: "seg", Title: "dmz", ParentID: "root"}), nil),
		api.EXPECT().FindFolder(ctx, "h1").Return(folders(models.Folder{ID: "host140", Title: "h1", ParentID: "seg"}), nil),
		api.EXPECT().Folders(ctx).Return(&models.FolderList{Items: page, HasMore: true}, nil),
	)
	api.EXPECT().CreateFolder(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	api.EXPECT().CreateNote(gomock.Any(), gomock.Any()).Times(0)

	s := newSyncer(api, Options{SyncTodos: true, Checklist: []string{"/etc/passwd"}}, nil)

	records := decode(t, h1Dump)
	err := s.SyncHost(ctx, &records[0], "root")
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestUpsertNoteTruncatedWithoutMatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	api.EXPECT().FindNote(ctx, `title:"00-Overview" notebook:"h1"`).Return(&models.NoteList{
		Items:   []models.Note{{ID: "other", Title: OverviewTitle, ParentID: "elsewhere"}},
		HasMore: true,
	}, nil)
	api.EXPECT().CreateNote(gomock.Any(), gomock.Any()).Times(0)

	s := newSyncer(api, Options{}, nil)

	created, err := s.upsertNote(ctx, noteQuery(OverviewTitle, "h1"), &models.Note{Title: OverviewTitle, ParentID: "host"})
	assert.ErrorIs(t, err, ErrTruncated)
	assert.False(t, created)
}

func TestRunContinuesAfterHostFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	dump := `[
		{"segment":"dmz","os":"linux","service_checks":[]},
		{"expo_id":"bad","segment":"dmz","os":"linux"},
		{"expo_id":"h2","segment":"lan","os":"bsd","service_checks":[]},
		{"expo_id":"h3","segment":"lan","os":"linux","service_checks":[]}
	]`

	transportErr := &joplin.StatusError{Method: "POST", Path: "/folders", StatusCode: 500}

	api.EXPECT().FindFolder(ctx, "10-Hosts").Return(folders(models.Folder{ID: "root", Title: "10-Hosts"}), nil)
	// h2 fails on the segment folder
	api.EXPECT().FindFolder(ctx, "lan").Return(folders(), nil)
	api.EXPECT().CreateFolder(ctx, "lan", "root").Return(nil, transportErr)
	// h3 goes through
	api.EXPECT().FindFolder(ctx, "lan").Return(folders(models.Folder{ID: "lan", Title: "lan", ParentID: "root"}), nil)
	api.EXPECT().FindFolder(ctx, "h3").Return(folders(models.Folder{ID: "h3", Title: "h3", ParentID: "lan"}), nil)
	api.EXPECT().FindNote(ctx, gomock.Any()).Return(notes(), nil)
	api.EXPECT().CreateNote(ctx, gomock.Any()).Return(&models.Note{ID: "ov"}, nil)

	obs := &resultRecorder{}
	s := newSyncer(api, Options{}, obs)

	report, err := s.Run(ctx, decode(t, dump), allowSet{"bad": true, "h2": true, "h3": true})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Synced)
	require.Equal(t, 3, report.Failed())

	assert.Equal(t, 0, report.Failures[0].Index)
	assert.ErrorIs(t, report.Failures[0].Err, models.ErrMissingField)

	assert.Equal(t, "bad", report.Failures[1].ExpoID)
	assert.ErrorIs(t, report.Failures[1].Err, models.ErrMissingField)

	assert.Equal(t, "h2", report.Failures[2].ExpoID)
	var statusErr *joplin.StatusError
	assert.True(t, errors.As(report.Failures[2].Err, &statusErr))

	assert.Equal(t, []string{
		metrics.ResultFailed, metrics.ResultFailed, metrics.ResultFailed, metrics.ResultSynced,
	}, obs.results)
}

func TestRunRootFolderFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx := context.Background()

	api.EXPECT().FindFolder(ctx, "10-Hosts").Return(folders(
		models.Folder{ID: "a", Title: "10-Hosts"},
		models.Folder{ID: "b", Title: "10-Hosts"},
	), nil)

	s := newSyncer(api, Options{}, nil)

	_, err := s.Run(ctx, decode(t, h1Dump), allowSet{"h1": true})
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestRunCanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	api := mock_joplin.NewMockAPI(ctrl)
	ctx, cancel := context.WithCancel(context.Background())

	api.EXPECT().FindFolder(ctx, "10-Hosts").DoAndReturn(
		func(context.Context, string) (*models.FolderList, error) {
			cancel()
			return folders(models.Folder{ID: "root", Title: "10-Hosts"}), nil
		})

	s := newSyncer(api, Options{}, nil)

	report, err := s.Run(ctx, decode(t, h1Dump), allowSet{"h1": true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Synced)
}

func TestNoteQuery(t *testing.T) {
	assert.Equal(t, `title:"00-Overview" notebook:"h1"`, noteQuery("00-Overview", "h1"))
	assert.Equal(t, `title:"say hi" notebook:"h1"`, noteQuery(`say "hi"`, "h1"))
}
