package joplin

import (
	"context"

	"github.com/takak2166/expo2joplin/internal/models"
)

//go:generate mockgen -source=joplin.go -destination=mock_joplin/mock_joplin.go -package=mock_joplin
type API interface {
	Folders(ctx context.Context) (*models.FolderList, error)
	FindFolder(ctx context.Context, query string) (*models.FolderList, error)
	GetFolder(ctx context.Context, id string) (*models.Folder, error)
	CreateFolder(ctx context.Context, title string, parentID string) (*models.Folder, error)
	FindNote(ctx context.Context, query string) (*models.NoteList, error)
	GetNote(ctx context.Context, id string) (*models.Note, error)
	CreateNote(ctx context.Context, note *models.Note) (*models.Note, error)
	UpdateNote(ctx context.Context, note *models.Note) (*models.Note, error)
}

// RequestObserver is notified after every API request. Code is 0 when no
// response was received.
type RequestObserver interface {
	ObserveRequest(method, endpoint string, code int)
}
