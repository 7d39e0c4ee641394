package models

// Folder represents a Joplin notebook
type Folder struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	ParentID string `json:"parent_id,omitempty"`
}

// Note represents a Joplin note. IsTodo is 0 or 1 as the API expects.
type Note struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	Tags     string `json:"tags,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Author   string `json:"author,omitempty"`
	IsTodo   int    `json:"is_todo,omitempty"`
}

// FolderList is the envelope returned by folder list and search endpoints
type FolderList struct {
	Items   []Folder `json:"items"`
	HasMore bool     `json:"has_more"`
}

// NoteList is the envelope returned by the note search endpoint
type NoteList struct {
	Items   []Note `json:"items"`
	HasMore bool   `json:"has_more"`
}
