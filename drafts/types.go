package drafts

import (
	"errors"
	"fmt"
)

// Folder is the Drafts folder a draft lives in.
type Folder string

const (
	FolderInbox   Folder = "inbox"
	FolderArchive Folder = "archive"
	FolderTrash   Folder = "trash"
)

// ErrInvalidFolder is returned for a folder outside inbox, archive and trash.
var ErrInvalidFolder = errors.New("invalid folder")

// Valid reports whether f names one of the three Drafts folders.
func (f Folder) Valid() bool {
	switch f {
	case FolderInbox, FolderArchive, FolderTrash:
		return true
	}
	return false
}

// ParseFolder validates s. The empty string is accepted and means "any".
func ParseFolder(s string) (Folder, error) {
	f := Folder(s)
	if s == "" || f.Valid() {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFolder, s)
}

type Workspace struct {
	Name string `json:"name"`
}

// Draft is a single Drafts document. Dates are ISO-8601 strings as
// produced inside the script, independent of the system locale.
type Draft struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	Content               string   `json:"content"`
	Flagged               bool     `json:"flagged"`
	Folder                Folder   `json:"folder"`
	Tags                  []string `json:"tags"`
	TagNames              string   `json:"tagNames"`
	QueryTagNames         string   `json:"queryTagNames"`
	CreationDate          string   `json:"creationDate"`
	ModificationDate      string   `json:"modificationDate"`
	AccessDate            string   `json:"accessDate"`
	Permalink             string   `json:"permalink"`
	CreationLatitude      float64  `json:"creationLatitude"`
	CreationLongitude     float64  `json:"creationLongitude"`
	ModificationLatitude  float64  `json:"modificationLatitude"`
	ModificationLongitude float64  `json:"modificationLongitude"`
}

type Action struct {
	Name string `json:"name"`
}

// Tag is a tag name and, when fetched with Client.Tag, its drafts.
type Tag struct {
	Name   string  `json:"name"`
	Drafts []Draft `json:"drafts,omitempty"`
}

// Filter narrows Client.Drafts. Zero fields do not filter. Dates use the
// YYYY-MM-DD form and compare against midnight local time.
type Filter struct {
	Query          string
	Folder         Folder
	Tag            string
	Flagged        *bool
	CreatedAfter   string
	CreatedBefore  string
	ModifiedAfter  string
	ModifiedBefore string
}
