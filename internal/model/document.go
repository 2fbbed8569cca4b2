package model

import (
	"strings"

	syncp "github.com/njoerd114/offsync/internal/sync"
)

// Document is a file stored in a folder.
type Document struct {
	Name     string `json:"name"`
	FolderID string `json:"folder_id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
	Owner    string `json:"owner_id"`

	// LocalPath is where the file content is cached on this device.
	// Local-only.
	LocalPath string `json:"local_path,omitempty"`
}

type documentWire struct {
	Name     string `json:"name"`
	FolderID string `json:"folder_id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
	Owner    string `json:"owner_id"`
}

// RemoteShape implements syncp.Payload.
func (d Document) RemoteShape() any {
	return documentWire{
		Name:     d.Name,
		FolderID: d.FolderID,
		MimeType: d.MimeType,
		Size:     d.Size,
		Checksum: d.Checksum,
		Owner:    d.Owner,
	}
}

// MergeFields implements syncp.Payload. A changed checksum invalidates the
// cached copy.
func (d Document) MergeFields(remote Document) Document {
	if remote.Checksum != d.Checksum {
		d.LocalPath = ""
	}
	d.Name = remote.Name
	d.FolderID = remote.FolderID
	d.MimeType = remote.MimeType
	d.Size = remote.Size
	d.Checksum = remote.Checksum
	d.Owner = remote.Owner
	return d
}

// Validate implements syncp.Validator.
func (d Document) Validate() error {
	if err := firstErr(validName(d.Name), required("owner_id", d.Owner)); err != nil {
		return err
	}
	if d.Size < 0 {
		return &syncp.ValidationError{Field: "size", Message: "must not be negative"}
	}
	return nil
}

// ContentHash implements syncp.Hasher.
func (d Document) ContentHash() string {
	return hashFields(d.Name, d.FolderID, d.MimeType, d.Size, d.Checksum, d.Owner)
}

// OwnerID implements syncp.Owned.
func (d Document) OwnerID() string { return d.Owner }

// Folder groups documents. ParentID is empty for a root folder.
type Folder struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
	Owner    string `json:"owner_id"`

	// Collapsed is a local tree-view preference.
	Collapsed bool `json:"collapsed,omitempty"`
}

type folderWire struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
	Owner    string `json:"owner_id"`
}

// RemoteShape implements syncp.Payload.
func (f Folder) RemoteShape() any {
	return folderWire{Name: f.Name, ParentID: f.ParentID, Owner: f.Owner}
}

// MergeFields implements syncp.Payload.
func (f Folder) MergeFields(remote Folder) Folder {
	f.Name = remote.Name
	f.ParentID = remote.ParentID
	f.Owner = remote.Owner
	return f
}

// Validate implements syncp.Validator.
func (f Folder) Validate() error {
	return firstErr(validName(f.Name), required("owner_id", f.Owner))
}

// OwnerID implements syncp.Owned.
func (f Folder) OwnerID() string { return f.Owner }

func validName(name string) error {
	if err := firstErr(required("name", name), maxLen("name", name, 255)); err != nil {
		return err
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return &syncp.ValidationError{Field: "name", Message: "must not contain path separators"}
	}
	return nil
}
