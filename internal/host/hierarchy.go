package host

import (
	"path/filepath"
	"strings"
)

// FileHierarchy describes a project opened from disk
type FileHierarchy struct {
	path  string
	guids string
	ok    bool
}

// NewFileHierarchy reads projectFile. A file that cannot be parsed still
// yields a hierarchy without a project type list, so classification falls
// back to the Sdk check.
func NewFileHierarchy(projectFile string) *FileHierarchy {
	path, err := filepath.Abs(projectFile)
	if err != nil {
		path = projectFile
	}
	h := &FileHierarchy{path: path}

	doc, err := readProjectDocument(path)
	if err != nil {
		return h
	}
	for _, group := range doc.PropertyGroups {
		for _, p := range group.Properties {
			if p.XMLName.Local == "ProjectTypeGuids" {
				h.guids = strings.TrimSpace(p.Value)
				h.ok = true
			}
		}
	}
	return h
}

// ProjectFile returns the absolute path of the project file
func (h *FileHierarchy) ProjectFile() string {
	return h.path
}

// AggregateProjectTypeGUIDs returns the ProjectTypeGuids property, if the project declares one
func (h *FileHierarchy) AggregateProjectTypeGUIDs() (string, bool) {
	return h.guids, h.ok
}
