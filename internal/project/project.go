// Package project decides whether an opened project is a Godot C# project
// and where its Godot project directory is.
package project

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ctagard/godot-bridge/pkg/types"
)

const (
	// SupportedProjectTypeGUID marks old-style Godot projects in the aggregate project type list
	SupportedProjectTypeGUID = "8F3E2DF0-C35C-4265-82FC-BEA011F4A7ED"

	// SdkPrefix is matched case-insensitively against the project's Sdk attribute
	SdkPrefix = "godot.net.sdk"

	// ProjectDirProperty is the build property naming the Godot project directory
	ProjectDirProperty = "GodotProjectDir"
)

var supportedProjectType = uuid.MustParse(SupportedProjectTypeGUID)

// Hierarchy is the host's view of an opened project
type Hierarchy interface {
	// ProjectFile returns the project file path, or "" when there is none
	ProjectFile() string

	// AggregateProjectTypeGUIDs returns the ';' separated project type list.
	// ok is false when the project does not expose one.
	AggregateProjectTypeGUIDs() (guids string, ok bool)
}

// BuildEvaluator evaluates build properties of a project file
type BuildEvaluator interface {
	EvaluateProperty(projectFile, property string) (string, error)
}

// Result is the outcome of a classification that may fail.
// Callers that only need a yes or no use Matched, which treats a failure as no match.
type Result struct {
	Match bool
	Err   error
}

// Matched reports a successful positive classification
func (r Result) Matched() bool {
	return r.Err == nil && r.Match
}

// ParseProjectTypeGUIDs parses a ';' separated GUID list, skipping entries that are not GUIDs
func ParseProjectTypeGUIDs(list string) []uuid.UUID {
	parts := strings.Split(list, ";")
	guids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		g, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		guids = append(guids, g)
	}
	return guids
}

// HasSupportedProjectType reports whether the hierarchy carries the Godot project type GUID
func HasSupportedProjectType(h Hierarchy) bool {
	list, ok := h.AggregateProjectTypeGUIDs()
	if !ok {
		return false
	}
	for _, g := range ParseProjectTypeGUIDs(list) {
		if g == supportedProjectType {
			return true
		}
	}
	return false
}

// DetectSdkStyle reads the root element of projectFile and checks its Sdk attribute
func DetectSdkStyle(projectFile string) Result {
	if projectFile == "" {
		return Result{}
	}

	f, err := os.Open(projectFile)
	if err != nil {
		return Result{Err: err}
	}
	defer f.Close()

	sdk, err := rootAttribute(f, "Sdk")
	if err != nil {
		return Result{Err: fmt.Errorf("failed to parse %s: %w", projectFile, err)}
	}
	return Result{Match: strings.HasPrefix(strings.ToLower(sdk), SdkPrefix)}
}

// rootAttribute returns the named attribute of the document's root element
func rootAttribute(r io.Reader, name string) (string, error) {
	decoder := xml.NewDecoder(r)
	for {
		tok, err := decoder.Token()
		if err != nil {
			return "", err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == name {
				return attr.Value, nil
			}
		}
		return "", nil
	}
}

// Classification says how an opened project is recognized
type Classification struct {
	// Supported is true for any Godot project
	Supported bool

	// SdkStyle is true for Godot.NET.Sdk projects, which become the launch target
	SdkStyle bool
}

// Classify checks both recognition rules. Errors reading the project file count as no match.
func Classify(h Hierarchy) Classification {
	sdkStyle := DetectSdkStyle(h.ProjectFile()).Matched()
	return Classification{
		Supported: sdkStyle || HasSupportedProjectType(h),
		SdkStyle:  sdkStyle,
	}
}

// ResolveDirectory evaluates GodotProjectDir for projectFile and falls back to
// solutionDir when evaluation fails or yields a blank value
func ResolveDirectory(evaluator BuildEvaluator, projectFile, solutionDir string) string {
	if evaluator == nil || projectFile == "" {
		return solutionDir
	}
	dir, err := evaluator.EvaluateProperty(projectFile, ProjectDirProperty)
	if err != nil || strings.TrimSpace(dir) == "" {
		return solutionDir
	}
	dir = strings.TrimSpace(dir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(projectFile), dir)
	}
	return filepath.Clean(dir)
}

// Identify builds the identity recorded when a solution registers
func Identify(h Hierarchy, c Classification, solutionDir, projectDir string) types.ProjectIdentity {
	file := h.ProjectFile()
	name := ""
	if file != "" {
		name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	return types.ProjectIdentity{
		RootPath:         solutionDir,
		ProjectDirectory: projectDir,
		ProjectFile:      file,
		Name:             name,
		IsSupportedKind:  c.Supported,
	}
}
