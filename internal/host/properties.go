package host

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// propertyPattern matches $(...) property references
var propertyPattern = regexp.MustCompile(`\$\(([^)]+)\)`)

// conditionPattern matches the only condition form Godot project templates use
var conditionPattern = regexp.MustCompile(`^\s*'([^']*)'\s*(==|!=)\s*'([^']*)'\s*$`)

// PropertyContext provides the built-in properties of one project file
type PropertyContext struct {
	ProjectFile string
	SolutionDir string

	// Properties defined so far, in document order
	Properties map[string]string

	// LookupEnv resolves properties that are not defined; defaults to os.LookupEnv
	LookupEnv func(key string) (string, bool)
}

func withTrailingSeparator(dir string) string {
	if dir == "" || strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}

// ExpandProperties replaces every $(Name) in text. Unknown properties expand to "".
func ExpandProperties(text string, ctx *PropertyContext) string {
	if ctx == nil {
		ctx = &PropertyContext{}
	}
	return propertyPattern.ReplaceAllStringFunc(text, func(match string) string {
		return resolveProperty(strings.TrimSpace(match[2:len(match)-1]), ctx)
	})
}

// resolveProperty resolves a single property name
func resolveProperty(name string, ctx *PropertyContext) string {
	if v, ok := ctx.Properties[name]; ok {
		return v
	}

	switch strings.ToLower(name) {
	case "msbuildprojectdirectory":
		return filepath.Dir(ctx.ProjectFile)
	case "msbuildthisfiledirectory":
		return withTrailingSeparator(filepath.Dir(ctx.ProjectFile))
	case "msbuildprojectfullpath":
		return ctx.ProjectFile
	case "msbuildprojectname":
		base := filepath.Base(ctx.ProjectFile)
		return strings.TrimSuffix(base, filepath.Ext(base))
	case "solutiondir":
		return withTrailingSeparator(ctx.SolutionDir)
	}

	lookup := ctx.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(name); ok {
		return v
	}
	return ""
}

// evaluateCondition supports '<a>' == '<b>' and '<a>' != '<b>'. Anything else is false.
func evaluateCondition(condition string, ctx *PropertyContext) bool {
	if strings.TrimSpace(condition) == "" {
		return true
	}
	m := conditionPattern.FindStringSubmatch(ExpandProperties(condition, ctx))
	if m == nil {
		return false
	}
	equal := strings.EqualFold(strings.TrimSpace(m[1]), strings.TrimSpace(m[3]))
	if m[2] == "==" {
		return equal
	}
	return !equal
}

type projectDocument struct {
	XMLName        xml.Name        `xml:"Project"`
	Sdk            string          `xml:"Sdk,attr"`
	PropertyGroups []propertyGroup `xml:"PropertyGroup"`
}

type propertyGroup struct {
	Condition  string        `xml:"Condition,attr"`
	Properties []xmlProperty `xml:",any"`
}

type xmlProperty struct {
	XMLName   xml.Name
	Condition string `xml:"Condition,attr"`
	Value     string `xml:",chardata"`
}

func readProjectDocument(projectFile string) (*projectDocument, error) {
	data, err := os.ReadFile(projectFile)
	if err != nil {
		return nil, err
	}
	var doc projectDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", projectFile, err)
	}
	return &doc, nil
}

// evaluateProperties walks the property groups in document order, the way a
// build evaluates static properties, and returns the final values
func evaluateProperties(doc *projectDocument, ctx *PropertyContext) map[string]string {
	if ctx.Properties == nil {
		ctx.Properties = make(map[string]string)
	}
	for _, group := range doc.PropertyGroups {
		if !evaluateCondition(group.Condition, ctx) {
			continue
		}
		for _, p := range group.Properties {
			if !evaluateCondition(p.Condition, ctx) {
				continue
			}
			ctx.Properties[p.XMLName.Local] = ExpandProperties(strings.TrimSpace(p.Value), ctx)
		}
	}
	return ctx.Properties
}

// Evaluator evaluates static properties straight from the project file
type Evaluator struct {
	Solution *Solution

	// LookupEnv defaults to os.LookupEnv
	LookupEnv func(key string) (string, bool)
}

// EvaluateProperty returns the value of property after evaluating projectFile.
// An undefined property evaluates to "".
func (e *Evaluator) EvaluateProperty(projectFile, property string) (string, error) {
	doc, err := readProjectDocument(projectFile)
	if err != nil {
		return "", err
	}
	ctx := &PropertyContext{
		ProjectFile: projectFile,
		LookupEnv:   e.LookupEnv,
	}
	if e.Solution != nil {
		ctx.SolutionDir = e.Solution.Directory()
	}
	return evaluateProperties(doc, ctx)[property], nil
}
