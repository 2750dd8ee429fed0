package host

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/godot-bridge/internal/project"
)

// Project file as generated by the Godot editor
const godotProject = `<Project Sdk="Godot.NET.Sdk/4.2.1">
  <PropertyGroup>
    <TargetFramework>net6.0</TargetFramework>
    <EnableDynamicLoading>true</EnableDynamicLoading>
  </PropertyGroup>
  <PropertyGroup>
    <GodotProjectDir Condition=" '$(SolutionDir)' != '' ">$(SolutionDir)</GodotProjectDir>
    <GodotProjectDir Condition=" '$(SolutionDir)' == '' ">$(MSBuildProjectDirectory)</GodotProjectDir>
  </PropertyGroup>
</Project>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestExpandProperties(t *testing.T) {
	projectFile := filepath.FromSlash("/work/game/Game.csproj")
	ctx := &PropertyContext{
		ProjectFile: projectFile,
		SolutionDir: filepath.FromSlash("/work"),
		Properties:  map[string]string{"Configuration": "Debug"},
		LookupEnv: func(key string) (string, bool) {
			if key == "GODOT_HOME" {
				return "/opt/godot", true
			}
			return "", false
		},
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"project directory", "$(MSBuildProjectDirectory)", filepath.FromSlash("/work/game")},
		{"this file directory", "$(MSBuildThisFileDirectory)", filepath.FromSlash("/work/game/")},
		{"project name", "$(MSBuildProjectName)", "Game"},
		{"full path", "$(MSBuildProjectFullPath)", projectFile},
		{"solution dir has trailing separator", "$(SolutionDir)", filepath.FromSlash("/work/")},
		{"defined property", "bin/$(Configuration)", "bin/Debug"},
		{"environment", "$(GODOT_HOME)/bin", "/opt/godot/bin"},
		{"unknown property is empty", "x$(Nope)y", "xy"},
		{"no references", "plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandProperties(tt.text, ctx))
		})
	}
}

func TestEvaluateCondition(t *testing.T) {
	ctx := &PropertyContext{Properties: map[string]string{"A": "x"}, LookupEnv: noEnv}

	assert.True(t, evaluateCondition("", ctx))
	assert.True(t, evaluateCondition(" '$(A)' == 'x' ", ctx))
	assert.True(t, evaluateCondition("'$(A)' == 'X'", ctx))
	assert.False(t, evaluateCondition("'$(A)' != 'x'", ctx))
	assert.True(t, evaluateCondition("'$(B)' == ''", ctx))
	assert.False(t, evaluateCondition("Exists('foo')", ctx))
}

func TestEvaluator_GodotTemplate(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "Game.csproj", godotProject)

	t.Run("with solution", func(t *testing.T) {
		e := &Evaluator{Solution: NewSolution(filepath.Join(dir, "sln")), LookupEnv: noEnv}
		value, err := e.EvaluateProperty(file, project.ProjectDirProperty)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "sln")+string(filepath.Separator), value)
	})

	t.Run("without solution", func(t *testing.T) {
		e := &Evaluator{LookupEnv: noEnv}
		value, err := e.EvaluateProperty(file, project.ProjectDirProperty)
		require.NoError(t, err)
		assert.Equal(t, dir, value)
	})

	t.Run("undefined property", func(t *testing.T) {
		e := &Evaluator{LookupEnv: noEnv}
		value, err := e.EvaluateProperty(file, "Missing")
		require.NoError(t, err)
		assert.Empty(t, value)
	})
}

func TestEvaluator_Errors(t *testing.T) {
	dir := t.TempDir()
	e := &Evaluator{LookupEnv: noEnv}

	_, err := e.EvaluateProperty(filepath.Join(dir, "missing.csproj"), project.ProjectDirProperty)
	assert.Error(t, err)

	broken := writeFile(t, dir, "Broken.csproj", "<Project><PropertyGroup>")
	_, err = e.EvaluateProperty(broken, project.ProjectDirProperty)
	assert.Error(t, err)

	// the resolver falls back to the solution directory on either failure
	assert.Equal(t, "/sln", project.ResolveDirectory(e, broken, "/sln"))
}

func TestFileHierarchy(t *testing.T) {
	dir := t.TempDir()

	legacy := writeFile(t, dir, "Legacy.csproj", `<?xml version="1.0" encoding="utf-8"?>
<Project ToolsVersion="4.0" xmlns="http://schemas.microsoft.com/developer/msbuild/2003">
  <PropertyGroup>
    <ProjectTypeGuids>{8F3E2DF0-C35C-4265-82FC-BEA011F4A7ED};{FAE04EC0-301F-11D3-BF4B-00C04F79EFBC}</ProjectTypeGuids>
  </PropertyGroup>
</Project>`)
	h := NewFileHierarchy(legacy)
	guids, ok := h.AggregateProjectTypeGUIDs()
	require.True(t, ok)
	assert.Contains(t, guids, project.SupportedProjectTypeGUID)
	assert.Equal(t, project.Classification{Supported: true}, project.Classify(h))

	sdk := NewFileHierarchy(writeFile(t, dir, "Game.csproj", godotProject))
	_, ok = sdk.AggregateProjectTypeGUIDs()
	assert.False(t, ok)
	assert.Equal(t, project.Classification{Supported: true, SdkStyle: true}, project.Classify(sdk))
	assert.True(t, filepath.IsAbs(sdk.ProjectFile()))

	broken := NewFileHierarchy(writeFile(t, dir, "Broken.csproj", "<Project"))
	_, ok = broken.AggregateProjectTypeGUIDs()
	assert.False(t, ok)
	assert.Equal(t, project.Classification{}, project.Classify(broken))
}
