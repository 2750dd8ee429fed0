package messaging

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MetadataRelativePath is where the editor publishes its messaging endpoint,
// relative to the project directory.
var MetadataRelativePath = filepath.Join(".godot", "mono", "metadata", "ide_messaging_meta.txt")

// Metadata is the content of the endpoint metadata file.
// Line one holds the port, line two the editor executable path (optional).
type Metadata struct {
	Port           int
	ExecutablePath string
}

// MetadataPath returns the metadata file location for projectDir
func MetadataPath(projectDir string) string {
	return filepath.Join(projectDir, MetadataRelativePath)
}

// ReadMetadata parses the endpoint metadata published for projectDir
func ReadMetadata(projectDir string) (*Metadata, error) {
	path := MetadataPath(projectDir)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open endpoint metadata: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var lines []string
	for scanner.Scan() && len(lines) < 2 {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read endpoint metadata: %w", err)
	}
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("endpoint metadata %s is empty", path)
	}

	port, err := strconv.Atoi(lines[0])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("endpoint metadata %s has invalid port %q", path, lines[0])
	}

	md := &Metadata{Port: port}
	if len(lines) > 1 {
		md.ExecutablePath = lines[1]
	}
	return md, nil
}

// WriteMetadata publishes md for projectDir, creating the metadata directory
func WriteMetadata(projectDir string, md Metadata) error {
	path := MetadataPath(projectDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	content := strconv.Itoa(md.Port) + "\n"
	if md.ExecutablePath != "" {
		content += md.ExecutablePath + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write endpoint metadata: %w", err)
	}
	return nil
}

// RemoveMetadata deletes the metadata file for projectDir, ignoring a missing file
func RemoveMetadata(projectDir string) error {
	if err := os.Remove(MetadataPath(projectDir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Endpoint resolves and dials the editor serving a project directory
type Endpoint interface {
	Dial(ctx context.Context, projectDir string) (net.Conn, error)
}

// MetadataEndpoint dials the loopback port published in the project's metadata file
type MetadataEndpoint struct{}

func (MetadataEndpoint) Dial(ctx context.Context, projectDir string) (net.Conn, error) {
	md, err := ReadMetadata(projectDir)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(md.Port)))
}

// AddressEndpoint dials a fixed address regardless of the project directory
type AddressEndpoint string

func (a AddressEndpoint) Dial(ctx context.Context, _ string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", string(a))
}
