// Package export reads and writes the JSON artifacts a run captures: one document per
// instance and type, plus the discovery report of each instance.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/schema"
)

// ErrArtifactNotFound indicates no artifact was written for the instance and type.
var ErrArtifactNotFound = errors.New("artifact not found")

// InfoFile is the name of the discovery report written for each instance.
const InfoFile = "org.json"

// sameSuffix marks the destination folder when source and destination share an alias.
const sameSuffix = "_SAME"

// Folder returns the folder name for an instance alias. When the source and destination
// aliases are equal, the destination uses a distinct folder so its artifacts do not
// overwrite the source's.
func Folder(alias string, destination, sameAlias bool) string {
	if destination && sameAlias {
		return alias + sameSuffix
	}
	return alias
}

// Dir is the root directory of the artifacts.
type Dir struct {
	root string
}

// NewDir creates a Dir rooted at root. Nothing is created until the first write.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the root directory.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the artifact path of a type in a folder.
func (d *Dir) Path(folder, typ string) string {
	return filepath.Join(d.root, folder, typ+".json")
}

// Write stores the export of a type.
func (d *Dir) Write(folder, typ string, exp datacopy.Export) error {
	if exp.Records == nil {
		exp.Records = []datacopy.Record{}
	}
	return d.writeJSON(d.Path(folder, typ), exp)
}

// Read loads the export of a type.
// Returns ErrArtifactNotFound if the type was not exported to the folder.
func (d *Dir) Read(folder, typ string) (datacopy.Export, error) {
	var exp datacopy.Export
	if err := d.readJSON(d.Path(folder, typ), &exp); err != nil {
		return datacopy.Export{}, err
	}
	return exp, nil
}

// WriteInfo stores the discovery report of an instance.
func (d *Dir) WriteInfo(folder string, info schema.Info) error {
	return d.writeJSON(filepath.Join(d.root, folder, InfoFile), info)
}

// ReadInfo loads the discovery report of an instance.
// Returns ErrArtifactNotFound if none was written.
func (d *Dir) ReadInfo(folder string) (schema.Info, error) {
	var info schema.Info
	if err := d.readJSON(filepath.Join(d.root, folder, InfoFile), &info); err != nil {
		return schema.Info{}, err
	}
	return info, nil
}

func (d *Dir) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact folder: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (d *Dir) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
