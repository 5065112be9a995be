// Package store persists personality reports as JSON files, one per user.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/oceancheck/internal/schema"
)

// DefaultDir is where reports are written when no directory is configured.
const DefaultDir = "./outputs"

// Ext is the file extension of saved reports.
const Ext = ".tmp"

// Path returns the report path for username inside dir.
func Path(dir, username string) string {
	return filepath.Join(dir, username+Ext)
}

// Save writes report to <dir>/<username>.tmp with four-space indentation,
// creating dir if needed, and returns the written path.
func Save(dir string, report *schema.Report) (string, error) {
	if report == nil {
		return "", errors.New("store: nil report")
	}
	if report.Username == "" || strings.ContainsAny(report.Username, `/\`) {
		return "", fmt.Errorf("store: invalid username %q", report.Username)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("store: create %s: %w", dir, err)
	}

	b, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return "", fmt.Errorf("store: marshal: %w", err)
	}

	path := Path(dir, report.Username)
	if err := os.WriteFile(path, append(b, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("store: write %s: %w", path, err)
	}
	return path, nil
}

// SaveCompatibility writes report to <dir>/<user1>_<user2>.couple.json with
// four-space indentation and returns the written path. Couple files are not
// listed by List.
func SaveCompatibility(dir string, report *schema.CompatibilityReport) (string, error) {
	if report == nil || len(report.Users) != 2 {
		return "", errors.New("store: compatibility report needs two users")
	}
	for _, u := range report.Users {
		if u == "" || strings.ContainsAny(u, `/\`) {
			return "", fmt.Errorf("store: invalid username %q", u)
		}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("store: create %s: %w", dir, err)
	}

	b, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return "", fmt.Errorf("store: marshal: %w", err)
	}

	path := filepath.Join(dir, report.Users[0]+"_"+report.Users[1]+".couple.json")
	if err := os.WriteFile(path, append(b, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("store: write %s: %w", path, err)
	}
	return path, nil
}

// List returns the names of saved reports in dir, sorted. A missing dir has
// no reports.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load decodes the report at path.
func Load(path string) (*schema.Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	var r schema.Report
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", path, err)
	}
	return &r, nil
}

// Resolve maps a user argument to a saved report path. ref may be a path to an
// existing file, a file name inside dir, or a username with or without "@".
func Resolve(dir, ref string) string {
	if _, err := os.Stat(ref); err == nil && strings.HasSuffix(ref, Ext) {
		return ref
	}
	name := strings.TrimPrefix(strings.TrimSpace(ref), "@")
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	return filepath.Join(dir, name)
}
