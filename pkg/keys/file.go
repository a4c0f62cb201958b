package keys

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// inactiveMarker is appended to the description of inactive records on save.
const inactiveMarker = "[inactive]"

// fileHeader is written at the top of every saved key file.
var fileHeader = []string{
	"# API key registry",
	"# Format: name:secret:description",
	"# One key per line. Lines starting with # are comments.",
	"# Inactive keys carry " + inactiveMarker + " at the end of the description.",
	"# This file is rewritten by the relay; edit with care.",
}

// FileStore reads and writes the line-oriented key file:
//
//	name:secret:description
//
// Blank lines and lines starting with '#' are skipped. The description is
// optional. Lines whose secret lacks SecretPrefix are skipped with a warning.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store for the key file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: slog.Default().With("component", "keys.file"),
	}
}

// Path returns the key file path.
func (s *FileStore) Path() string {
	return s.path
}

// Name returns "file".
func (s *FileStore) Name() string {
	return "file"
}

// Load parses the key file. Records get the load time as their creation time.
func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", s.path, err)
	}
	defer f.Close()

	return s.parse(ctx, f, time.Now())
}

func (s *FileStore) parse(ctx context.Context, r io.Reader, now time.Time) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		rec, err := ParseLine(scanner.Text())
		if err != nil {
			if errors.Is(err, ErrSkipLine) {
				continue
			}
			s.logger.WarnContext(ctx, "skipping malformed key file line",
				"path", s.path,
				"line", lineNum,
				"error", err,
			)
			continue
		}
		rec.CreatedAt = now
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", s.path, err)
	}

	return records, nil
}

// ErrSkipLine is returned by ParseLine for blank and comment lines.
var ErrSkipLine = errors.New("blank or comment line")

// ParseLine parses one key file line. Blank and comment lines return
// ErrSkipLine; malformed lines return a descriptive error.
func ParseLine(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Record{}, ErrSkipLine
	}

	parts := strings.SplitN(line, ":", 3)
	if len(parts) < 2 {
		return Record{}, fmt.Errorf("expected name:secret[:description], got %d field(s)", len(parts))
	}

	name := strings.TrimSpace(parts[0])
	secret := strings.TrimSpace(parts[1])
	description := ""
	if len(parts) == 3 {
		description = strings.TrimSpace(parts[2])
	}

	if name == "" {
		return Record{}, fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if !strings.HasPrefix(secret, SecretPrefix) {
		return Record{}, fmt.Errorf("key %q: %w", name, ErrInvalidSecret)
	}

	description, active := splitStatus(description)

	return Record{
		Name:        name,
		Secret:      secret,
		Description: description,
		Active:      active,
	}, nil
}

// FormatLine renders a record in key file form.
func FormatLine(r Record) string {
	desc := r.Description
	if !r.Active {
		if desc == "" {
			desc = inactiveMarker
		} else {
			desc += " " + inactiveMarker
		}
	}
	return r.Name + ":" + r.Secret + ":" + desc
}

// splitStatus strips the inactive marker from the end of a description.
// Only the bracketed marker counts; a description that merely ends in the
// word "inactive" is user text and leaves the key active.
func splitStatus(description string) (string, bool) {
	if description == inactiveMarker {
		return "", false
	}
	if rest, ok := strings.CutSuffix(description, " "+inactiveMarker); ok {
		return strings.TrimSpace(rest), false
	}
	return description, true
}

// Save rewrites the key file. The content is written to a temporary file in
// the same directory and renamed over the original.
func (s *FileStore) Save(ctx context.Context, records []Record) error {
	var buf bytes.Buffer
	for _, line := range fileHeader {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	for _, r := range records {
		buf.WriteString(FormatLine(r))
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create key file directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary key file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set key file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace key file %q: %w", s.path, err)
	}

	s.logger.DebugContext(ctx, "key file written",
		"path", s.path,
		"records", len(records),
	)
	return nil
}

// ModTime returns the key file's modification time, or the zero time if it
// does not exist yet.
func (s *FileStore) ModTime(ctx context.Context) (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to stat key file %q: %w", s.path, err)
	}
	return info.ModTime(), nil
}

// Close is a no-op for file stores.
func (s *FileStore) Close() error {
	return nil
}
