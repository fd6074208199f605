package download

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/marcus/bid-analyzer/internal/models"
)

// save writes data to destDir via a temp file and rename, so a crash never
// leaves a half-written document behind. Empty files and HTML error pages
// are rejected.
func (w *Walker) save(name string, data []byte, sourceURL string) (*SavedFile, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("downloaded file is empty: %s", name)
	}

	name = sanitizeFilename(name)
	if name == "" {
		name = "document"
	}
	name = w.uniqueName(name)

	fileType := models.FileTypeForName(name)
	if fileType != models.FileTypeText && looksLikeHTML(data) {
		return nil, fmt.Errorf("downloaded file looks like an HTML error page: %s", name)
	}

	tmp, err := os.CreateTemp(w.destDir, ".download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close %s: %w", name, err)
	}

	finalPath := filepath.Join(w.destDir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("rename %s: %w", name, err)
	}

	saved := SavedFile{
		Name:      name,
		Path:      finalPath,
		Size:      int64(len(data)),
		FileType:  fileType,
		SourceURL: sourceURL,
	}
	w.result.Files = append(w.result.Files, saved)
	log.Printf("[download] saved %s (%d bytes)", name, saved.Size)
	return &saved, nil
}

// extractArchive unpacks a downloaded ZIP into the destination directory and
// replaces the archive entry with its member files.
func (w *Walker) extractArchive(archive *SavedFile) error {
	r, err := zip.OpenReader(archive.Path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archive.Name, err)
	}
	defer r.Close()

	// Drop the archive itself from the result; the members replace it.
	for i, f := range w.result.Files {
		if f.Path == archive.Path {
			w.result.Files = append(w.result.Files[:i], w.result.Files[i+1:]...)
			break
		}
	}

	for _, member := range r.File {
		if member.FileInfo().IsDir() {
			continue
		}
		rc, err := member.Open()
		if err != nil {
			log.Printf("[download] archive member %s: %v", member.Name, err)
			continue
		}
		data, err := io.ReadAll(io.LimitReader(rc, 200<<20))
		rc.Close()
		if err != nil {
			log.Printf("[download] archive member %s: %v", member.Name, err)
			continue
		}
		if _, err := w.save(filepath.Base(member.Name), data, archive.SourceURL); err != nil {
			log.Printf("[download] archive member %s: %v", member.Name, err)
		}
	}

	os.Remove(archive.Path)
	return nil
}

func (w *Walker) uniqueName(name string) string {
	taken := func(n string) bool {
		for _, f := range w.result.Files {
			if f.Name == n {
				return true
			}
		}
		return false
	}
	if !taken(name) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// sanitizeFilename strips path separators and characters that are unsafe on
// common filesystems, and bounds the length.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")

	var b strings.Builder
	for _, r := range name {
		if !unicode.IsPrint(r) || strings.ContainsRune(`<>:"|?*`, r) {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.TrimSpace(b.String())

	if len(name) > 255 {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		if len(ext) > 10 {
			ext = ""
		}
		name = stem[:250-len(ext)] + ext
	}
	return name
}

func looksLikeHTML(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	lower := bytes.ToLower(head)
	return bytes.Contains(lower, []byte("<html")) || bytes.Contains(lower, []byte("<!doctype"))
}
