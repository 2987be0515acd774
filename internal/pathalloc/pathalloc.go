// Package pathalloc resolves a prefetched filename and a save directory
// into a concrete, exclusively-owned destination path: sanitize the
// candidate name, then probe the filesystem for the first name in the
// sequence "name", "name (1)", "name (2)", ... that does not already
// exist.
//
// Grounded on two sources: sanitization follows the teacher's
// sanitizeFilename (internal/utils/filename.go), and the numbering
// scheme is a direct port of gen_unique_path
// (_examples/original_source/src/downloader/unique_path.rs).
package pathalloc

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// windowsReserved are the device names Windows refuses to use as a
// filename regardless of extension.
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// maxNameLen is a conservative filename length cap; real filesystem
// limits vary, but 255 covers ext4/NTFS/APFS in the common case.
const maxNameLen = 255

// Sanitize produces a filesystem-safe filename from an arbitrary
// candidate (typically derived from Content-Disposition, a query
// parameter, or a URL path segment).
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "" {
		return "download.bin"
	}
	if name == "/" {
		return "_"
	}
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")

	replacer := strings.NewReplacer(
		":", "_", "*", "_", "?", "_", "\"", "_",
		"<", "_", ">", "_", "|", "_", "\x00", "_",
	)
	name = replacer.Replace(name)

	if runtime.GOOS == "windows" {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if windowsReserved[strings.ToUpper(stem)] {
			name = "_" + name
		}
	}

	if len(name) > maxNameLen {
		ext := filepath.Ext(name)
		stem := name[:len(name)-len(ext)]
		keep := maxNameLen - len(ext)
		if keep < 1 {
			keep = 1
		}
		if keep < len(stem) {
			stem = stem[:keep]
		}
		name = stem + ext
	}

	if name == "" || name == "." {
		name = "download.bin"
	}
	return name
}

// Unique returns the first path in the sequence path, "name (1).ext",
// "name (2).ext", ... that does not currently exist on disk. It ports
// gen_unique_path's loop exactly: split the stem and extension once,
// then probe candidates with os.Stat until one is absent.
func Unique(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	} else if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// Resolve joins saveDir and a sanitized filename, then allocates a
// unique path for it.
func Resolve(saveDir, filename string) (string, error) {
	clean := Sanitize(filename)
	return Unique(filepath.Join(saveDir, clean))
}
