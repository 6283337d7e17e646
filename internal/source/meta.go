// ABOUTME: Shared metadata probing for file sources
// ABOUTME: Tag lookup with filename fallback
package source

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

type meta struct {
	title  string
	artist string
	album  string
}

// probeMeta reads tags from the file, leaving the read position at the
// start. Files without tags fall back to the filename as title.
func probeMeta(f *os.File, path string) meta {
	m := meta{
		title:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		artist: "Unknown Artist",
		album:  "Unknown Album",
	}

	if tags, err := tag.ReadFrom(f); err == nil {
		if t := tags.Title(); t != "" {
			m.title = t
		}
		if a := tags.Artist(); a != "" {
			m.artist = a
		}
		if a := tags.Album(); a != "" {
			m.album = a
		}
	}
	f.Seek(0, io.SeekStart)
	return m
}
