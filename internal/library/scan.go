// ABOUTME: Media directory scanner
// ABOUTME: Walks a tree, reads tags and upserts tracks into the store
package library

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// mediaExts is the set of playable file extensions worth indexing.
var mediaExts = map[string]bool{
	".flac": true,
	".wav":  true,
	".ogg":  true,
	".opus": true,
	".mp3":  true,
	".dsf":  true,
}

// Scan walks root, indexes every media file into the store and returns
// how many tracks were added or refreshed. Unreadable files are logged
// and skipped, never fatal.
func Scan(root string, store *Store) (int, error) {
	added := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("Scan: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !mediaExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		track, album, artist := probeFile(path)
		albumID, err := store.EnsureAlbum(album, artist)
		if err != nil {
			return err
		}
		track.AlbumID = albumID
		if err := store.AddTrack(track); err != nil {
			return err
		}
		added++
		return nil
	})
	if err != nil {
		return added, err
	}
	return added, store.Flush()
}

// probeFile reads tags from one media file, falling back to path-derived
// names when the file carries none.
func probeFile(path string) (Track, string, string) {
	track := Track{
		Path:   path,
		Title:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Artist: "Unknown Artist",
	}
	album := "Unknown Album"

	f, err := os.Open(path)
	if err != nil {
		return track, album, track.Artist
	}
	defer f.Close()

	tags, err := tag.ReadFrom(f)
	if err != nil {
		return track, album, track.Artist
	}

	if t := tags.Title(); t != "" {
		track.Title = t
	}
	if a := tags.Artist(); a != "" {
		track.Artist = a
	}
	if a := tags.Album(); a != "" {
		album = a
	}
	track.Track, _ = tags.Track()

	artist := tags.AlbumArtist()
	if artist == "" {
		artist = track.Artist
	}
	return track, album, artist
}
