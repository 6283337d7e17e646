// ABOUTME: High-level Kanade library API
// ABOUTME: Provides a simple Player wrapper over the playback engine
// Package kanade provides a high-level API for gapless local playback.
//
// This is the main entry point for library users. A Player owns the
// device sink and the playback engine goroutine:
//
//	player, err := kanade.NewPlayer(kanade.Config{
//	    DeviceName: "USB DAC",
//	})
//	err = player.Play("/music/album/01.flac")
//	player.Pause()
//	player.Resume()
//	<-player.Done()
//
// For lower-level control, see the internal engine, device and source
// packages.
package kanade
