//go:build linux
// +build linux

package fusefs

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"bazil.org/fuse"
	bfs "bazil.org/fuse/fs"

	"github.com/ventoy/vbdgo/internal/chain"
	"github.com/ventoy/vbdgo/internal/fileopen"
	fsutil "github.com/ventoy/vbdgo/pkg/util/os"
)

// Mount serves fr's file-replace view at mountpoint until interrupted.
func Mount(mountpoint string, dev fileopen.SectorReader, fr chain.FileReplace, virtChunks []chain.VirtChunk) error {
	created, err := fsutil.EnsureDir(mountpoint, true)
	if err != nil {
		return err
	}
	if created {
		defer os.Remove(mountpoint)
	}

	c, err := fuse.Mount(mountpoint)
	if err != nil {
		return err
	}
	defer c.Close()

	replaceFS, err := New(dev, fr, virtChunks)
	if err != nil {
		return err
	}

	go func() {
		srv := bfs.New(c, nil)
		if err := srv.Serve(replaceFS); err != nil {
			log.Fatalf("fusefs: serve error: %v", err)
		}
	}()
	return waitForUmount(mountpoint)
}

func waitForUmount(mountpoint string) error {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	log.Println("fusefs: waiting for termination signal...")

	const maxUnmountRetries = 3
	unmountAttempts := 0
	for sig := range sigc {
		log.Printf("fusefs: signal received: %v.", sig)

		if unmountAttempts >= maxUnmountRetries-1 {
			log.Fatalf("fusefs: maximum unmount retries (%d) exceeded for %s, exiting forcefully.", maxUnmountRetries, mountpoint)
		}

		err := fuse.Unmount(mountpoint)
		if err == nil {
			log.Println("fusefs: unmounted successfully.")
			return nil
		}

		unmountAttempts++
		log.Printf("fusefs: unmount failed: %v, retries remaining: %d.", err, maxUnmountRetries-unmountAttempts)
	}
	return nil
}

