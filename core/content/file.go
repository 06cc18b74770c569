// Package content provides the response body producers: a mapped-file
// source for GET and a pluggable sink for POST bodies.
package content

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNotFound is returned by Stat when the path cannot be stat'ed or
// names a directory.
var ErrNotFound = errors.New("content: file not found")

// Stat returns the size of the file at path, or ErrNotFound.
func Stat(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, ErrNotFound
	}
	if fi.IsDir() {
		return 0, ErrNotFound
	}
	return fi.Size(), nil
}

// Map maps the file at path read-only into memory and returns the
// bytes together with the function that releases the mapping. The file
// descriptor is closed before returning; the mapping keeps the pages
// alive on its own.
func Map(path string, size int64) ([]byte, func(), error) {
	if size == 0 {
		return nil, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	f.Close()
	if err != nil {
		return nil, nil, err
	}

	unmap := func() {
		unix.Munmap(data)
	}
	return data, unmap, nil
}
