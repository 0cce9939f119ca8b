// Package memfile provides an in-memory file which can be used in place of
// an *os.File.  It is used by unit tests which read, write and update PDF
// files without touching the file system.
package memfile
