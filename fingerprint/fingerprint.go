// Package fingerprint computes content checksums used to detect file changes.
// The checksum is CRC32 (IEEE): cheap and stable, not tamper-proof.
package fingerprint

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

const chunkSize = 8 * 1024

// AccessError reports a path that could not be read to completion.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("fingerprint %s: %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// IsAccessError reports whether err is, or wraps, an AccessError.
func IsAccessError(err error) bool {
	var accessErr *AccessError
	return errors.As(err, &accessErr)
}

// File streams the file at path and returns its 8 digit hex checksum.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &AccessError{Path: path, Err: err}
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", &AccessError{Path: path, Err: err}
	}
	return sum, nil
}

// Reader checksums everything read from r in bounded chunks.
func Reader(r io.Reader) (string, error) {
	h := crc32.NewIEEE()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return Format(h.Sum32()), nil
}

func Format(sum uint32) string {
	return fmt.Sprintf("%08x", sum)
}
