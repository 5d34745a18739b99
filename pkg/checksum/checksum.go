// Package checksum computes and checks SHA-256 digests for registry backups. Backups are
// uploaded with a SHA256SUMS-style sidecar ("<hex>  <name>") so an operator can verify a
// downloaded file with sha256sum -c, and restore refuses a backup whose digest has drifted.
package checksum

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

// ErrMismatch is returned when data does not hash to the expected digest.
var ErrMismatch = errors.New("checksum mismatch")

// SumsSuffix is appended to a backup key to name its digest sidecar.
const SumsSuffix = ".sha256"

// CalculateSHA256 calculates the SHA256 checksum of data from a reader
func CalculateSHA256(reader io.Reader) (string, error) {
	r := NewReader(reader)
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return r.Sum(), nil
}

// Bytes returns the hex SHA-256 of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify returns ErrMismatch unless data hashes to expected. Comparison ignores case.
func Verify(data []byte, expected string) error {
	actual := Bytes(data)
	if !strings.EqualFold(actual, strings.TrimSpace(expected)) {
		return fmt.Errorf("%w: got %s, want %s", ErrMismatch, actual, expected)
	}
	return nil
}

// Reader hashes and counts everything read through it.
type Reader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: sha256.New()}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.h.Write(p[:n])
		r.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far.
func (r *Reader) Sum() string { return hex.EncodeToString(r.h.Sum(nil)) }

// N returns the number of bytes read so far.
func (r *Reader) N() int64 { return r.n }

// FormatSums renders one sha256sum line per name, in the order given.
func FormatSums(names []string, sums map[string]string) string {
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s  %s\n", sums[name], name)
	}
	return b.String()
}

// ParseSums reads sha256sum output into a name to digest map. Binary-mode markers
// ("<hex> *name") are accepted. Blank lines are skipped.
func ParseSums(r io.Reader) (map[string]string, error) {
	sums := make(map[string]string)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		digest, name, ok := strings.Cut(text, " ")
		if !ok {
			return nil, fmt.Errorf("malformed checksum line %d", line)
		}
		name = strings.TrimPrefix(strings.TrimLeft(name, " "), "*")
		if len(digest) != sha256.Size*2 || name == "" {
			return nil, fmt.Errorf("malformed checksum line %d", line)
		}
		if _, err := hex.DecodeString(digest); err != nil {
			return nil, fmt.Errorf("malformed checksum line %d: %w", line, err)
		}
		sums[name] = strings.ToLower(digest)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}
	return sums, nil
}
