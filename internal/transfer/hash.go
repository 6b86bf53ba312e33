package transfer

import (
	"context"
	"crypto/md5"  //nolint:gosec // offered for compatibility with existing records
	"crypto/sha1" //nolint:gosec // offered for compatibility with existing records
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/Veraticus/courier/internal/model"
)

// NewHash returns a hash for the algorithm.
func NewHash(alg model.HashAlgorithm) (hash.Hash, error) {
	switch alg {
	case model.HashSHA256:
		return sha256.New(), nil
	case model.HashSHA512:
		return sha512.New(), nil
	case model.HashSHA1:
		return sha1.New(), nil //nolint:gosec // selectable by configuration
	case model.HashMD5:
		return md5.New(), nil //nolint:gosec // selectable by configuration
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", alg)
	}
}

// HashFile returns the lowercase hex digest of a file in fsys.
func HashFile(ctx context.Context, fsys billy.Filesystem, path string, alg model.HashAlgorithm) (string, error) {
	h, err := NewHash(alg)
	if err != nil {
		return "", err
	}

	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ctxReader stops a copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
