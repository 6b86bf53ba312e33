// Package conflict decides where a folder lands when its destination already exists.
package conflict

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Veraticus/courier/internal/model"
)

// Resolver resolves destination paths. It is a pure function of filesystem state.
type Resolver struct {
	stat func(string) (os.FileInfo, error)
}

// NewResolver creates a resolver that inspects the OS filesystem.
func NewResolver() *Resolver {
	return &Resolver{stat: os.Stat}
}

// Resolve returns the final destination path for folderName under destinationRoot.
//
// Skip and Overwrite return the existing path unchanged; the caller detects
// "already exists" for Skip, and Overwrite copies in place (last write wins).
// AppendSequence returns the first base_N that does not exist yet.
func (r *Resolver) Resolve(destinationRoot, folderName string, policy model.ConflictPolicy) (string, error) {
	target := filepath.Join(destinationRoot, folderName)

	exists, err := r.exists(target)
	if err != nil {
		return "", err
	}
	if !exists {
		return target, nil
	}

	switch policy {
	case model.ConflictSkip, model.ConflictOverwrite:
		return target, nil
	case model.ConflictAppendSequence:
		return r.nextSequence(destinationRoot, folderName)
	default:
		return "", fmt.Errorf("unknown conflict policy %q", policy)
	}
}

// Exists reports whether path exists.
func (r *Resolver) Exists(path string) (bool, error) {
	return r.exists(path)
}

func (r *Resolver) nextSequence(destinationRoot, folderName string) (string, error) {
	base, seq := SplitSequence(folderName)
	for {
		seq++
		candidate := filepath.Join(destinationRoot, base+"_"+strconv.Itoa(seq))
		exists, err := r.exists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

func (r *Resolver) exists(path string) (bool, error) {
	_, err := r.stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}

// SplitSequence splits base_base_base[_N] into its base and sequence number.
// Names that are not sequenced return the whole name and 0.
func SplitSequence(folderName string) (string, int) {
	parts := strings.Split(folderName, "_")
	if len(parts) == 4 {
		if n, err := strconv.Atoi(parts[3]); err == nil && n > 0 {
			return strings.Join(parts[:3], "_"), n
		}
	}
	return folderName, 0
}
