package conflict

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Veraticus/courier/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, n), 0o750))
	}
}

func TestResolver_Resolve(t *testing.T) {
	const name = "E001_20260116_UG"

	tests := []struct {
		name     string
		existing []string
		folder   string
		policy   model.ConflictPolicy
		want     string
	}{
		{name: "absent destination is unchanged", folder: name, policy: model.ConflictAppendSequence, want: name},
		{name: "skip keeps existing path", existing: []string{name}, folder: name, policy: model.ConflictSkip, want: name},
		{name: "overwrite keeps existing path", existing: []string{name}, folder: name, policy: model.ConflictOverwrite, want: name},
		{name: "append first sequence", existing: []string{name}, folder: name, policy: model.ConflictAppendSequence, want: name + "_1"},
		{name: "append skips taken sequences", existing: []string{name, name + "_1", name + "_2"}, folder: name, policy: model.ConflictAppendSequence, want: name + "_3"},
		{name: "sequenced name continues from its number", existing: []string{name + "_5"}, folder: name + "_5", policy: model.ConflictAppendSequence, want: name + "_6"},
		{name: "sequenced name skips holes above", existing: []string{name + "_2", name + "_3", name + "_4"}, folder: name + "_2", policy: model.ConflictAppendSequence, want: name + "_5"},
		{name: "unsequenced odd name", existing: []string{"misc"}, folder: "misc", policy: model.ConflictAppendSequence, want: "misc_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			mkdirs(t, root, tt.existing...)

			got, err := NewResolver().Resolve(root, tt.folder, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, tt.want), got)
		})
	}
}

func TestResolver_SequencingIsIdempotent(t *testing.T) {
	const name = "E001_20260116_UG"
	root := t.TempDir()
	mkdirs(t, root, name, name+"_1", name+"_2")

	r := NewResolver()
	first, err := r.Resolve(root, name, model.ConflictAppendSequence)
	require.NoError(t, err)
	second, err := r.Resolve(root, name, model.ConflictAppendSequence)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, name+"_3"), first)
	assert.Equal(t, first, second)
}

func TestResolver_ManyExistingSequences(t *testing.T) {
	const name = "E001_20260116_UG"
	root := t.TempDir()
	mkdirs(t, root, name)
	for i := 1; i <= 40; i++ {
		mkdirs(t, root, name+"_"+strconv.Itoa(i))
	}

	got, err := NewResolver().Resolve(root, name, model.ConflictAppendSequence)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, name+"_41"), got)
}

func TestResolver_UnknownPolicy(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "x")
	_, err := NewResolver().Resolve(root, "x", model.ConflictPolicy("merge"))
	require.Error(t, err)
}

func TestSplitSequence(t *testing.T) {
	base, seq := SplitSequence("A_20260101_UG_7")
	assert.Equal(t, "A_20260101_UG", base)
	assert.Equal(t, 7, seq)

	base, seq = SplitSequence("A_20260101_UG_0")
	assert.Equal(t, "A_20260101_UG_0", base)
	assert.Zero(t, seq)

	base, seq = SplitSequence("A_20260101_UG")
	assert.Equal(t, "A_20260101_UG", base)
	assert.Zero(t, seq)
}
