package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/courier/internal/config"
	"github.com/Veraticus/courier/internal/model"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultPolicy(t *testing.T) Policy {
	t.Helper()
	p, err := NewPolicy(config.AuditSettings{
		NamePattern:       config.DefaultNamePattern,
		Datasets:          []string{"UG", "OG"},
		Blacklist:         []string{".exe", "bat"},
		ArchiveExtensions: []string{".zip", ".7z"},
		Checks:            []model.AuditCheck{model.CheckName, model.CheckDataset, model.CheckExtension},
	})
	require.NoError(t, err)
	return p
}

func makeFolder(t *testing.T, name string, files map[string]int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	for rel, size := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
		require.NoError(t, os.WriteFile(full, make([]byte, size), 0o600))
	}
	return dir
}

func TestEngine_Audit(t *testing.T) {
	tests := []struct {
		name       string
		folder     string
		files      map[string]int
		wantStatus model.AuditStatus
		check      func(t *testing.T, v *model.AuditVerdict)
	}{
		{
			name:       "clean folder passes",
			folder:     "E001_20260116_UG",
			files:      map[string]int{"a.txt": 500, "b.pdf": 1500},
			wantStatus: model.AuditPassed,
			check: func(t *testing.T, v *model.AuditVerdict) {
				t.Helper()
				assert.Equal(t, 2, v.FileCount)
				assert.Equal(t, int64(2000), v.TotalBytes)
				assert.Equal(t, "E001", v.Name.Fields.EmployeeID)
				assert.Equal(t, "UG", v.Name.Fields.Dataset)
				assert.Empty(t, v.Issues)
			},
		},
		{
			name:       "archive present yields caution",
			folder:     "E001_20260116_UG",
			files:      map[string]int{"a.txt": 10, "bundle.ZIP": 20},
			wantStatus: model.AuditCaution,
			check: func(t *testing.T, v *model.AuditVerdict) {
				t.Helper()
				assert.Equal(t, []string{"bundle.ZIP"}, v.ArchiveFiles)
				assert.True(t, v.AllChecksValid())
			},
		},
		{
			name:       "blacklisted extension is case insensitive and recursive",
			folder:     "E001_20260116_UG",
			files:      map[string]int{"sub/deep/Setup.EXE": 1, "run.bat": 1, "ok.txt": 1},
			wantStatus: model.AuditFailed,
			check: func(t *testing.T, v *model.AuditVerdict) {
				t.Helper()
				require.Len(t, v.Extension.Violations, 2)
				paths := []string{v.Extension.Violations[0].RelativePath, v.Extension.Violations[1].RelativePath}
				assert.ElementsMatch(t, []string{"sub/deep/Setup.EXE", "run.bat"}, paths)
				assert.False(t, v.Extension.Valid)
			},
		},
		{
			name:       "archive with blacklisted file fails",
			folder:     "E001_20260116_UG",
			files:      map[string]int{"x.zip": 1, "x.exe": 1},
			wantStatus: model.AuditFailed,
		},
		{
			name:       "dataset not whitelisted is case sensitive",
			folder:     "E001_20260116_ug",
			files:      map[string]int{"a.txt": 1},
			wantStatus: model.AuditFailed,
			check: func(t *testing.T, v *model.AuditVerdict) {
				t.Helper()
				assert.True(t, v.Name.Valid)
				assert.True(t, v.Dataset.Performed)
				assert.False(t, v.Dataset.Valid)
			},
		},
		{
			name:       "impossible calendar date fails",
			folder:     "E001_20260230_UG",
			files:      map[string]int{"a.txt": 1},
			wantStatus: model.AuditFailed,
			check: func(t *testing.T, v *model.AuditVerdict) {
				t.Helper()
				assert.False(t, v.Name.Valid)
				assert.True(t, v.Name.Parsed)
				assert.Equal(t, "20260230", v.Name.Fields.DateText)
			},
		},
		{
			name:       "sequenced name passes",
			folder:     "E001_20260116_OG_2",
			files:      map[string]int{"a.txt": 1},
			wantStatus: model.AuditPassed,
			check: func(t *testing.T, v *model.AuditVerdict) {
				t.Helper()
				assert.True(t, v.Name.Fields.HasSeq)
				assert.Equal(t, 2, v.Name.Fields.Sequence)
			},
		},
	}

	engine := NewEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := makeFolder(t, tt.folder, tt.files)
			v := engine.Audit(context.Background(), dir, tt.folder, defaultPolicy(t))

			assert.Equal(t, tt.wantStatus, v.Status)
			if tt.check != nil {
				tt.check(t, v)
			}
		})
	}
}

func TestEngine_Audit_DisabledChecksPass(t *testing.T) {
	p, err := NewPolicy(config.AuditSettings{
		NamePattern: config.DefaultNamePattern,
		Datasets:    []string{"UG"},
		Blacklist:   []string{".exe"},
		Checks:      []model.AuditCheck{model.CheckName},
	})
	require.NoError(t, err)

	dir := makeFolder(t, "E001_20260116_XX", map[string]int{"tool.exe": 1})
	v := NewEngine(nil).Audit(context.Background(), dir, "E001_20260116_XX", p)

	assert.Equal(t, model.AuditPassed, v.Status)
	assert.False(t, v.Dataset.Performed)
	assert.False(t, v.Extension.Performed)
	assert.Empty(t, v.Extension.Violations)
}

func TestEngine_Audit_MissingFolderIsError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "E001_20260116_UG")
	v := NewEngine(nil).Audit(context.Background(), dir, "E001_20260116_UG", defaultPolicy(t))

	assert.Equal(t, model.AuditError, v.Status)
	assert.False(t, v.Status.Transferable())
	require.NotEmpty(t, v.Issues)
	assert.Contains(t, v.Issues[len(v.Issues)-1], "Failed to enumerate folder")
}

func TestEngine_Audit_CanceledIsError(t *testing.T) {
	dir := makeFolder(t, "E001_20260116_UG", map[string]int{"a.txt": 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewEngine(nil).Audit(ctx, dir, "E001_20260116_UG", defaultPolicy(t))
	assert.Equal(t, model.AuditError, v.Status)
}

func TestEngine_AuditCandidate_UpdatesFileStatuses(t *testing.T) {
	mem := memfs.New()
	require.NoError(t, util.WriteFile(mem, "staging/E001_20260116_UG/a.txt", []byte("hello"), 0o644))
	require.NoError(t, util.WriteFile(mem, "staging/E001_20260116_UG/pack.7z", []byte("7z"), 0o644))
	require.NoError(t, util.WriteFile(mem, "staging/E001_20260116_UG/bin/app.exe", []byte("MZ"), 0o644))

	engine := NewEngineWithFS(func(root string) billy.Filesystem {
		fs, err := mem.Chroot(root)
		require.NoError(t, err)
		return fs
	}, nil)

	c := model.NewFolderCandidate("E001_20260116_UG", "staging/E001_20260116_UG", []model.FileEntry{
		{Name: "a.txt", RelativePath: "a.txt", Size: 5, Status: model.FileReady},
		{Name: "pack.7z", RelativePath: "pack.7z", Size: 2, Status: model.FileReady},
		{Name: "app.exe", RelativePath: "bin/app.exe", Size: 2, Status: model.FileReady},
	})

	var changes []model.CandidateChange
	c.Observe(func(ch model.CandidateChange) { changes = append(changes, ch) })

	v := engine.AuditCandidate(context.Background(), c, defaultPolicy(t))
	require.Equal(t, model.AuditFailed, v.Status)
	assert.Same(t, v, c.Verdict())

	statuses := map[string]model.FileStatus{}
	for _, f := range c.Snapshot() {
		statuses[f.RelativePath] = f.Status
	}
	assert.Equal(t, model.FileReady, statuses["a.txt"])
	assert.Equal(t, model.FileCompressed, statuses["pack.7z"])
	assert.Equal(t, model.FileBlacklisted, statuses["bin/app.exe"])

	require.NotEmpty(t, changes)
	assert.Equal(t, model.ChangeVerdict, changes[len(changes)-1].Kind)
}

func TestNewPolicy_InvalidPattern(t *testing.T) {
	_, err := NewPolicy(config.AuditSettings{NamePattern: "(["})
	require.Error(t, err)
}
