package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/repochat/internal/git"
)

// fakeGit materializes a working copy from an in-memory file map instead of
// talking to a remote. The optional gate channel blocks the clone until
// released, for exercising reload visibility.
type fakeGit struct {
	files map[string]string
	err   error
	gate  chan struct{}
}

func (f *fakeGit) CloneRepo(ctx context.Context, url, dir string) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return &git.CloneError{URL: url, Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return f.err
	}
	for rel, content := range f.files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

var chainRepo = map[string]string{
	"a.py": "import b\n",
	"b.py": "import c\n",
	"c.py": "pass\n",
}

func TestLoad_EndToEnd(t *testing.T) {
	s := New(&fakeGit{files: chainRepo}, nil, 0)
	require.NoError(t, s.Load(context.Background(), "https://github.com/example/chain.git"))

	snap := s.Current()
	require.NotNil(t, snap)
	assert.Equal(t, "https://github.com/example/chain.git", snap.SourceURL)

	assert.Equal(t, []string{"b.py"}, snap.FileIndex["a.py"].Imports)
	assert.Equal(t, []string{}, snap.UsageIndex["a.py"])
	assert.Equal(t, []string{"a.py"}, snap.UsageIndex["b.py"])
	assert.Equal(t, []string{"b.py"}, snap.UsageIndex["c.py"])
}

func TestLoad_CloneErrorLeavesSnapshot(t *testing.T) {
	s := New(&fakeGit{files: chainRepo}, nil, 0)
	require.NoError(t, s.Load(context.Background(), "https://old"))
	old := s.Current()

	s.git = &fakeGit{err: &git.CloneError{URL: "https://new", Err: errors.New("unreachable")}}
	err := s.Load(context.Background(), "https://new")
	require.Error(t, err)

	var ce *git.CloneError
	assert.True(t, errors.As(err, &ce))
	assert.Same(t, old, s.Current())
}

func TestFetchFile(t *testing.T) {
	s := New(&fakeGit{files: chainRepo}, nil, 0)
	require.NoError(t, s.Load(context.Background(), "https://repo"))

	rec, err := s.FetchFile("a.py")
	require.NoError(t, err)
	assert.Equal(t, "import b\n", rec.Content)

	_, err = s.FetchFile("missing.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchFile_NoRepository(t *testing.T) {
	s := New(&fakeGit{}, nil, 0)
	_, err := s.FetchFile("a.py")
	assert.ErrorIs(t, err, ErrNoRepository)
}

func TestUsageOf(t *testing.T) {
	s := New(&fakeGit{files: chainRepo}, nil, 0)
	require.NoError(t, s.Load(context.Background(), "https://repo"))

	usage, err := s.UsageOf("b.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.py"}, usage.Imports)
	assert.Equal(t, []string{"a.py"}, usage.UsedBy)
	assert.Equal(t, 1, usage.DependencyCount)
	assert.Equal(t, 1, usage.DependentCount)

	_, err = s.UsageOf("missing.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStructure(t *testing.T) {
	s := New(&fakeGit{files: chainRepo}, nil, 0)

	_, err := s.FileStructure()
	assert.ErrorIs(t, err, ErrNoRepository)

	require.NoError(t, s.Load(context.Background(), "https://repo"))
	fs, err := s.FileStructure()
	require.NoError(t, err)
	assert.Equal(t, 3, fs.TotalFiles)
	assert.Equal(t, 3, fs.FileTypes["py"])
}

// Readers started before a reload completes must keep seeing the prior
// complete snapshot, never a half-built one.
func TestLoad_AtomicSwap(t *testing.T) {
	s := New(&fakeGit{files: chainRepo}, nil, 0)
	require.NoError(t, s.Load(context.Background(), "https://old"))
	old := s.Current()

	gate := make(chan struct{})
	s.git = &fakeGit{files: map[string]string{"x.py": "pass\n"}, gate: gate}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, s.Load(context.Background(), "https://new"))
	}()

	// While the clone is blocked, readers still get the old snapshot.
	for i := 0; i < 10; i++ {
		assert.Same(t, old, s.Current())
		time.Sleep(time.Millisecond)
	}

	close(gate)
	wg.Wait()

	snap := s.Current()
	require.NotNil(t, snap)
	assert.Equal(t, "https://new", snap.SourceURL)
	assert.Len(t, snap.FileIndex, 1)
}

func TestLoad_CloneTimeout(t *testing.T) {
	gate := make(chan struct{}) // never released
	s := New(&fakeGit{files: chainRepo, gate: gate}, nil, 20*time.Millisecond)

	err := s.Load(context.Background(), "https://hung")
	require.Error(t, err)

	var ce *git.CloneError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, ce.Err, context.DeadlineExceeded)
	assert.Nil(t, s.Current())
}

func TestSnapshot_Paths(t *testing.T) {
	s := New(&fakeGit{files: chainRepo}, nil, 0)
	require.NoError(t, s.Load(context.Background(), "https://repo"))
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, s.Current().Paths())
}
