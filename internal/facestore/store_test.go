package facestore

import (
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func solidImage(c uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = c
	}
	return img
}

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	return s, dir
}

// assertConsistent checks that every mapping row has an owner in metadata and
// the matrix row count matches the mapping.
func assertConsistent(t *testing.T, s *Store) {
	t.Helper()
	snap := s.ReferenceMatrix()
	require.NotNil(t, snap)

	total := 0
	for _, ident := range s.Identities() {
		total += len(ident.Embeddings)
	}
	assert.Equal(t, total, snap.Rows())
	if snap.Matrix != nil {
		r, _ := snap.Matrix.Dims()
		assert.Equal(t, len(snap.Mapping), r)
	} else {
		assert.Zero(t, total)
	}
	for _, entry := range snap.Mapping {
		assert.True(t, s.Exists(entry.IdentityID), "mapping references unknown identity %s", entry.IdentityID)
	}
}

func TestAddIdentityDuplicate(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)

	require.NoError(t, s.AddIdentity("E1", "An", "IT", [][]float32{unit(4, 0)}, nil, false))
	err := s.AddIdentity("E1", "An", "IT", [][]float32{unit(4, 1)}, nil, false)
	require.ErrorIs(t, err, ErrDuplicateIdentity)

	ident, err := s.Identity("E1")
	require.NoError(t, err)
	assert.Equal(t, unit(4, 0), ident.Embeddings[0], "failed add must not change the template")

	require.NoError(t, s.AddIdentity("E1", "An", "IT", [][]float32{unit(4, 1), unit(4, 2)}, nil, true))
	ident, err = s.Identity("E1")
	require.NoError(t, err)
	assert.Len(t, ident.Embeddings, 2)
	assert.Equal(t, 2, ident.PhotoCount)
	assertConsistent(t, s)
}

func TestMetadataOnlyIdentity(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)

	require.NoError(t, s.AddIdentityMetadataOnly("E2", "Binh", "HR"))
	require.ErrorIs(t, s.AddIdentityMetadataOnly("E2", "Binh", "HR"), ErrDuplicateIdentity)

	assert.Nil(t, s.ReferenceMatrix().Matrix)
	assert.Equal(t, 1, s.Count())
	assertConsistent(t, s)
}

func TestMatrixFollowsStoredOrder(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)

	require.NoError(t, s.AddIdentity("A", "A", "", [][]float32{unit(3, 0), unit(3, 1)}, nil, false))
	require.NoError(t, s.AddIdentityMetadataOnly("B", "B", ""))
	require.NoError(t, s.AddIdentity("C", "C", "", [][]float32{unit(3, 2)}, nil, false))

	snap := s.ReferenceMatrix()
	require.Equal(t, 3, snap.Rows())
	assert.Equal(t, []MappingEntry{{"A", 0}, {"A", 1}, {"C", 0}}, snap.Mapping)
	assert.InDelta(t, 1.0, snap.Matrix.At(2, 2), 1e-9)
	assert.Equal(t, 3, snap.Dim())
}

func TestConsistencyUnderMutations(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)

	steps := []func() error{
		func() error { return s.AddIdentity("A", "A", "", [][]float32{unit(4, 0), unit(4, 1)}, nil, false) },
		func() error { return s.AddIdentity("B", "B", "", [][]float32{unit(4, 2)}, nil, false) },
		func() error { return s.AddIdentityMetadataOnly("C", "C", "") },
		func() error { return s.DeleteIdentity("A") },
		func() error { return s.UpdateIdentity("B", "Bee", "Ops") },
		func() error { return s.AddIdentity("C", "C", "", [][]float32{unit(4, 3)}, nil, true) },
		func() error { return s.DeleteIdentity("B") },
		func() error { return s.DeleteIdentity("C") },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assertConsistent(t, s)
	}
	assert.Nil(t, s.ReferenceMatrix().Matrix)
}

func TestRejectsMixedDimensions(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)

	require.NoError(t, s.AddIdentity("A", "A", "", [][]float32{unit(4, 0)}, nil, false))
	require.Error(t, s.AddIdentity("B", "B", "", [][]float32{unit(8, 0)}, nil, false))
	assert.False(t, s.Exists("B"))
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)

	_, err := s.Identity("missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteIdentity("missing"), ErrNotFound)
	require.ErrorIs(t, s.UpdateIdentity("missing", "x", ""), ErrNotFound)
}

func TestInvalidIDs(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)

	for _, id := range []string{"", " ", "../x", "a/b", ".."} {
		assert.Error(t, s.AddIdentityMetadataOnly(id, "n", "d"), "id %q", id)
	}
}

func TestPhotoFolders(t *testing.T) {
	t.Parallel()
	s, dir := openStore(t)
	photos := filepath.Join(dir, "photos")

	photoSet := []image.Image{solidImage(10), solidImage(20), solidImage(30)}
	require.NoError(t, s.AddIdentity("E1", "Nguyễn Văn A", "IT", [][]float32{unit(4, 0)}, photoSet, false))
	folder := filepath.Join(photos, "E1_Nguyen_Van_A")
	assert.FileExists(t, filepath.Join(folder, "1.jpg"))
	assert.FileExists(t, filepath.Join(folder, "3.jpg"))

	// a folder of another id sharing a textual prefix must survive
	other := filepath.Join(photos, "E10_Other")
	require.NoError(t, os.MkdirAll(other, 0o755))

	require.NoError(t, s.AddIdentity("E1", "Nguyễn Văn A", "IT", [][]float32{unit(4, 1)}, photoSet[:1], true))
	assert.FileExists(t, filepath.Join(folder, "1.jpg"))
	assert.NoFileExists(t, filepath.Join(folder, "2.jpg"), "overwrite starts from an empty folder")

	require.NoError(t, s.UpdateIdentity("E1", "Tran Thi B", ""))
	assert.NoDirExists(t, folder)
	renamed := filepath.Join(photos, "E1_Tran_Thi_B")
	assert.DirExists(t, renamed)
	ident, err := s.Identity("E1")
	require.NoError(t, err)
	assert.Equal(t, "Tran Thi B", ident.Name)
	assert.Equal(t, "IT", ident.Department)

	require.NoError(t, s.DeleteIdentity("E1"))
	assert.NoDirExists(t, renamed)
	assert.DirExists(t, other)
}

func TestPhotoFoldersOfUnderscoreIDs(t *testing.T) {
	t.Parallel()
	s, dir := openStore(t)
	photos := filepath.Join(dir, "photos")

	photo := []image.Image{solidImage(10)}
	require.NoError(t, s.AddIdentity("A", "Anh", "", [][]float32{unit(4, 0)}, photo, false))
	require.NoError(t, s.AddIdentity("A_B", "Bao", "", [][]float32{unit(4, 1)}, photo, false))
	longer := filepath.Join(photos, "A_B_Bao")
	require.DirExists(t, longer)

	require.NoError(t, s.AddIdentity("A", "Anh", "", [][]float32{unit(4, 2)}, photo, true))
	assert.DirExists(t, longer, "overwrite of A keeps the folders of A_B")

	require.NoError(t, s.UpdateIdentity("A", "Chi", ""))
	assert.DirExists(t, longer, "rename of A leaves A_B alone")
	assert.DirExists(t, filepath.Join(photos, "A_Chi"))

	require.NoError(t, s.DeleteIdentity("A"))
	assert.NoDirExists(t, filepath.Join(photos, "A_Chi"))
	assert.DirExists(t, longer)
	assert.FileExists(t, filepath.Join(longer, "1.jpg"))
}

func TestRebuildHooksAddedAfterOpen(t *testing.T) {
	t.Parallel()

	var first, second int
	s, err := Open(t.TempDir(), WithRebuildHook(func(int, int) { first++ }))
	require.NoError(t, err)
	s.AddRebuildHook(func(int, int) { second++ })
	before := first

	require.NoError(t, s.AddIdentityMetadataOnly("A", "Anh", ""))
	assert.Equal(t, before+1, first)
	assert.Equal(t, 1, second)
}

func TestReopenRestoresState(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.AddIdentity("A", "Anh", "IT", [][]float32{unit(4, 0), unit(4, 1)}, nil, false))
	require.NoError(t, s.AddIdentityMetadataOnly("B", "Bao", "HR"))
	require.NoError(t, s.AddIdentity("C", "Chi", "Ops", [][]float32{unit(4, 3)}, nil, false))

	reopened, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, s.ReferenceMatrix().Mapping, reopened.ReferenceMatrix().Mapping)
	assert.Equal(t, []string{"A", "B", "C"}, ids(reopened.Identities()))

	a, err := reopened.Identity("A")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{unit(4, 0), unit(4, 1)}, a.Embeddings)
	assert.Equal(t, "Anh", a.Name)
	assertConsistent(t, reopened)
}

func TestReopenDropsRowsOfUnknownIdentities(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.AddIdentity("A", "A", "", [][]float32{unit(4, 0)}, nil, false))
	require.NoError(t, s.AddIdentity("B", "B", "", [][]float32{unit(4, 1)}, nil, false))

	// metadata edited by hand without B
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile),
		[]byte(`[{"id":"A","name":"A","department":"","photo_count":1}]`), 0o600))

	reopened, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, []MappingEntry{{"A", 0}}, reopened.ReferenceMatrix().Mapping)
	assertConsistent(t, reopened)
}

func TestRebuildHook(t *testing.T) {
	t.Parallel()

	var calls [][2]int
	s, err := Open(t.TempDir(), WithRebuildHook(func(identities, rows int) {
		calls = append(calls, [2]int{identities, rows})
	}))
	require.NoError(t, err)
	require.NoError(t, s.AddIdentity("A", "A", "", [][]float32{unit(4, 0), unit(4, 1)}, nil, false))

	require.NotEmpty(t, calls)
	assert.Equal(t, [2]int{1, 2}, calls[len(calls)-1])
}

func TestSnapshotIsNeverTorn(t *testing.T) {
	t.Parallel()
	s, _ := openStore(t)

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Go(func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			snap := s.ReferenceMatrix()
			if snap.Matrix != nil {
				r, _ := snap.Matrix.Dims()
				assert.Equal(t, len(snap.Mapping), r)
			}
		}
	})

	for i := range 20 {
		embs := make([][]float32, i%4+1)
		for j := range embs {
			embs[j] = unit(8, i+j)
		}
		require.NoError(t, s.AddIdentity("X", "X", "", embs, nil, true))
	}
	close(done)
	wg.Wait()
}

func ids(in []Identity) []string {
	out := make([]string, len(in))
	for i, ident := range in {
		out[i] = ident.ID
	}
	return out
}
