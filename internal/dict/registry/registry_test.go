package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/dict/loader"
	"github.com/sagerenn/lexis/internal/testutil"
)

func newRegistry(t *testing.T, dataDir string, conv loader.Converter) *Registry {
	t.Helper()
	r, err := New(Options{DataDir: dataDir, Converter: conv})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestImportNative(t *testing.T) {
	srcDir := t.TempDir()
	src := testutil.MakeDict(t, srcDir, "english.lexd", "dict-en", "English", testutil.Terms("cat", "dog"))

	r := newRegistry(t, t.TempDir(), nil)
	id, err := r.Import(context.Background(), src, "", "")
	require.NoError(t, err)
	assert.Equal(t, "english.lexd", id)

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, "dict-en", list[0].ID)
	assert.Equal(t, "English", list[0].DisplayName)
	assert.Equal(t, 2, list[0].EntryCount)
	assert.True(t, list[0].Enabled)
	assert.Equal(t, filepath.Join(r.DictionariesDir(), "english.lexd"), list[0].FilePath)

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	dstInfo, err := os.Stat(list[0].FilePath)
	require.NoError(t, err)
	assert.Equal(t, srcInfo.Size(), dstInfo.Size())
}

func TestImportLabelFallsBackToStem(t *testing.T) {
	src := testutil.MakeDict(t, t.TempDir(), "nolabel.lexd", "dict-x", "", testutil.Terms("a"))
	r := newRegistry(t, t.TempDir(), nil)
	id, err := r.Import(context.Background(), src, "", "custom")
	require.NoError(t, err)
	assert.Equal(t, "custom.lexd", id)
	info, ok := r.Info(id)
	require.True(t, ok)
	assert.Equal(t, "custom", info.DisplayName)
}

func TestImportConverts(t *testing.T) {
	src := filepath.Join(t.TempDir(), "animals.tsv")
	require.NoError(t, os.WriteFile(src, []byte("cat\tmeows\n"), 0o644))

	r := newRegistry(t, t.TempDir(), nil)
	id, err := r.Import(context.Background(), src, "", "")
	require.NoError(t, err)
	assert.Equal(t, "animals.lexd", id)
	info, ok := r.Info(id)
	require.True(t, ok)
	assert.Equal(t, "animals", info.DisplayName)
	assert.Equal(t, 1, info.EntryCount)
	assert.Equal(t, "tsv", info.Tags[dict.TagFormat])
}

func TestReimportIsNoop(t *testing.T) {
	src := filepath.Join(t.TempDir(), "animals.tsv")
	require.NoError(t, os.WriteFile(src, []byte("cat\tmeows\n"), 0o644))

	calls := 0
	native := loader.New(nil)
	conv := loader.ConverterFunc(func(ctx context.Context, s, d, f string) error {
		calls++
		return native.Convert(ctx, s, d, f)
	})
	dataDir := t.TempDir()
	r := newRegistry(t, dataDir, conv)
	id1, err := r.Import(context.Background(), src, "", "")
	require.NoError(t, err)
	id2, err := r.Import(context.Background(), src, "", "")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, calls)

	// Lose the metadata; the next import backfills it without converting.
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, metadataFile), []byte(`{"version":1,"dictionaries":[]}`), 0o644))
	r2 := newRegistry(t, dataDir, conv)
	assert.Empty(t, r2.List())
	id3, err := r2.Import(context.Background(), src, "", "")
	require.NoError(t, err)
	assert.Equal(t, id1, id3)
	assert.Equal(t, 1, calls)
	require.Len(t, r2.List(), 1)
	assert.Equal(t, "animals", r2.List()[0].DisplayName)
}

func TestImportConversionFailureLeavesNoFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "broken.dsl")
	require.NoError(t, os.WriteFile(src, []byte("garbage"), 0o644))

	conv := loader.ConverterFunc(func(_ context.Context, _, dst, _ string) error {
		require.NoError(t, os.WriteFile(dst, []byte("partial"), 0o644))
		return errors.New("converter crashed")
	})
	r := newRegistry(t, t.TempDir(), conv)
	before := dirNames(t, r.DictionariesDir())

	_, err := r.Import(context.Background(), src, "", "")
	require.Error(t, err)
	assert.Equal(t, dict.StageConversion, dict.StageOf(err))
	assert.ErrorIs(t, err, dict.ErrConversion)
	assert.Equal(t, before, dirNames(t, r.DictionariesDir()))
	assert.Empty(t, r.List())
}

func TestImportValidation(t *testing.T) {
	r := newRegistry(t, t.TempDir(), nil)

	_, err := r.Import(context.Background(), filepath.Join(t.TempDir(), "missing.ifo"), "", "")
	assert.Equal(t, dict.StageValidation, dict.StageOf(err))
	assert.ErrorIs(t, err, dict.ErrSourceUnavailable)

	empty := filepath.Join(t.TempDir(), "empty.tsv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = r.Import(context.Background(), empty, "", "")
	assert.Equal(t, dict.StageValidation, dict.StageOf(err))
	assert.ErrorIs(t, err, dict.ErrFormat)

	unknown := filepath.Join(t.TempDir(), "file.xyz")
	require.NoError(t, os.WriteFile(unknown, []byte("x"), 0o644))
	_, err = r.Import(context.Background(), unknown, "", "")
	assert.Equal(t, dict.StageValidation, dict.StageOf(err))
}

func TestImportMetadataFailure(t *testing.T) {
	src := filepath.Join(t.TempDir(), "junk.lexd")
	require.NoError(t, os.WriteFile(src, []byte("not a dictionary at all"), 0o644))

	r := newRegistry(t, t.TempDir(), nil)
	_, err := r.Import(context.Background(), src, "", "")
	assert.Equal(t, dict.StageMetadata, dict.StageOf(err))
	assert.ErrorIs(t, err, dict.ErrFormat)
	_, statErr := os.Stat(filepath.Join(r.DictionariesDir(), "junk.lexd"))
	assert.NoError(t, statErr)
}

func TestReloadSkipsBrokenAndDisabled(t *testing.T) {
	srcDir := t.TempDir()
	a := testutil.MakeDict(t, srcDir, "a.lexd", "dict-a", "A", testutil.Terms("cat"))
	b := testutil.MakeDict(t, srcDir, "b.lexd", "dict-b", "B", testutil.Terms("dog"))
	c := testutil.MakeDict(t, srcDir, "c.lexd", "dict-c", "C", testutil.Terms("eel"))

	r := newRegistry(t, t.TempDir(), nil)
	for _, p := range []string{a, b, c} {
		_, err := r.Import(context.Background(), p, "", "")
		require.NoError(t, err)
	}
	ok, err := r.SetEnabled("c.lexd", false)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, os.WriteFile(filepath.Join(r.DictionariesDir(), "b.lexd"), []byte("corrupted"), 0o644))

	ev := r.Reload()
	assert.Equal(t, []string{"dict-a"}, ev.Loaded)
	assert.Contains(t, ev.Failed, "b.lexd")

	sources := r.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, "A", sources[0].DisplayName)
	l, found := r.Get("dict-a")
	require.True(t, found)
	assert.Equal(t, 1, l.Handle.EntryCount())
	_, found = r.Get("a.lexd")
	assert.True(t, found)
	_, found = r.Get("dict-c")
	assert.False(t, found)
}

func TestSetEnabledUnknown(t *testing.T) {
	r := newRegistry(t, t.TempDir(), nil)
	ok, err := r.SetEnabled("nope.lexd", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListHidesMissingFiles(t *testing.T) {
	src := testutil.MakeDict(t, t.TempDir(), "a.lexd", "dict-a", "A", testutil.Terms("cat"))
	r := newRegistry(t, t.TempDir(), nil)
	id, err := r.Import(context.Background(), src, "", "")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(r.DictionariesDir(), id)))
	assert.Empty(t, r.List())
	_, ok := r.Info(id)
	assert.True(t, ok)
}

func TestDeleteIsIdempotent(t *testing.T) {
	src := testutil.MakeDict(t, t.TempDir(), "a.lexd", "dict-a", "A", testutil.Terms("cat"))
	r := newRegistry(t, t.TempDir(), nil)
	id, err := r.Import(context.Background(), src, "", "")
	require.NoError(t, err)
	r.Reload()

	require.NoError(t, r.Delete(id))
	require.NoError(t, r.Delete(id))
	assert.Empty(t, r.List())
	assert.Empty(t, r.Sources())
	_, ok := r.Info(id)
	assert.False(t, ok)
	assert.Error(t, r.Delete("../escape"))
}

func TestObservers(t *testing.T) {
	r := newRegistry(t, t.TempDir(), nil)
	var got []ChangeEvent
	sub := r.Subscribe(ObserverFunc(func(ev ChangeEvent) { got = append(got, ev) }))

	r.Reload()
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Loaded)

	sub.Unsubscribe()
	sub.Unsubscribe()
	r.Reload()
	assert.Len(t, got, 1)
}

func TestCorruptMetadataLoadsEmpty(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, metadataFile), []byte("{not json"), 0o644))
	r := newRegistry(t, dataDir, nil)
	assert.Empty(t, r.List())
}

func TestMetadataPersists(t *testing.T) {
	src := testutil.MakeDict(t, t.TempDir(), "a.lexd", "dict-a", "A", testutil.Terms("cat"))
	dataDir := t.TempDir()
	r := newRegistry(t, dataDir, nil)
	id, err := r.Import(context.Background(), src, "", "")
	require.NoError(t, err)
	_, err = r.SetEnabled(id, false)
	require.NoError(t, err)

	r2 := newRegistry(t, dataDir, nil)
	info, ok := r2.Info(id)
	require.True(t, ok)
	assert.False(t, info.Enabled)
	assert.Equal(t, "dict-a", info.ID)
}

func TestVerifySize(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("12345"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("123"), 0o644))
	assert.ErrorIs(t, verifySize(a, b), dict.ErrCopyIntegrity)
	assert.NoError(t, verifySize(a, a))
}

func shortCopy(t *testing.T) {
	t.Helper()
	orig := copyData
	copyData = func(dst io.Writer, src io.Reader) (int64, error) {
		return io.CopyN(dst, src, 16)
	}
	t.Cleanup(func() { copyData = orig })
}

func TestCopyVerifiedRemovesShortCopy(t *testing.T) {
	shortCopy(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src.lexd")
	dst := filepath.Join(dir, "dst.lexd")
	require.NoError(t, os.WriteFile(src, make([]byte, 4096), 0o644))

	err := copyVerified(src, dst)
	require.ErrorIs(t, err, dict.ErrCopyIntegrity)
	assert.NoFileExists(t, dst)
}

func TestImportCopyIntegrityFailure(t *testing.T) {
	src := testutil.MakeDict(t, t.TempDir(), "english.lexd", "dict-en", "English", testutil.Terms("cat", "dog"))
	shortCopy(t)

	r := newRegistry(t, t.TempDir(), nil)
	_, err := r.Import(context.Background(), src, "", "")
	require.ErrorIs(t, err, dict.ErrCopyIntegrity)
	assert.Equal(t, dict.StageCopy, dict.StageOf(err))
	assert.Empty(t, dirNames(t, r.DictionariesDir()))
	assert.Empty(t, r.List())
}

func TestImportDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "words.dsl"), []byte("#NAME \"Words\"\n\ncat\n\tmeow\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("about"), 0o644))

	r := newRegistry(t, t.TempDir(), nil)
	id, err := r.Import(context.Background(), dir, "", "")
	require.NoError(t, err)
	assert.Equal(t, "words.lexd", id)
	info, _ := r.Info(id)
	assert.Equal(t, "Words", info.DisplayName)
}
