package executor

import (
	"archive/tar"
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestUnpackZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "upload")
	writeZip(t, archive, map[string]string{"project/main.c": "int main(){}", "project/lib/util.h": "#pragma once"})

	dst := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))
	require.NoError(t, Unpack(archive, "Project.ZIP", dst))

	root, err := ContentRoot(dst)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dst, "project"), root)
	assert.Equal(t, "int main(){}", readFile(t, filepath.Join(root, "main.c")))
	assert.Equal(t, "#pragma once", readFile(t, filepath.Join(root, "lib", "util.h")))
}

func TestUnpackTarGz(t *testing.T) {
	for _, name := range []string{"solution.tar.gz", "solution.tgz"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, "upload")
			writeTarGz(t, archive, map[string]string{"main.py": "print('hi')", "README": "docs"})

			dst := filepath.Join(dir, "out")
			require.NoError(t, os.Mkdir(dst, 0o755))
			require.NoError(t, Unpack(archive, name, dst))

			root, err := ContentRoot(dst)
			require.NoError(t, err)
			assert.Equal(t, dst, root)
			assert.Equal(t, "print('hi')", readFile(t, filepath.Join(dst, "main.py")))
		})
	}
}

func TestUnpackPlainFileIsCopied(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "upload")
	require.NoError(t, os.WriteFile(src, []byte("int main(){}"), 0o600))

	dst := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))
	require.NoError(t, Unpack(src, "hello.c", dst))
	assert.Equal(t, "int main(){}", readFile(t, filepath.Join(dst, "hello.c")))
}

func TestUnpackRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../escaped.txt": "gotcha"})

	dst := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))
	err := Unpack(archive, "evil.zip", dst)
	assert.ErrorIs(t, err, errUnsafePath)
	assert.NoFileExists(t, filepath.Join(dir, "escaped.txt"))
}

func TestIsArchive(t *testing.T) {
	assert.True(t, IsArchive("a.zip"))
	assert.True(t, IsArchive("a.TAR.GZ"))
	assert.True(t, IsArchive("a.tgz"))
	assert.False(t, IsArchive("a.c"))
}
