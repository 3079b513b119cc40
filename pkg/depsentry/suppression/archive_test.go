package suppression

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip creates a zip archive with the given entries.
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// suppressionDoc renders a minimal suppression document with one CVE rule.
func suppressionDoc(t *testing.T, cve string) string {
	t.Helper()

	return `<?xml version="1.0" encoding="UTF-8"?>
<suppressions xmlns="` + SchemaNamespace + `">
    <suppress>
        <cve>` + cve + `</cve>
    </suppress>
</suppressions>`
}

func matchAll() Filter {
	return FilterFunc(func(Archive) bool { return true })
}

func TestExtractPackagedTagsRulesAsBase(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "foobar-1.23.jar")
	writeZip(t, jar, map[string]string{
		PackagedEntryName: suppressionDoc(t, "CVE-2020-0001"),
		"some/other.txt":  "irrelevant",
	})

	rules := ExtractPackaged([]Archive{{Path: jar, Name: "foobar-1.23.jar"}}, matchAll(), PackagedEntryName)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Base, "imported rules must be base rules")
	assert.Equal(t, []string{"CVE-2020-0001"}, rules[0].CVE)
}

func TestExtractPackagedMissingEntryIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "plain.jar")
	writeZip(t, jar, map[string]string{"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\n"})

	rules := ExtractPackaged([]Archive{{Path: jar}}, matchAll(), PackagedEntryName)
	assert.Empty(t, rules)
}

func TestExtractPackagedSkipsCorruptArchive(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.jar")
	require.NoError(t, os.WriteFile(corrupt, []byte("this is not a zip"), 0644))
	good := filepath.Join(dir, "good.jar")
	writeZip(t, good, map[string]string{PackagedEntryName: suppressionDoc(t, "CVE-2020-0002")})

	rules := ExtractPackaged([]Archive{
		{Path: corrupt, Name: "corrupt.jar"},
		{Path: good, Name: "good.jar"},
	}, matchAll(), PackagedEntryName)

	require.Len(t, rules, 1)
	assert.Equal(t, []string{"CVE-2020-0002"}, rules[0].CVE)

	var warns []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warns = append(warns, e.Message+" "+e.Data["archive"].(string))
		}
	}
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "corrupt.jar")
}

func TestExtractPackagedSkipsMalformedEntry(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	dir := t.TempDir()
	jar := filepath.Join(dir, "broken-rules.jar")
	writeZip(t, jar, map[string]string{PackagedEntryName: "<suppressions><suppress></suppressions>"})

	rules := ExtractPackaged([]Archive{{Path: jar, Name: "broken-rules.jar"}}, matchAll(), PackagedEntryName)
	assert.Empty(t, rules)

	var warnCount int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnCount++
		}
	}
	assert.Equal(t, 1, warnCount)
}

func TestExtractPackagedNilFilterMatchesNothing(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "foobar.jar")
	writeZip(t, jar, map[string]string{PackagedEntryName: suppressionDoc(t, "CVE-2020-0003")})

	assert.Empty(t, ExtractPackaged([]Archive{{Path: jar}}, nil, PackagedEntryName))
}

func TestWithScratchDirCleansUp(t *testing.T) {
	var scratch string
	err := withScratchDir(func(dir string) error {
		scratch = dir
		_, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		return os.WriteFile(filepath.Join(dir, "probe"), []byte("x"), 0644)
	})
	require.NoError(t, err)

	_, statErr := os.Stat(scratch)
	assert.True(t, os.IsNotExist(statErr), "scratch directory must be removed after the call")
}
