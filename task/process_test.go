package task

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleMetadata = `{
	"image_tag": "Abjad-Abjad-286896109",
	"lang": "Java",
	"failed_job": {"committed_at": "2017-06-12T10:00:00Z"},
	"passed_job": {"committed_at": "2017-06-12T15:30:00Z"},
	"classification": {"exceptions": ["java.lang.NullPointerException", "org.junit.ComparisonFailure"]}
}`

func writeMetadataFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestProcessMetadataFlattensDocuments(t *testing.T) {
	dir := t.TempDir()
	writeMetadataFixture(t, dir, "Abjad-Abjad-286896109_metadata.json", sampleMetadata)

	out := filepath.Join(t.TempDir(), "processed", "artifact_data.csv")
	n, err := ProcessMetadata(zap.NewNop(), dir, out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows := readCSV(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"Abjad-Abjad-286896109",
		"Java",
		"2017-06-12T10:00:00Z",
		"2017-06-12T15:30:00Z",
		"5.5",
		"java.lang.NullPointerException;org.junit.ComparisonFailure",
	}, rows[1])
}

func TestProcessMetadataSkipsEmptyAndUndecodableFiles(t *testing.T) {
	dir := t.TempDir()
	writeMetadataFixture(t, dir, "good-1_metadata.json", sampleMetadata)
	writeMetadataFixture(t, dir, "empty-1_metadata.json", "")
	writeMetadataFixture(t, dir, "throttled-1_metadata.json", "You are being rate limited")

	out := filepath.Join(t.TempDir(), "artifact_data.csv")
	n, err := ProcessMetadata(zap.NewNop(), dir, out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows := readCSV(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, "Abjad-Abjad-286896109", rows[1][0])
}

func TestProcessMetadataWalksNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	writeMetadataFixture(t, dir, filepath.Join("foo", "bar-1_metadata.json"), sampleMetadata)
	writeMetadataFixture(t, dir, "notes.txt", "not metadata")

	out := filepath.Join(t.TempDir(), "artifact_data.csv")
	n, err := ProcessMetadata(zap.NewNop(), dir, out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTimeToFixHours(t *testing.T) {
	assert.Equal(t, "5.5", timeToFixHours("2017-06-12T10:00:00Z", "2017-06-12T15:30:00Z"))
	assert.Equal(t, "", timeToFixHours("", "2017-06-12T15:30:00Z"))
	assert.Equal(t, "", timeToFixHours("not-a-time", "2017-06-12T15:30:00Z"))
	assert.Equal(t, "-24", timeToFixHours("2017-06-13T10:00:00Z", "2017-06-12T10:00:00Z"))
}
