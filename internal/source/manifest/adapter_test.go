package manifest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dir = "/data/shelter"

func writeFile(t *testing.T, fs afero.Fs, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name), []byte(content), 0o644))
}

func newFS(t *testing.T, images ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, img := range images {
		writeFile(t, fs, filepath.Join(ImagesDir, img), "img")
	}
	return fs
}

func TestAdapterCSV(t *testing.T) {
	fs := newFS(t, "rex.jpg", "mia.png")
	writeFile(t, fs, CSVFileName, `id,filename,latitude,longitude,status,description
1,rex.jpg,-23.5,-46.6,lost,"brown dog, red collar"
2,mia.png,-23.51,-46.61,found,
3,ghost.jpg,-23.5,-46.6,lost,missing image
4,rex.jpg,north,-46.6,lost,
1,mia.png,-23.5,-46.6,found,duplicate
`)

	a := NewAdapter(fs, dir)
	items, next, err := a.FetchBatch(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, items, 2)

	assert.Equal(t, "1", items[0].SourceID)
	assert.Equal(t, filepath.Join(dir, ImagesDir, "rex.jpg"), items[0].LocalPath)
	assert.Equal(t, "rex.jpg", items[0].Filename)
	require.NotNil(t, items[0].Latitude)
	assert.Equal(t, -23.5, *items[0].Latitude)
	assert.Equal(t, "lost", items[0].Status)
	assert.Equal(t, "brown dog, red collar", items[0].Description)
	assert.Equal(t, 2, items[0].Line)

	assert.Equal(t, "found", items[1].Status)
	assert.Empty(t, items[1].Description)

	problems := a.Problems()
	require.Len(t, problems, 3)
	assert.Equal(t, 5, problems[0].Line)
	assert.Contains(t, problems[0].Reason, "latitude")
	assert.Contains(t, problems[1].Reason, "image not found")
	assert.Contains(t, problems[2].Reason, "duplicate")
}

func TestAdapterCSVMissingColumn(t *testing.T) {
	fs := newFS(t)
	writeFile(t, fs, CSVFileName, "id,filename,status\n1,a.jpg,lost\n")

	_, _, err := NewAdapter(fs, dir).FetchBatch(context.Background(), "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}

func TestAdapterJSONL(t *testing.T) {
	fs := newFS(t, "a.jpg", "b.jpg")
	writeFile(t, fs, JSONLFileName, `{"id":"a","filename":"a.jpg","latitude":-23.5,"longitude":-46.6,"status":"lost"}

not json
{"id":"b","filename":"b.jpg","status":"found","description":"cat"}
`)

	a := NewAdapter(fs, dir)
	items, _, err := a.FetchBatch(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].SourceID)
	assert.Nil(t, items[1].Latitude)
	assert.Equal(t, "cat", items[1].Description)

	require.Len(t, a.Problems(), 1)
	assert.Equal(t, 3, a.Problems()[0].Line)
}

func TestAdapterPaging(t *testing.T) {
	fs := newFS(t, "a.jpg")
	writeFile(t, fs, CSVFileName, `id,filename,latitude,longitude,status
1,a.jpg,0,0,lost
2,a.jpg,0,0,lost
3,a.jpg,0,0,lost
4,a.jpg,0,0,lost
5,a.jpg,0,0,lost
`)

	a := NewAdapter(fs, dir)
	ctx := context.Background()

	var ids []string
	cursor := ""
	for {
		items, next, err := a.FetchBatch(ctx, cursor, 2)
		require.NoError(t, err)
		for _, it := range items {
			ids = append(ids, it.SourceID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)

	n, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	items, next, err := a.FetchBatch(ctx, "99", 2)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, next)

	_, _, err = a.FetchBatch(ctx, "abc", 2)
	assert.Error(t, err)
}

func TestAdapterNoManifest(t *testing.T) {
	_, _, err := NewAdapter(newFS(t), dir).FetchBatch(context.Background(), "", 1)
	assert.Error(t, err)
}

func TestAdapterRejectsEscapingPaths(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, afero.WriteFile(fs, "/data/secret.jpg", []byte("x"), 0o644))
	writeFile(t, fs, CSVFileName, "id,filename,latitude,longitude,status\n1,../../secret.jpg,0,0,lost\n")

	a := NewAdapter(fs, dir)
	items, _, err := a.FetchBatch(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.Len(t, a.Problems(), 1)
}

func TestAdapterIDs(t *testing.T) {
	a := NewAdapter(afero.NewMemMapFs(), dir)
	assert.Equal(t, "manifest:shelter", a.GetSourceID())
	assert.Contains(t, a.GetDisplayName(), dir)
}
