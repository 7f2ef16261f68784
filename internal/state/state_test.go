package state

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/starford/mdimport/internal/models"
)

func ref(id string) TaskRef {
	return TaskRef{
		ID:          id,
		Directory:   "notes",
		Mode:        models.ModeSkip,
		Status:      models.StatusImporting,
		SubmittedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func ids(refs []TaskRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "state.yaml"))
	require.NoError(t, err)
	assert.Empty(t, s.LastDirectory())
	assert.Equal(t, models.ModeSkip, s.LastMode())
	assert.Empty(t, s.RecentTasks())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recent_tasks: {"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestStore_AddTaskDedupNewestFirst(t *testing.T) {
	s := New("")
	require.NoError(t, s.AddTask(ref("a")))
	require.NoError(t, s.AddTask(ref("b")))
	require.NoError(t, s.AddTask(ref("a")))

	assert.Equal(t, []string{"a", "b"}, ids(s.RecentTasks()))
}

func TestStore_RecentTasksCapped(t *testing.T) {
	s := New("")
	for i := range 60 {
		require.NoError(t, s.AddTask(ref(fmt.Sprintf("t%02d", i))))
	}
	recent := s.RecentTasks()
	require.Len(t, recent, maxRecent)
	assert.Equal(t, "t59", recent[0].ID)
	assert.Equal(t, "t10", recent[len(recent)-1].ID)
}

func TestStore_PersistsSubset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	s := New(path)
	require.NoError(t, s.SetLastDirectory("posts"))
	require.NoError(t, s.SetLastMode(models.ModeUpdate))
	for i := range 12 {
		require.NoError(t, s.AddTask(ref(fmt.Sprintf("t%02d", i))))
	}
	s.SetActive(models.ImportProgress{Total: 3, Status: models.StatusImporting})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.ElementsMatch(t, []string{"last_directory", "last_mode", "recent_tasks"}, keys(raw))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "posts", loaded.LastDirectory())
	assert.Equal(t, models.ModeUpdate, loaded.LastMode())
	recent := loaded.RecentTasks()
	require.Len(t, recent, maxRecentStored)
	assert.Equal(t, "t11", recent[0].ID)
	assert.Equal(t, "t02", recent[len(recent)-1].ID)
	assert.True(t, ref("t11").SubmittedAt.Equal(recent[0].SubmittedAt))

	_, ok := loaded.Active()
	assert.False(t, ok)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestStore_UpdateTaskStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	s := New(path)
	require.NoError(t, s.AddTask(ref("a")))
	require.NoError(t, s.UpdateTaskStatus("a", models.StatusCompleted))
	require.NoError(t, s.UpdateTaskStatus("missing", models.StatusCompleted))

	got, ok := s.Task("a")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, got.Status)

	loaded, err := Load(path)
	require.NoError(t, err)
	got, ok = loaded.Task("a")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestStore_ActiveIsCopy(t *testing.T) {
	s := New("")
	p := models.ImportProgress{
		Total:  2,
		Status: models.StatusImporting,
		Errors: []models.FileError{{File: "a.md", Error: "missing title"}},
	}
	s.SetActive(p)
	p.Errors[0].File = "changed.md"

	got, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "a.md", got.Errors[0].File)

	got.Errors[0].File = "other.md"
	again, _ := s.Active()
	assert.Equal(t, "a.md", again.Errors[0].File)

	s.ClearActive()
	_, ok = s.Active()
	assert.False(t, ok)
}

func TestStore_NoPathDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	s := New("")
	require.NoError(t, s.SetLastDirectory("x"))
	require.NoError(t, s.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
