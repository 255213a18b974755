package template_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ithil/pensieve/internal/apperr"
	"github.com/ithil/pensieve/internal/template"
)

func TestStore_SaveLoadList(t *testing.T) {
	s := template.NewStore(filepath.Join(t.TempDir(), ".templates"))

	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	tpl := &template.Template{Title: "Daily", Enabled: true, FromDate: true, Generator: `response: status: "done"`}
	require.NoError(t, s.Save(tpl))
	require.NotEmpty(t, tpl.ID)
	require.NoError(t, s.Save(&template.Template{ID: "a-first", Title: "First", Generator: "x: 1"}))

	got, err := s.Load(tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Daily", got.Title)
	assert.True(t, got.FromDate)
	assert.Equal(t, ".md", got.Ext())

	list, err = s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a-first", list[0].ID)

	require.NoError(t, s.Delete("a-first"))
	_, err = s.Load("a-first")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTemplate_Validate(t *testing.T) {
	s := template.NewStore(t.TempDir())
	assert.Error(t, s.Save(&template.Template{Generator: "x: 1"}))
	assert.Error(t, s.Save(&template.Template{Title: "T"}))
	assert.Error(t, s.Save(&template.Template{Title: "T", Type: "video", Generator: "x: 1"}))

	_, err := s.Load("../escape")
	assert.Error(t, err)
}
