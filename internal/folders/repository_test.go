package folders_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hugh/easy-diagrams/internal/apperr"
	"github.com/hugh/easy-diagrams/internal/database/models"
	"github.com/hugh/easy-diagrams/internal/folders"
	"github.com/hugh/easy-diagrams/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*testutil.TestSetup, *folders.Repository) {
	t.Helper()
	ts := testutil.NewTestContext(t)
	t.Cleanup(ts.Cleanup)
	return ts, folders.NewRepository(ts.DB, ts.Org.ID, ts.Logger)
}

func names(list []models.Folder) []string {
	out := make([]string, 0, len(list))
	for _, f := range list {
		out = append(out, f.Name)
	}
	return out
}

func TestCreateAndListChildren(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	root, err := repo.Create(ctx, "Root Docs", nil)
	require.NoError(t, err)
	assert.Len(t, root.ID, models.PublicIDLength)

	sub, err := repo.Create(ctx, "Sub", &root.ID)
	require.NoError(t, err)

	top, err := repo.List(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Root Docs"}, names(top))

	children, err := repo.List(ctx, &root.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, sub.ID, children[0].ID)

	n, err := repo.Count(ctx, &root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListOrderAndPagination(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	for _, name := range []string{"charlie", "alpha", "bravo", "alpha"} {
		_, err := repo.Create(ctx, name, nil)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "alpha", "bravo", "charlie"}, names(all))
	assert.Less(t, all[0].ID, all[1].ID)

	page, err := repo.List(ctx, nil, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bravo"}, names(page))

	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestCreateValidation(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "", nil)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Create(ctx, strings.Repeat("x", models.MaxFolderNameLength+1), nil)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = repo.Create(ctx, strings.Repeat("x", models.MaxFolderNameLength), nil)
	assert.NoError(t, err)
}

func TestCreateWithMissingParent(t *testing.T) {
	_, repo := setup(t)

	missing := strings.Repeat("a", models.PublicIDLength)
	_, err := repo.Create(context.Background(), "Orphan", &missing)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestTenantIsolation(t *testing.T) {
	ts, repo := setup(t)
	ctx := context.Background()

	other := testutil.CreateTestOrg(t, ts.DB, "Other")
	repoB := folders.NewRepository(ts.DB, other.ID, ts.Logger)

	mine, err := repo.Create(ctx, "Mine", nil)
	require.NoError(t, err)

	_, err = repoB.Get(ctx, mine.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	newName := "Stolen"
	_, err = repoB.Edit(ctx, mine.ID, folders.FolderEdit{Name: &newName})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(repoB.Delete(ctx, mine.ID)))

	_, err = repoB.Create(ctx, "Child", &mine.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = repoB.Path(ctx, mine.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	list, err := repoB.List(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	theirs, err := repoB.Create(ctx, "Theirs", nil)
	require.NoError(t, err)
	_, err = repo.Edit(ctx, mine.ID, folders.FolderEdit{ParentID: &theirs.ID})
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestEditRenameAndMove(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	a, err := repo.Create(ctx, "A", nil)
	require.NoError(t, err)
	b, err := repo.Create(ctx, "B", nil)
	require.NoError(t, err)

	name := "B2"
	moved, err := repo.Edit(ctx, b.ID, folders.FolderEdit{Name: &name, ParentID: &a.ID})
	require.NoError(t, err)
	assert.Equal(t, "B2", moved.Name)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, a.ID, *moved.ParentID)

	back, err := repo.Edit(ctx, b.ID, folders.FolderEdit{MoveToRoot: true})
	require.NoError(t, err)
	assert.Nil(t, back.ParentID)
	assert.Equal(t, "B2", back.Name)

	empty := ""
	_, err = repo.Edit(ctx, b.ID, folders.FolderEdit{Name: &empty})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestEditRejectsCycles(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	a, err := repo.Create(ctx, "A", nil)
	require.NoError(t, err)
	b, err := repo.Create(ctx, "B", &a.ID)
	require.NoError(t, err)
	c, err := repo.Create(ctx, "C", &b.ID)
	require.NoError(t, err)

	tests := []struct {
		name     string
		id       string
		parentID string
	}{
		{"self", a.ID, a.ID},
		{"child", a.ID, b.ID},
		{"grandchild", a.ID, c.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Edit(ctx, tt.id, folders.FolderEdit{ParentID: &tt.parentID})
			require.Error(t, err)
			assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Contains(t, appErr.Details, "parent_id")
		})
	}

	f, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, f.ParentID)

	// Moving a leaf under a sibling branch is fine.
	_, err = repo.Edit(ctx, c.ID, folders.FolderEdit{ParentID: &a.ID})
	assert.NoError(t, err)
}

func TestDeleteBlocksWhenNotEmpty(t *testing.T) {
	ts, repo := setup(t)
	ctx := context.Background()

	parent, err := repo.Create(ctx, "Parent", nil)
	require.NoError(t, err)
	child, err := repo.Create(ctx, "Child", &parent.ID)
	require.NoError(t, err)

	err = repo.Delete(ctx, parent.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	d := testutil.CreateTestDiagram(t, ts.DB, ts.Org.ID, "", false)
	require.NoError(t, ts.DB.Model(d).Update("folder_id", child.ID).Error)

	err = repo.Delete(ctx, child.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	require.NoError(t, ts.DB.Model(d).Update("folder_id", nil).Error)
	require.NoError(t, repo.Delete(ctx, child.ID))
	require.NoError(t, repo.Delete(ctx, parent.ID))

	_, err = repo.Get(ctx, parent.ID)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestPath(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	a, err := repo.Create(ctx, "A", nil)
	require.NoError(t, err)
	b, err := repo.Create(ctx, "B", &a.ID)
	require.NoError(t, err)
	c, err := repo.Create(ctx, "C", &b.ID)
	require.NoError(t, err)

	path, err := repo.Path(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, names(path))

	path, err = repo.Path(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(path))
}
