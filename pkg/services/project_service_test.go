package services

import (
	"context"
	"testing"

	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProjectService(t *testing.T) *ProjectService {
	t.Helper()
	client := testdb.NewTestClient(t)
	pub := events.NewPublisher(client.DB())
	return NewProjectService(client, pub)
}

func TestProjectService_PostProject_RequiresPath(t *testing.T) {
	s := newProjectService(t)
	_, err := s.PostProject(context.Background(), PostProjectRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestProjectService_PostProject_UpsertsByPath(t *testing.T) {
	s := newProjectService(t)
	ctx := context.Background()

	first, err := s.PostProject(ctx, PostProjectRequest{Path: "/tmp/repo"})
	require.NoError(t, err)
	assert.Equal(t, "repo", first.Name)

	second, err := s.PostProject(ctx, PostProjectRequest{Path: "/tmp/repo", Name: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "repo", second.Name)
}

func TestProjectService_GetProject_NotFound(t *testing.T) {
	s := newProjectService(t)
	_, err := s.GetProject(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectService_GetProjectByPath(t *testing.T) {
	s := newProjectService(t)
	ctx := context.Background()

	created, err := s.PostProject(ctx, PostProjectRequest{Path: "/tmp/other", Name: "other"})
	require.NoError(t, err)

	found, err := s.GetProjectByPath(ctx, "/tmp/other")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = s.GetProjectByPath(ctx, "/tmp/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectService_ListProjects(t *testing.T) {
	s := newProjectService(t)
	ctx := context.Background()

	_, err := s.PostProject(ctx, PostProjectRequest{Path: "/tmp/a"})
	require.NoError(t, err)
	_, err = s.PostProject(ctx, PostProjectRequest{Path: "/tmp/b"})
	require.NoError(t, err)

	all, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
