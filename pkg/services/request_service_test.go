package services

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/dcm/ent/request"
	"github.com/codeready-toolchain/dcm/pkg/events"
	testdb "github.com/codeready-toolchain/dcm/test/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestService(t *testing.T) (*RequestService, uuid.UUID) {
	t.Helper()
	client := testdb.NewTestClient(t)
	pub := events.NewPublisher(client.DB())

	project, err := client.Project.Create().SetPath("/tmp/req-svc").SetName("req-svc").Save(context.Background())
	require.NoError(t, err)
	for _, sessionID := range []string{"sess-1", "sess-a", "sess-b"} {
		_, err := client.Session.Create().SetID(sessionID).Save(context.Background())
		require.NoError(t, err)
	}

	return NewRequestService(client, pub), project.ID
}

func TestRequestService_CreateRequest_ValidatesInput(t *testing.T) {
	s, projectID := newRequestService(t)
	ctx := context.Background()

	_, err := s.CreateRequest(ctx, CreateRequestRequest{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = s.CreateRequest(ctx, CreateRequestRequest{ProjectID: projectID})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestRequestService_CreateRequest_Succeeds(t *testing.T) {
	s, projectID := newRequestService(t)
	ctx := context.Background()

	created, err := s.CreateRequest(ctx, CreateRequestRequest{
		ProjectID:  projectID,
		SessionID:  "sess-1",
		PromptText: "do the thing",
	})
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, created.Status)

	fetched, err := s.GetRequest(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
}

func TestRequestService_ListRequests_FiltersByStatusAndSession(t *testing.T) {
	s, projectID := newRequestService(t)
	ctx := context.Background()

	a, err := s.CreateRequest(ctx, CreateRequestRequest{ProjectID: projectID, SessionID: "sess-a", PromptText: "a"})
	require.NoError(t, err)
	_, err = s.CreateRequest(ctx, CreateRequestRequest{ProjectID: projectID, SessionID: "sess-b", PromptText: "b"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateRequestStatus(ctx, a.ID.String(), request.StatusCompleted))

	results, err := s.ListRequests(ctx, RequestFilters{SessionID: "sess-a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, request.StatusCompleted, results[0].Status)
	assert.NotNil(t, results[0].CompletedAt)

	results, err = s.ListRequests(ctx, RequestFilters{Status: "invalid"})
	assert.True(t, IsValidationError(err))
	assert.Nil(t, results)
}

func TestRequestService_UpdateRequestStatus_NotFound(t *testing.T) {
	s, _ := newRequestService(t)
	err := s.UpdateRequestStatus(context.Background(), uuid.New().String(), request.StatusRunning)
	assert.ErrorIs(t, err, ErrNotFound)
}
