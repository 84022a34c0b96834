package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnatolyKozmin/Shend/internal/models"
	appErrors "github.com/AnatolyKozmin/Shend/pkg/errors"
)

type syncRunnerStub struct {
	err       error
	tracks    []string
	principal *models.Principal
}

func (s *syncRunnerStub) Run(ctx context.Context, principal *models.Principal, track string) (*models.SyncReport, error) {
	s.tracks = append(s.tracks, track)
	s.principal = principal
	if s.err != nil {
		return nil, s.err
	}
	return &models.SyncReport{Track: track}, nil
}

type registrarStub struct {
	specs []string
	tasks []*asynq.Task
}

func (r *registrarStub) Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error) {
	r.specs = append(r.specs, cronspec)
	r.tasks = append(r.tasks, task)
	return "entry", nil
}

var system = &models.Principal{ID: "system:scheduler", Kind: models.PrincipalSystem, Capabilities: []models.Capability{models.CapabilitySyncAvailability}}

func TestNewSyncTask(t *testing.T) {
	task, err := NewSyncTask("main", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TypeAvailabilitySync, task.Type())

	var p SyncPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "main", p.Track)

	_, err = NewSyncTask("", time.Minute)
	assert.Error(t, err)
}

func TestSyncHandlerRunsAsSystem(t *testing.T) {
	runner := &syncRunnerStub{}
	task, _ := NewSyncTask("main", time.Minute)

	require.NoError(t, NewSyncHandler(runner, system, nil).ProcessTask(context.Background(), task))
	assert.Equal(t, []string{"main"}, runner.tracks)
	assert.Equal(t, "system:scheduler", runner.principal.ID)
}

func TestSyncHandlerOutcomes(t *testing.T) {
	task, _ := NewSyncTask("main", time.Minute)

	busy := &syncRunnerStub{err: appErrors.ErrSyncInProgress}
	assert.NoError(t, NewSyncHandler(busy, system, nil).ProcessTask(context.Background(), task))

	source := &syncRunnerStub{err: appErrors.ErrExternalSourceUnavailable}
	err := NewSyncHandler(source, system, nil).ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	forbidden := &syncRunnerStub{err: appErrors.ErrForbidden}
	err = NewSyncHandler(forbidden, system, nil).ProcessTask(context.Background(), task)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	bad := asynq.NewTask(TypeAvailabilitySync, []byte("{"))
	err = NewSyncHandler(&syncRunnerStub{}, system, nil).ProcessTask(context.Background(), bad)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestRegisterSchedules(t *testing.T) {
	reg := &registrarStub{}
	require.NoError(t, RegisterSchedules(reg, "*/30 * * * *", []string{"main", "hse"}, time.Minute))
	assert.Equal(t, []string{"*/30 * * * *", "*/30 * * * *"}, reg.specs)
	require.Len(t, reg.tasks, 2)

	assert.Error(t, RegisterSchedules(reg, "", []string{"main"}, time.Minute))
}
