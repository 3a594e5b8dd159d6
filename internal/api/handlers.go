package api

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/voxpipe/voxpipe/internal/models"
	"github.com/voxpipe/voxpipe/internal/store"
	"github.com/voxpipe/voxpipe/internal/version"
)

// recentTransitionLimit caps how much history the file detail view carries.
const recentTransitionLimit = 50

type handler struct {
	store     *store.Store
	startTime time.Time
}

func newHandler(st *store.Store) *handler {
	return &handler{store: st, startTime: time.Now()}
}

func (h *handler) register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/api/v1/health",
		Summary:     "Health check",
		Tags:        []string{"System"},
	}, h.getHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getPipelineSnapshot",
		Method:      "GET",
		Path:        "/api/v1/pipeline/snapshot",
		Summary:     "Pipeline snapshot",
		Description: "Returns per-stage status counts across all files",
		Tags:        []string{"Pipeline"},
	}, h.getSnapshot)

	huma.Register(api, huma.Operation{
		OperationID: "listFiles",
		Method:      "GET",
		Path:        "/api/v1/files",
		Summary:     "List files",
		Description: "Returns registered files, optionally filtered by stage and status",
		Tags:        []string{"Files"},
	}, h.listFiles)

	huma.Register(api, huma.Operation{
		OperationID: "getFile",
		Method:      "GET",
		Path:        "/api/v1/files/{id}",
		Summary:     "Get file detail",
		Description: "Returns a file with its stage states, artifacts, and recent transitions",
		Tags:        []string{"Files"},
	}, h.getFile)

	huma.Register(api, huma.Operation{
		OperationID: "registerFile",
		Method:      "POST",
		Path:        "/api/v1/files",
		Summary:     "Register a file",
		Description: "Registers a recording for processing. Idempotent on (path, size).",
		Tags:        []string{"Files"},
	}, h.registerFile)

	huma.Register(api, huma.Operation{
		OperationID: "requeueStage",
		Method:      "POST",
		Path:        "/api/v1/files/{id}/stages/{stage}/requeue",
		Summary:     "Requeue a stage",
		Description: "Returns a failed, qa_failed, or stalled stage to not_started",
		Tags:        []string{"Files"},
	}, h.requeueStage)
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Timestamp     string  `json:"timestamp"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type healthOutput struct {
	Body HealthResponse
}

func (h *handler) getHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	now := time.Now()
	return &healthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Version:       version.Version,
			Timestamp:     now.UTC().Format(time.RFC3339),
			UptimeSeconds: now.Sub(h.startTime).Seconds(),
		},
	}, nil
}

type snapshotOutput struct {
	Body store.Snapshot
}

func (h *handler) getSnapshot(ctx context.Context, _ *struct{}) (*snapshotOutput, error) {
	snap, err := h.store.Snapshot(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("reading pipeline snapshot", err)
	}
	return &snapshotOutput{Body: *snap}, nil
}

type listFilesInput struct {
	Stage  string `query:"stage" doc:"Filter by stage name" example:"translation_en"`
	Status string `query:"status" doc:"Filter by stage status" example:"failed"`
}

type listFilesOutput struct {
	Body struct {
		Files []models.MediaFile `json:"files"`
	}
}

func (h *handler) listFiles(ctx context.Context, input *listFilesInput) (*listFilesOutput, error) {
	var stage models.Stage
	if input.Stage != "" {
		parsed, err := models.ParseStage(input.Stage)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid stage filter", err)
		}
		stage = parsed
	}

	status := models.StageStatus(input.Status)
	if input.Status != "" && !status.Valid() {
		return nil, huma.Error422UnprocessableEntity("invalid status filter")
	}

	files, err := h.store.ListFilesFiltered(ctx, stage, status)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing files", err)
	}

	out := &listFilesOutput{}
	out.Body.Files = files
	return out, nil
}

type fileIDInput struct {
	ID string `path:"id" doc:"File id" format:"uuid"`
}

// FileDetail is the full view of one file.
type FileDetail struct {
	File        models.MediaFile         `json:"file"`
	States      []models.StageState      `json:"states"`
	Artifacts   []models.Artifact        `json:"artifacts"`
	Transitions []models.StageTransition `json:"transitions"`
}

type fileDetailOutput struct {
	Body FileDetail
}

func (h *handler) getFile(ctx context.Context, input *fileIDInput) (*fileDetailOutput, error) {
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid file id", err)
	}

	file, err := h.store.FileByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			return nil, huma.Error404NotFound("file not found")
		}
		return nil, huma.Error500InternalServerError("getting file", err)
	}

	states, err := h.store.StatesForFile(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting stage states", err)
	}
	artifacts, err := h.store.ArtifactsForFile(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting artifacts", err)
	}
	transitions, err := h.store.TransitionsForFile(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting transitions", err)
	}
	if len(transitions) > recentTransitionLimit {
		transitions = transitions[len(transitions)-recentTransitionLimit:]
	}

	return &fileDetailOutput{
		Body: FileDetail{
			File:        *file,
			States:      states,
			Artifacts:   artifacts,
			Transitions: transitions,
		},
	}, nil
}

type registerFileInput struct {
	Body struct {
		Path string `json:"path" minLength:"1" doc:"Path to the recording on the daemon host"`
	}
}

type registerFileOutput struct {
	Status int
	Body   struct {
		File    models.MediaFile `json:"file"`
		Created bool             `json:"created"`
	}
}

func (h *handler) registerFile(ctx context.Context, input *registerFileInput) (*registerFileOutput, error) {
	info, err := os.Stat(input.Body.Path)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("source file not readable", err)
	}
	if info.IsDir() {
		return nil, huma.Error422UnprocessableEntity("source path is a directory")
	}

	file, created, err := h.store.RegisterFile(ctx, input.Body.Path, info.Size(),
		models.KindForPath(input.Body.Path))
	if err != nil {
		return nil, huma.Error500InternalServerError("registering file", err)
	}

	out := &registerFileOutput{Status: 200}
	if created {
		out.Status = 201
	}
	out.Body.File = *file
	out.Body.Created = created
	return out, nil
}

type requeueInput struct {
	ID    string `path:"id" doc:"File id" format:"uuid"`
	Stage string `path:"stage" doc:"Stage name" example:"translation_en"`
}

type requeueOutput struct {
	Body struct {
		State models.StageState `json:"state"`
	}
}

func (h *handler) requeueStage(ctx context.Context, input *requeueInput) (*requeueOutput, error) {
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid file id", err)
	}
	stage, err := models.ParseStage(input.Stage)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("invalid stage", err)
	}

	err = h.store.Requeue(ctx, id, stage)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrStageStateNotFound):
		return nil, huma.Error404NotFound("stage state not found")
	case errors.Is(err, models.ErrRequeueFromInvalidStatus):
		return nil, huma.Error409Conflict("stage is not requeueable", err)
	default:
		return nil, huma.Error500InternalServerError("requeueing stage", err)
	}

	state, err := h.store.StageStateFor(ctx, id, stage)
	if err != nil {
		return nil, huma.Error500InternalServerError("reloading stage state", err)
	}

	out := &requeueOutput{}
	out.Body.State = *state
	return out, nil
}
