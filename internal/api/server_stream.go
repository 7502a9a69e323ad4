package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerStreamHandlers(api huma.API, svc Service) {
	type streamOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "start-stream",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/stream/start",
		Summary:     "Start the screencast",
		Description: "Frames are delivered on the session's SSE events endpoint as `frame` events. Starting an already-running stream is a no-op.",
		Tags:        []string{"Stream"},
	}, func(ctx context.Context, input *sessionIDInput) (*streamOutput, error) {
		if err := svc.StartStream(ctx, input.ID); err != nil {
			return nil, mapErr(err)
		}
		out := &streamOutput{}
		out.Body.Status = "streaming"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-stream",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/stream/stop",
		Summary:     "Stop the screencast",
		Tags:        []string{"Stream"},
	}, func(ctx context.Context, input *sessionIDInput) (*streamOutput, error) {
		if err := svc.StopStream(ctx, input.ID); err != nil {
			return nil, mapErr(err)
		}
		out := &streamOutput{}
		out.Body.Status = "stopped"
		return out, nil
	})
}
