package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/session"
)

// Input results come back 200 even on failure: a stale tab or closed
// page is a routine outcome the client inspects, not an HTTP error.
func registerInputHandlers(api huma.API, svc Service) {
	type inputOutput struct {
		Body session.InputResult
	}

	type mouseInput struct {
		ID   string `path:"id"`
		Body session.MouseInput
	}
	huma.Register(api, huma.Operation{
		OperationID: "apply-mouse",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/input/mouse",
		Summary:     "Inject a mouse event into the active tab",
		Tags:        []string{"Input"},
	}, func(ctx context.Context, input *mouseInput) (*inputOutput, error) {
		result, err := svc.ApplyMouse(ctx, input.ID, input.Body)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &inputOutput{}
		out.Body = result
		return out, nil
	})

	type keyboardInput struct {
		ID   string `path:"id"`
		Body session.KeyInput
	}
	huma.Register(api, huma.Operation{
		OperationID: "apply-keyboard",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/input/keyboard",
		Summary:     "Inject a keyboard event into the active tab",
		Tags:        []string{"Input"},
	}, func(ctx context.Context, input *keyboardInput) (*inputOutput, error) {
		result, err := svc.ApplyKeyboard(ctx, input.ID, input.Body)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &inputOutput{}
		out.Body = result
		return out, nil
	})
}
