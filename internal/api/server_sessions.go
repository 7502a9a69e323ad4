package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/session"
)

func registerSessionHandlers(api huma.API, svc Service) {
	type sessionOutput struct {
		Body session.Info
	}

	type createInput struct {
		Body session.CreateOptions
	}
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Create a browser session",
		Description:   "Launches an isolated browser process and starts active-tab detection.",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *createInput) (*sessionOutput, error) {
		info, err := svc.CreateSession(ctx, input.Body)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &sessionOutput{}
		out.Body = info
		return out, nil
	})

	type listOutput struct {
		Body []session.Info
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List all sessions",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *struct{}) (*listOutput, error) {
		infos, err := svc.ListSessions(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &listOutput{}
		out.Body = infos
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get session info",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *sessionIDInput) (*sessionOutput, error) {
		info, err := svc.GetSession(ctx, input.ID)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &sessionOutput{}
		out.Body = info
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-session",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Close a session and its browser",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *sessionIDInput) (*struct{}, error) {
		if err := svc.CloseSession(ctx, input.ID); err != nil {
			return nil, mapErr(err)
		}
		return nil, nil
	})

	type navigateInput struct {
		ID   string `path:"id"`
		Body struct {
			URL string `json:"url" doc:"Destination URL for the active tab"`
		}
	}
	type navigateOutput struct {
		Body struct {
			Status string `json:"status"`
			URL    string `json:"url"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "navigate-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/navigate",
		Summary:     "Navigate the active tab",
		Description: "Also records the URL as the session's declared destination, which boosts matching tabs during detection.",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *navigateInput) (*navigateOutput, error) {
		if err := svc.Navigate(ctx, input.ID, input.Body.URL); err != nil {
			return nil, mapErr(err)
		}
		out := &navigateOutput{}
		out.Body.Status = "ok"
		out.Body.URL = input.Body.URL
		return out, nil
	})
}
