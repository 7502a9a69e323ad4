package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdp"
)

func registerTabHandlers(api huma.API, svc Service) {
	type tabsOutput struct {
		Body []cdp.TabInfo
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-tabs",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/tabs",
		Summary:     "List session tabs",
		Description: "Tabs in registry insertion order; at most one is active.",
		Tags:        []string{"Tabs"},
	}, func(ctx context.Context, input *sessionIDInput) (*tabsOutput, error) {
		tabs, err := svc.ListTabs(ctx, input.ID)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &tabsOutput{}
		out.Body = tabs
		return out, nil
	})

	type tabOutput struct {
		Body cdp.TabInfo
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-active-tab",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/tabs/active",
		Summary:     "Get the active tab",
		Tags:        []string{"Tabs"},
	}, func(ctx context.Context, input *sessionIDInput) (*tabOutput, error) {
		tab, err := svc.ActiveTab(ctx, input.ID)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &tabOutput{}
		out.Body = tab
		return out, nil
	})

	type switchInput struct {
		ID   string `path:"id"`
		Body struct {
			TabID    string `json:"tab_id" doc:"Target tab"`
			IsManual bool   `json:"is_manual,omitempty" doc:"Manual switches clear the activity lock and suppress auto-detection for a grace window"`
		}
	}
	type switchOutput struct {
		Body struct {
			Switched bool   `json:"switched"`
			TabID    string `json:"tabId"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "switch-tab",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/tabs/switch",
		Summary:     "Switch the active tab",
		Description: "An automatic switch is refused while an unexpired activity lock pins a different tab; a manual switch always wins.",
		Tags:        []string{"Tabs"},
	}, func(ctx context.Context, input *switchInput) (*switchOutput, error) {
		switched, err := svc.SwitchToTab(ctx, input.ID, input.Body.TabID, input.Body.IsManual)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &switchOutput{}
		out.Body.Switched = switched
		out.Body.TabID = input.Body.TabID
		return out, nil
	})

	type closeTabInput struct {
		ID    string `path:"id"`
		TabID string `path:"tab_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "close-tab",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sessions/{id}/tabs/{tab_id}",
		Summary:     "Close a tab",
		Tags:        []string{"Tabs"},
	}, func(ctx context.Context, input *closeTabInput) (*struct{}, error) {
		if err := svc.CloseTab(ctx, input.ID, input.TabID); err != nil {
			return nil, mapErr(err)
		}
		return nil, nil
	})
}
