package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/snapshot"
)

func registerScreenshotHandlers(api huma.API, svc Service) {
	type screenshotIDInput struct {
		ScreenshotID string `path:"screenshot_id" doc:"Screenshot ID"`
	}

	type metaOutput struct {
		Body snapshot.ScreenshotMeta
	}

	huma.Register(api, huma.Operation{
		OperationID:   "capture-screenshot",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions/{id}/screenshot",
		Summary:       "Capture a screenshot of the active tab",
		DefaultStatus: http.StatusCreated,
		Tags:          []string{"Screenshots"},
	}, func(ctx context.Context, input *sessionIDInput) (*metaOutput, error) {
		meta, err := svc.CaptureScreenshot(ctx, input.ID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &metaOutput{Body: meta}, nil
	})

	type listOutput struct {
		Body struct {
			Screenshots []snapshot.ScreenshotMeta `json:"screenshots"`
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-screenshots",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/screenshots",
		Summary:     "List a session's screenshots",
		Tags:        []string{"Screenshots"},
	}, func(ctx context.Context, input *sessionIDInput) (*listOutput, error) {
		metas, err := svc.ListScreenshots(ctx, input.ID)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &listOutput{}
		out.Body.Screenshots = metas
		return out, nil
	})

	type imageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-screenshot-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/screenshots/{screenshot_id}/image",
		Summary:     "Download a screenshot image",
		Tags:        []string{"Screenshots"},
	}, func(ctx context.Context, input *screenshotIDInput) (*imageOutput, error) {
		img, format, err := svc.GetScreenshotImage(ctx, input.ScreenshotID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &imageOutput{ContentType: "image/" + format, Body: img}, nil
	})

	type deleteOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "delete-screenshot",
		Method:      http.MethodDelete,
		Path:        "/api/v1/screenshots/{screenshot_id}",
		Summary:     "Delete a screenshot",
		Tags:        []string{"Screenshots"},
	}, func(ctx context.Context, input *screenshotIDInput) (*deleteOutput, error) {
		if err := svc.DeleteScreenshot(ctx, input.ScreenshotID); err != nil {
			return nil, mapErr(err)
		}
		out := &deleteOutput{}
		out.Body.Status = "deleted"
		return out, nil
	})
}
