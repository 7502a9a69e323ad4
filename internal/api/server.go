package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdp"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/cdpcontrol"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/relay"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/session"
	"github.com/balaji-21cb003/browser-use-webrtc-sub000/internal/snapshot"
)

// Service is the operation surface the HTTP layer exposes.
type Service interface {
	CreateSession(ctx context.Context, opts session.CreateOptions) (session.Info, error)
	ListSessions(ctx context.Context) ([]session.Info, error)
	GetSession(ctx context.Context, id string) (session.Info, error)
	CloseSession(ctx context.Context, id string) error
	Navigate(ctx context.Context, id, url string) error

	ListTabs(ctx context.Context, id string) ([]cdp.TabInfo, error)
	ActiveTab(ctx context.Context, id string) (cdp.TabInfo, error)
	SwitchToTab(ctx context.Context, id, tabID string, isManual bool) (bool, error)
	CloseTab(ctx context.Context, id, tabID string) error

	StartStream(ctx context.Context, id string) error
	StopStream(ctx context.Context, id string) error

	ApplyMouse(ctx context.Context, id string, in session.MouseInput) (session.InputResult, error)
	ApplyKeyboard(ctx context.Context, id string, in session.KeyInput) (session.InputResult, error)

	CaptureScreenshot(ctx context.Context, id string) (snapshot.ScreenshotMeta, error)
	ListScreenshots(ctx context.Context, id string) ([]snapshot.ScreenshotMeta, error)
	GetScreenshotImage(ctx context.Context, screenshotID string) ([]byte, string, error)
	DeleteScreenshot(ctx context.Context, screenshotID string) error
}

type sessionIDInput struct {
	ID string `path:"id" doc:"Session ID"`
}

func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Browser Session Server API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	// SSE sits outside huma: it is a long-lived raw stream, not a
	// request/response operation.
	router.Get("/api/v1/sessions/{id}/events", relay.SSEHandler(broker, func(r *http.Request) string {
		return chi.URLParam(r, "id")
	}))

	registerSessionHandlers(api, svc)
	registerTabHandlers(api, svc)
	registerStreamHandlers(api, svc)
	registerInputHandlers(api, svc)
	registerScreenshotHandlers(api, svc)
	registerHealthHandler(api, broker)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeSessionNotFound, cdpcontrol.CodeTabNotFound, cdpcontrol.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable, cdpcontrol.CodeChannelLost, cdpcontrol.CodeRecoveryFailed:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}

func registerHealthHandler(api huma.API, broker *relay.Broker) {
	type healthOutput struct {
		Body struct {
			Status     string `json:"status"`
			SSEClients int    `json:"sseClients"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Service liveness",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		out.Body.SSEClients = broker.ClientCount()
		return out, nil
	})
}
