package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/autosnapper/internal/controller"
)

type captureInput struct {
	Body struct {
		URL string `json:"url,omitempty" doc:"Absolute http or https URL to capture" example:"https://example.com"`
	} `required:"false"`
}

type captureOutput struct {
	Body controller.CaptureResult
}

func registerCaptureHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{
		OperationID: "capture-screenshot",
		Method:      http.MethodPost,
		Path:        "/api/screenshot",
		Summary:     "Capture a screenshot",
		Description: "Renders the URL in a headless browser and returns the PNG as base64. Repeat requests for the same URL are served from cache with cached=true.",
		Tags:        []string{"Capture"},
	}, func(ctx context.Context, input *captureInput) (*captureOutput, error) {
		res, err := svc.Capture(ctx, input.Body.URL)
		if err != nil {
			return nil, mapErr(err)
		}
		return &captureOutput{Body: res}, nil
	})
}
