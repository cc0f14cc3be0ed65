package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/autosnapper/internal/controller"
)

type historyOutput struct {
	Body struct {
		History []controller.HistoryEntry `json:"history"`
	}
}

type historyIDInput struct {
	ID string `path:"id" doc:"History entry id"`
}

type imageOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

func registerHistoryHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "list-history", Method: http.MethodGet, Path: "/api/history", Summary: "List past captures, newest first", Tags: []string{"History"}},
		func(ctx context.Context, input *struct {
			Limit int `query:"limit" minimum:"0" maximum:"500" doc:"Maximum entries to return. 0 uses the server default."`
		}) (*historyOutput, error) {
			entries, err := svc.History(ctx, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &historyOutput{}
			out.Body.History = entries
			if out.Body.History == nil {
				out.Body.History = []controller.HistoryEntry{}
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-history-image", Method: http.MethodGet, Path: "/api/history/{id}/image", Summary: "Raw image of a capture", Tags: []string{"History"}},
		func(ctx context.Context, input *historyIDInput) (*imageOutput, error) {
			data, format, err := svc.Image(ctx, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &imageOutput{
				ContentType:  "image/" + format,
				CacheControl: "public, max-age=86400, immutable",
				Body:         data,
			}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-history-entry", Method: http.MethodDelete, Path: "/api/history/{id}", Summary: "Delete a capture", Tags: []string{"History"}, DefaultStatus: http.StatusNoContent},
		func(ctx context.Context, input *historyIDInput) (*struct{}, error) {
			if err := svc.DeleteEntry(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})
}
