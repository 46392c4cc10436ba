package transport

import (
	"context"
	"fmt"
	"strings"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"github.com/wehubfusion/Ariadne/pkg/mappers"
	"github.com/wehubfusion/Ariadne/pkg/metadata"
	"github.com/wehubfusion/Ariadne/pkg/process"
	"github.com/wehubfusion/Ariadne/pkg/record"
	"github.com/wehubfusion/Ariadne/pkg/search"
)

// ViewDefsRequest asks for the view definitions of a module. Empty Views
// means all views.
type ViewDefsRequest struct {
	Module string   `json:"module"`
	Views  []string `json:"views,omitempty"`
}

// SearchRequest asks for the global search route.
type SearchRequest struct {
	SearchTerm string `json:"searchTerm"`
	Controller string `json:"controller,omitempty"`
}

func processRun(runner ProcessRunner) HandlerFunc {
	return func(ctx context.Context, req *Request) (interface{}, error) {
		var p process.Process
		if err := decode(req, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Type) == "" {
			return nil, fmt.Errorf("process type is required: %w", sdkerrors.ErrInvalidRequest)
		}
		return runner.Run(ctx, &p)
	}
}

func mapRecord(mapper RecordMapper, direction mappers.Direction) HandlerFunc {
	return func(ctx context.Context, req *Request) (interface{}, error) {
		var rec record.Record
		if err := decode(req, &rec); err != nil {
			return nil, err
		}
		if err := mapper.Run(ctx, &rec, direction); err != nil {
			return nil, err
		}
		return &rec, nil
	}
}

func getViewDefs(defs ViewDefinitions) HandlerFunc {
	return func(ctx context.Context, req *Request) (interface{}, error) {
		var in ViewDefsRequest
		if err := decode(req, &in); err != nil {
			return nil, err
		}
		return defs.GetViewDefs(ctx, in.Module, in.Views)
	}
}

func resolveMetadata(resolver MetadataResolver) HandlerFunc {
	return func(ctx context.Context, req *Request) (interface{}, error) {
		var in metadata.Request
		if len(req.Data) > 0 {
			if err := decode(req, &in); err != nil {
				return nil, err
			}
		}
		return resolver.Resolve(ctx, in)
	}
}

func searchRoute(_ context.Context, req *Request) (interface{}, error) {
	var in SearchRequest
	if len(req.Data) > 0 {
		if err := decode(req, &in); err != nil {
			return nil, err
		}
	}
	nav := search.NavigateToSearch(in.SearchTerm, in.Controller)
	return struct {
		search.Navigation
		URL string `json:"url"`
	}{Navigation: nav, URL: nav.URL()}, nil
}
