package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/ncov-pipeline/pkg/aggregate"
	"github.com/hazyhaar/ncov-pipeline/pkg/kit"
	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
)

// Shared request/response types used by both HTTP and MCP transports.

var (
	errNotFound = errors.New("not found")
	errInvalid  = errors.New("invalid argument")
)

type entitiesResponse struct {
	Entities []string `json:"entities"`
}

type summaryResponse struct {
	Entity string          `json:"entity"`
	Rows   []aggregate.Row `json:"rows"`
}

type thresholdResponse struct {
	Entity    string                   `json:"entity"`
	Metric    string                   `json:"metric"`
	Threshold int64                    `json:"threshold"`
	Points    []aggregate.IndexedPoint `json:"points"`
}

type ledgerResponse struct {
	Entries []ledger.Entry `json:"entries"`
}

type summaryReq struct {
	Entity string
}

type thresholdReq struct {
	Entity    string
	Metric    string
	Threshold int64
}

type ledgerReq struct {
	Source string
}

// Endpoints are the read-only actions over the derived tables. All of them
// are backed by one database handle.
type Endpoints struct {
	Entities  kit.Endpoint
	Summary   kit.Endpoint
	Threshold kit.Endpoint
	Ledger    kit.Endpoint
}

// NewEndpoints builds the endpoints over q, wrapping each with mw when given.
func NewEndpoints(q ledger.Querier, mw func(name string) kit.Middleware) *Endpoints {
	wrap := func(name string, e kit.Endpoint) kit.Endpoint {
		if mw == nil {
			return e
		}
		return mw(name)(e)
	}
	return &Endpoints{
		Entities:  wrap("list_entities", listEntitiesEndpoint(q)),
		Summary:   wrap("get_summary", summaryEndpoint(q)),
		Threshold: wrap("threshold_series", thresholdEndpoint(q)),
		Ledger:    wrap("list_ledger", ledgerEndpoint(q)),
	}
}

func listEntitiesEndpoint(q ledger.Querier) kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		entities, err := aggregate.Entities(ctx, q)
		if err != nil {
			return nil, err
		}
		if entities == nil {
			entities = []string{}
		}
		return entitiesResponse{Entities: entities}, nil
	}
}

func summaryEndpoint(q ledger.Querier) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*summaryReq)
		rows, err := aggregate.Summary(ctx, q, req.Entity)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("entity %q: %w", req.Entity, errNotFound)
		}
		return summaryResponse{Entity: req.Entity, Rows: rows}, nil
	}
}

func thresholdEndpoint(q ledger.Querier) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*thresholdReq)
		if req.Metric == "" {
			req.Metric = "confirmed"
		}
		if _, err := (aggregate.Point{}).Metric(req.Metric); err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalid, err)
		}
		rows, err := aggregate.Summary(ctx, q, req.Entity)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("entity %q: %w", req.Entity, errNotFound)
		}
		points, err := aggregate.ThresholdSeries(aggregate.Points(rows), req.Metric, req.Threshold)
		if err != nil {
			return nil, err
		}
		if points == nil {
			points = []aggregate.IndexedPoint{}
		}
		return thresholdResponse{Entity: req.Entity, Metric: req.Metric, Threshold: req.Threshold, Points: points}, nil
	}
}

func ledgerEndpoint(q ledger.Querier) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*ledgerReq)
		entries, err := ledger.List(ctx, q, req.Source)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []ledger.Entry{}
		}
		return ledgerResponse{Entries: entries}, nil
	}
}
