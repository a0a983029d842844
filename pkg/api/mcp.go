package api

import (
	"fmt"

	"github.com/hazyhaar/ncov-pipeline/pkg/kit"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers the summary MCP tools on the server.
func RegisterMCPTools(srv *server.MCPServer, ep *Endpoints) {
	registerListEntities(srv, ep)
	registerGetSummary(srv, ep)
	registerThresholdSeries(srv, ep)
}

func registerListEntities(srv *server.MCPServer, ep *Endpoints) {
	tool := mcp.NewTool("list_entities",
		mcp.WithDescription("List every entity (country, Country/Province, World) with a daily summary."),
	)

	kit.RegisterMCPTool(srv, tool, ep.Entities, func(_ mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	})
}

func registerGetSummary(srv *server.MCPServer, ep *Endpoints) {
	tool := mcp.NewTool("get_summary",
		mcp.WithDescription("Daily summary of one entity ordered by date: counts, CFR, CRR, growth rates and day index since threshold."),
		mcp.WithString("entity", mcp.Required(), mcp.Description("Entity name, e.g. Italy, China/Hubei or World")),
	)

	kit.RegisterMCPTool(srv, tool, ep.Summary, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		entity := req.GetString("entity", "")
		if entity == "" {
			return nil, fmt.Errorf("entity is required")
		}
		return &kit.MCPDecodeResult{Request: &summaryReq{Entity: entity}}, nil
	})
}

func registerThresholdSeries(srv *server.MCPServer, ep *Endpoints) {
	tool := mcp.NewTool("threshold_series",
		mcp.WithDescription("Series of one entity re-indexed from the first day a metric reached a threshold, day 1 first."),
		mcp.WithString("entity", mcp.Required(), mcp.Description("Entity name")),
		mcp.WithString("metric", mcp.Description("confirmed, deaths, recovered or active (default confirmed)")),
		mcp.WithNumber("threshold", mcp.Description("Threshold value (default 100)")),
	)

	kit.RegisterMCPTool(srv, tool, ep.Threshold, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		entity := req.GetString("entity", "")
		if entity == "" {
			return nil, fmt.Errorf("entity is required")
		}
		threshold := req.GetInt("threshold", 100)
		if threshold < 0 {
			return nil, fmt.Errorf("threshold must be non-negative")
		}
		return &kit.MCPDecodeResult{Request: &thresholdReq{
			Entity:    entity,
			Metric:    req.GetString("metric", ""),
			Threshold: int64(threshold),
		}}, nil
	})
}
