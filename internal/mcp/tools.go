package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmref-mcp-server/internal/domain"
	"github.com/pharmref-mcp-server/internal/metrics"
)

// Tool names.
const (
	ToolSearchDrugs    = "search_drugs"
	ToolGetDrug        = "get_drug"
	ToolResolveDosing  = "resolve_dosing"
	ToolAnalyzeRegimen = "analyze_regimen"
	ToolListAlertRules = "list_alert_rules"
	ToolSessionStart   = "session_start"
	ToolSessionGet     = "session_get"
	ToolSessionUpdate  = "session_update"
	ToolSessionEnd     = "session_end"
	ToolExportData     = "export_data"
)

// registerTools registers every tool with the MCP SDK.
func (s *LiteServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSearchDrugs,
		Description: "Search the drug reference by English or Korean name, brand name or drug class",
	}, toolHandler(s, ToolSearchDrugs, s.searchDrugs))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolGetDrug,
		Description: "Get the full hepatotoxicity and nephrotoxicity record of one drug",
	}, toolHandler(s, ToolGetDrug, s.getDrug))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolResolveDosing,
		Description: "Resolve dosing guidance for a drug at a Child-Pugh class or CKD stage",
	}, toolHandler(s, ToolResolveDosing, s.resolveDosing))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolAnalyzeRegimen,
		Description: "Score hepatic and renal risk for a drug selection and list triggered interaction alerts",
	}, toolHandler(s, ToolAnalyzeRegimen, s.analyzeRegimen))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListAlertRules,
		Description: "List the interaction alert rules, optionally by category",
	}, toolHandler(s, ToolListAlertRules, s.listAlertRules))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSessionStart,
		Description: "Start a selection session with no drugs and normal organ function",
	}, toolHandler(s, ToolSessionStart, s.sessionStart))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSessionGet,
		Description: "Get the drugs and stages of a session",
	}, toolHandler(s, ToolSessionGet, s.sessionGet))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSessionUpdate,
		Description: "Add or remove drugs and set stages or alcohol history on a session",
	}, toolHandler(s, ToolSessionUpdate, s.sessionUpdate))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSessionEnd,
		Description: "End a session and discard its state",
	}, toolHandler(s, ToolSessionEnd, s.sessionEnd))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolExportData,
		Description: "Export drugs and alert rules to a dated JSON file in the data directory",
	}, toolHandler(s, ToolExportData, s.exportData))

	s.logger.WithField("tool_count", 10).Info("Successfully registered all tools")
}

// toolHandler adapts a typed tool function to the SDK handler. It applies
// the rate limit and timeout, records metrics, and turns errors into
// error results carrying a domain.MCPError.
func toolHandler[In, Out any](s *LiteServer, name string, fn func(context.Context, In) (Out, error)) func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, params In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		requestID := uuid.New().String()
		logger := s.logger.WithFields(logrus.Fields{
			"tool":       name,
			"request_id": requestID,
		})
		logger.Debug("Tool invoked")

		if s.limiter != nil && !s.limiter.Allow() {
			err := domain.NewMCPError(domain.ErrRateLimit, "too many tool calls", "retry shortly", requestID)
			metrics.RecordToolCall(name, err, time.Since(start))
			return errorResult(err), nil, nil
		}

		ctx, cancel := context.WithTimeout(ctx, s.toolTimeout)
		defer cancel()

		out, err := fn(ctx, params)
		metrics.RecordToolCall(name, err, time.Since(start))
		if err != nil {
			mcpErr := domain.ToMCPError(err, requestID)
			logger.WithError(err).WithField("code", mcpErr.Code).Warn("Tool call failed")
			return errorResult(mcpErr), nil, nil
		}

		text, err := renderResult(out)
		if err != nil {
			return errorResult(domain.ToMCPError(err, requestID)), nil, nil
		}

		logger.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Tool completed")
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil, nil
	}
}

// renderResult prints analysis reports as text and everything else as JSON.
func renderResult(v any) (string, error) {
	if r, ok := v.(*AnalyzeRegimenResult); ok && r.Report != "" {
		return r.Report, nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(b), nil
}

// errorResult creates a standardized error result for tool calls
func errorResult(mcpErr *domain.MCPError) *mcp.CallToolResult {
	text, err := json.Marshal(mcpErr)
	if err != nil {
		text = []byte(mcpErr.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		IsError: true,
	}
}
