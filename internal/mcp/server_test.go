package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmref-mcp-server/internal/config"
	"github.com/pharmref-mcp-server/internal/domain"
	"github.com/pharmref-mcp-server/internal/session"
	"github.com/pharmref-mcp-server/internal/store"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T, mutate ...func(*config.LiteConfig)) *LiteServer {
	t.Helper()

	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.ToolRate = 0
	for _, m := range mutate {
		m(cfg)
	}

	server, err := NewLiteServer(t.Context(), cfg, WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func newTestServerWith(t *testing.T, opts ...LiteServerOption) *LiteServer {
	t.Helper()

	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.ToolRate = 0

	server, err := NewLiteServer(t.Context(), cfg, append([]LiteServerOption{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewLiteServer_SeedsBundledDataset(t *testing.T) {
	server := newTestServer(t)

	drugs, err := server.Store().CountDrugs(t.Context())
	require.NoError(t, err)
	rules, err := server.Store().CountRules(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 32, drugs)
	assert.Equal(t, 27, rules)

	_, err = os.Stat(server.config.DatabasePath())
	assert.NoError(t, err)
}

// rulesWriteFailStore accepts drugs but cannot store rules.
type rulesWriteFailStore struct {
	*store.SQLiteStore
}

func (rulesWriteFailStore) ReplaceRules(context.Context, []domain.AlertRule) error {
	return errors.New("disk full")
}

func TestNewLiteServer_ContinuesWhenSeedingFails(t *testing.T) {
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.ToolRate = 0
	sqlite, err := store.NewSQLiteStore(cfg.DatabasePath())
	require.NoError(t, err)

	server, err := NewLiteServer(t.Context(), cfg,
		WithLogger(discardLogger()),
		WithStore(rulesWriteFailStore{SQLiteStore: sqlite}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	drugs, err := server.Store().CountDrugs(t.Context())
	require.NoError(t, err)
	rules, err := server.Store().CountRules(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 32, drugs)
	assert.Zero(t, rules)

	result, err := server.analyzeRegimen(t.Context(), AnalyzeRegimenParams{DrugIDs: []string{"vancomycin", "gentamicin"}})
	require.NoError(t, err)
	assert.Empty(t, result.Analysis.Alerts)
}

func TestNewLiteServer_UsesInjectedSessionStore(t *testing.T) {
	sessions := session.NewMemoryStore(0)
	server := newTestServerWith(t, WithSessionStore(sessions))

	started, err := server.sessionStart(t.Context(), struct{}{})
	require.NoError(t, err)

	state, err := sessions.Load(t.Context(), started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.HepaticNormal, state.HepaticStage)
}

func TestNewLiteServer_RejectsNonPositiveToolTimeout(t *testing.T) {
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()

	_, err := NewLiteServer(t.Context(), cfg, WithLogger(discardLogger()), WithToolTimeout(0))

	assert.ErrorContains(t, err, "tool timeout must be positive")
}

func TestToolHandler_TimesOut(t *testing.T) {
	server := newTestServerWith(t, WithToolTimeout(20*time.Millisecond))
	slow := toolHandler(server, "slow_tool", func(ctx context.Context, _ struct{}) (struct{}, error) {
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	})

	result, _, err := slow(t.Context(), nil, struct{}{})

	require.NoError(t, err)
	assert.True(t, result.IsError)
	var mcpErr domain.MCPError
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &mcpErr))
	assert.Equal(t, domain.ErrInternalServer, mcpErr.Code)
	assert.Equal(t, "request timed out", mcpErr.Message)
}

func TestNewLiteServer_InvalidRedisURL(t *testing.T) {
	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.RedisURL = "not-a-url"

	_, err := NewLiteServer(t.Context(), cfg)

	assert.Error(t, err)
}

func TestSearchDrugs(t *testing.T) {
	server := newTestServer(t)

	result, err := server.searchDrugs(t.Context(), SearchDrugsParams{Query: "Vancomycin"})

	require.NoError(t, err)
	require.NotEmpty(t, result.Results)
	first := result.Results[0]
	assert.Equal(t, "vancomycin", first.ID)
	assert.Equal(t, domain.GradeN1, first.RenalGrade)
	require.NotEmpty(t, first.Highlight)
	assert.True(t, first.Highlight[0].Matched)
}

func TestSearchDrugs_Limit(t *testing.T) {
	server := newTestServer(t)

	result, err := server.searchDrugs(t.Context(), SearchDrugsParams{Query: "NSAID", Limit: 2})

	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
}

func TestSearchDrugs_BlankQuery(t *testing.T) {
	server := newTestServer(t)

	_, err := server.searchDrugs(t.Context(), SearchDrugsParams{Query: "   "})

	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestGetDrug(t *testing.T) {
	server := newTestServer(t)

	drug, err := server.getDrug(t.Context(), GetDrugParams{ID: "diazepam"})
	require.NoError(t, err)
	assert.False(t, drug.HasRenalData())

	_, err = server.getDrug(t.Context(), GetDrugParams{ID: "unobtainium"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveDosing(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name      string
		params    ResolveDosingParams
		wantErr   bool
		wantNil   bool
		wantStage string
	}{
		{"hepatic class C", ResolveDosingParams{DrugID: "acetaminophen", Axis: "hepatic", Stage: "C"}, false, false, "C"},
		{"renal at dialysis", ResolveDosingParams{DrugID: "gentamicin", Axis: "renal", Stage: "dialysis"}, false, false, "dialysis"},
		{"blank stage is normal", ResolveDosingParams{DrugID: "gentamicin", Axis: "renal"}, false, false, "normal"},
		{"no renal record", ResolveDosingParams{DrugID: "diazepam", Axis: "renal", Stage: "G4"}, false, true, "G4"},
		{"unknown axis", ResolveDosingParams{DrugID: "diazepam", Axis: "lung", Stage: "G4"}, true, false, ""},
		{"stage from the other axis", ResolveDosingParams{DrugID: "diazepam", Axis: "hepatic", Stage: "G4"}, true, false, ""},
		{"unknown drug", ResolveDosingParams{DrugID: "nope", Axis: "hepatic", Stage: "A"}, true, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := server.resolveDosing(t.Context(), tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStage, result.Stage)
			assert.NotEmpty(t, result.StageLabel)
			if tt.wantNil {
				assert.Nil(t, result.Guidance)
			} else {
				assert.NotNil(t, result.Guidance)
			}
		})
	}
}

func TestAnalyzeRegimen(t *testing.T) {
	server := newTestServer(t)

	result, err := server.analyzeRegimen(t.Context(), AnalyzeRegimenParams{
		DrugIDs:      []string{"vancomycin", "gentamicin", "vancomycin"},
		HepaticStage: "C",
		RenalStage:   "G4",
	})

	require.NoError(t, err)
	analysis := result.Analysis
	assert.Len(t, analysis.Drugs, 2, "repeated ids are analysed once")
	assert.Equal(t, 2, analysis.Renal.GradeCounts["N1"])

	ids := make([]string, 0, len(analysis.Alerts))
	for _, a := range analysis.Alerts {
		ids = append(ids, a.ID)
	}
	assert.Contains(t, ids, "vancomycin_aminoglycoside")
	assert.Contains(t, ids, "hepatorenal_risk")
	assert.Equal(t, domain.LevelInfo1, analysis.Alerts[0].Level)
	assert.Empty(t, result.Report)
}

func TestAnalyzeRegimen_CategoryFilterAndText(t *testing.T) {
	server := newTestServer(t)

	result, err := server.analyzeRegimen(t.Context(), AnalyzeRegimenParams{
		DrugIDs:      []string{"vancomycin", "gentamicin"},
		HepaticStage: "C",
		RenalStage:   "G4",
		Categories:   []string{"combined"},
		Format:       "text",
	})

	require.NoError(t, err)
	require.Len(t, result.Analysis.Alerts, 1)
	assert.Equal(t, "hepatorenal_risk", result.Analysis.Alerts[0].ID)
	assert.Contains(t, result.Report, "Child-Pugh C")
}

func TestAnalyzeRegimen_InvalidInput(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name   string
		params AnalyzeRegimenParams
	}{
		{"bad hepatic stage", AnalyzeRegimenParams{HepaticStage: "G2"}},
		{"bad renal stage", AnalyzeRegimenParams{RenalStage: "C"}},
		{"bad category", AnalyzeRegimenParams{Categories: []string{"lung"}}},
		{"bad format", AnalyzeRegimenParams{Format: "pdf"}},
		{"unknown drug", AnalyzeRegimenParams{DrugIDs: []string{"nope"}}},
		{"bad session id", AnalyzeRegimenParams{SessionID: "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := server.analyzeRegimen(t.Context(), tt.params)
			assert.Error(t, err)
		})
	}
}

func TestAnalyzeRegimen_EmptySelection(t *testing.T) {
	server := newTestServer(t)

	result, err := server.analyzeRegimen(t.Context(), AnalyzeRegimenParams{})

	require.NoError(t, err)
	assert.Zero(t, result.Analysis.Hepatic.Score)
	assert.Zero(t, result.Analysis.Renal.Score)
}

func TestListAlertRules(t *testing.T) {
	server := newTestServer(t)

	all, err := server.listAlertRules(t.Context(), ListAlertRulesParams{})
	require.NoError(t, err)
	assert.Len(t, all.Rules, 27)
	assert.Equal(t, "nsaid_cirrhosis", all.Rules[0].ID)

	hepato, err := server.listAlertRules(t.Context(), ListAlertRulesParams{Category: "hepato"})
	require.NoError(t, err)
	assert.Len(t, hepato.Rules, 12)

	combined, err := server.listAlertRules(t.Context(), ListAlertRulesParams{Category: "combined"})
	require.NoError(t, err)
	require.Len(t, combined.Rules, 1)
	assert.Equal(t, "hepatorenal_risk", combined.Rules[0].ID)

	_, err = server.listAlertRules(t.Context(), ListAlertRulesParams{Category: "lung"})
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	server := newTestServer(t)
	ctx := t.Context()

	// Arrange
	started, err := server.sessionStart(ctx, struct{}{})
	require.NoError(t, err)
	assert.Empty(t, started.DrugIDs)
	assert.Equal(t, domain.HepaticNormal, started.HepaticStage)
	assert.Equal(t, session.AlcoholNone, started.AlcoholHistory)

	// Act
	updated, err := server.sessionUpdate(ctx, SessionUpdateParams{
		SessionID:      started.SessionID,
		AddDrugIDs:     []string{"meropenem", "valproic_acid"},
		HepaticStage:   "B",
		RenalStage:     "G3a",
		AlcoholHistory: "chronic",
	})
	require.NoError(t, err)

	// Assert
	assert.Equal(t, []string{"meropenem", "valproic_acid"}, updated.DrugIDs)
	assert.Equal(t, domain.ChildPughB, updated.HepaticStage)
	assert.Equal(t, domain.CKDG3a, updated.RenalStage)
	assert.Equal(t, session.AlcoholChronic, updated.AlcoholHistory)

	analysis, err := server.analyzeRegimen(ctx, AnalyzeRegimenParams{SessionID: started.SessionID, Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, domain.ChildPughB, analysis.Analysis.HepaticStage)
	assert.Contains(t, analysis.Report, "Alcohol history: chronic")
	require.NotEmpty(t, analysis.Analysis.Alerts)
	assert.Equal(t, "meropenem_valproate", analysis.Analysis.Alerts[0].ID)

	// Stages left blank are not reset.
	removed, err := server.sessionUpdate(ctx, SessionUpdateParams{
		SessionID:     started.SessionID,
		RemoveDrugIDs: []string{"meropenem"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"valproic_acid"}, removed.DrugIDs)
	assert.Equal(t, domain.ChildPughB, removed.HepaticStage)

	ended, err := server.sessionEnd(ctx, SessionParams{SessionID: started.SessionID})
	require.NoError(t, err)
	assert.True(t, ended.Ended)

	_, err = server.sessionGet(ctx, SessionParams{SessionID: started.SessionID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionUpdate_RejectsBadValues(t *testing.T) {
	server := newTestServer(t)
	started, err := server.sessionStart(t.Context(), struct{}{})
	require.NoError(t, err)

	_, err = server.sessionUpdate(t.Context(), SessionUpdateParams{SessionID: started.SessionID, AlcoholHistory: "daily"})
	assert.Error(t, err)

	_, err = server.sessionUpdate(t.Context(), SessionUpdateParams{SessionID: started.SessionID, AddDrugIDs: []string{"nope"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	state, err := server.sessionGet(t.Context(), SessionParams{SessionID: started.SessionID})
	require.NoError(t, err)
	assert.Empty(t, state.DrugIDs, "a failed update leaves the session unchanged")
}

func TestExportData(t *testing.T) {
	server := newTestServer(t)

	result, err := server.exportData(t.Context(), ExportDataParams{})
	require.NoError(t, err)
	assert.Equal(t, 32, result.Drugs)
	assert.Equal(t, 27, result.Rules)

	f, err := os.Open(result.Path)
	require.NoError(t, err)
	defer f.Close()

	var snap store.Snapshot
	require.NoError(t, json.NewDecoder(f).Decode(&snap))
	assert.Len(t, snap.Drugs, 32)
	assert.Len(t, snap.Alerts, 27)
}

func TestToolHandler_ErrorResult(t *testing.T) {
	server := newTestServer(t)
	handler := toolHandler(server, ToolGetDrug, server.getDrug)

	result, out, err := handler(t.Context(), nil, GetDrugParams{ID: "unobtainium"})

	require.NoError(t, err)
	assert.Nil(t, out)
	assert.True(t, result.IsError)

	var mcpErr domain.MCPError
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &mcpErr))
	assert.Equal(t, domain.ErrNotFoundCode, mcpErr.Code)
	assert.NotEmpty(t, mcpErr.RequestID)
}

func TestToolHandler_TextReport(t *testing.T) {
	server := newTestServer(t)
	handler := toolHandler(server, ToolAnalyzeRegimen, server.analyzeRegimen)

	result, _, err := handler(t.Context(), nil, AnalyzeRegimenParams{DrugIDs: []string{"ibuprofen"}, Format: "text"})

	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Ibuprofen")
}

func TestToolHandler_RateLimit(t *testing.T) {
	server := newTestServer(t, func(cfg *config.LiteConfig) { cfg.ToolRate = 0.001 })
	handler := toolHandler(server, ToolListAlertRules, server.listAlertRules)

	first, _, err := handler(context.Background(), nil, ListAlertRulesParams{})
	require.NoError(t, err)
	assert.False(t, first.IsError)

	second, _, err := handler(context.Background(), nil, ListAlertRulesParams{})
	require.NoError(t, err)
	require.True(t, second.IsError)
	assert.Contains(t, resultText(t, second), domain.ErrRateLimit)
}
