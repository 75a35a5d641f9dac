package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pharmref-mcp-server/internal/domain"
	"github.com/pharmref-mcp-server/internal/metrics"
	"github.com/pharmref-mcp-server/internal/search"
	"github.com/pharmref-mcp-server/internal/service"
	"github.com/pharmref-mcp-server/internal/session"
	"github.com/pharmref-mcp-server/internal/store"
)

const defaultSearchLimit = 20

// SearchDrugsParams defines parameters for the search_drugs tool
type SearchDrugsParams struct {
	Query string `json:"query" jsonschema:"drug name, brand name or class, in English or Korean"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
}

// DrugSummary is one search hit.
type DrugSummary struct {
	ID           string              `json:"id"`
	NameEN       string              `json:"name_en"`
	NameLocal    string              `json:"name_kr"`
	DrugClass    string              `json:"drug_class"`
	HepaticGrade domain.HepaticGrade `json:"hepatic_grade"`
	RenalGrade   domain.RenalGrade   `json:"renal_grade,omitempty"`
	Highlight    []search.Segment    `json:"highlight"`
}

// SearchDrugsResult defines the result structure for the search_drugs tool
type SearchDrugsResult struct {
	Query   string        `json:"query"`
	Results []DrugSummary `json:"results"`
}

// GetDrugParams defines parameters for the get_drug tool
type GetDrugParams struct {
	ID string `json:"id" jsonschema:"drug id, e.g. acetaminophen"`
}

// ResolveDosingParams defines parameters for the resolve_dosing tool
type ResolveDosingParams struct {
	DrugID string `json:"drug_id"`
	Axis   string `json:"axis" jsonschema:"hepatic or renal"`
	Stage  string `json:"stage" jsonschema:"normal, A, B, C for hepatic; normal, G2, G3a, G3b, G4, G5, dialysis for renal"`
}

// ResolveDosingResult defines the result structure for the resolve_dosing tool
type ResolveDosingResult struct {
	DrugID     string                 `json:"drug_id"`
	Axis       domain.Axis            `json:"axis"`
	Stage      string                 `json:"stage"`
	StageLabel string                 `json:"stage_label"`
	Guidance   *domain.DosingGuidance `json:"guidance"`
}

// AnalyzeRegimenParams defines parameters for the analyze_regimen tool.
// When SessionID is set the selection and stages come from the session.
type AnalyzeRegimenParams struct {
	SessionID    string   `json:"session_id,omitempty"`
	DrugIDs      []string `json:"drug_ids,omitempty"`
	HepaticStage string   `json:"hepatic_stage,omitempty"`
	RenalStage   string   `json:"renal_stage,omitempty"`
	Categories   []string `json:"categories,omitempty" jsonschema:"limit alerts to hepato, renal or combined"`
	Format       string   `json:"format,omitempty" jsonschema:"json (default) or text"`
}

// AnalyzeRegimenResult defines the result structure for the analyze_regimen tool
type AnalyzeRegimenResult struct {
	Analysis *domain.AnalysisResult `json:"analysis"`
	Report   string                 `json:"report,omitempty"`
}

// ListAlertRulesParams defines parameters for the list_alert_rules tool
type ListAlertRulesParams struct {
	Category string `json:"category,omitempty" jsonschema:"hepato, renal or combined"`
}

// ListAlertRulesResult defines the result structure for the list_alert_rules tool
type ListAlertRulesResult struct {
	Rules []domain.AlertRule `json:"rules"`
}

// SessionParams identifies a session.
type SessionParams struct {
	SessionID string `json:"session_id"`
}

// SessionUpdateParams defines parameters for the session_update tool.
// Changes apply in field order: clear, remove, add, then stages.
type SessionUpdateParams struct {
	SessionID      string   `json:"session_id"`
	ClearDrugs     bool     `json:"clear_drugs,omitempty"`
	RemoveDrugIDs  []string `json:"remove_drug_ids,omitempty"`
	AddDrugIDs     []string `json:"add_drug_ids,omitempty"`
	HepaticStage   string   `json:"hepatic_stage,omitempty"`
	RenalStage     string   `json:"renal_stage,omitempty"`
	AlcoholHistory string   `json:"alcohol_history,omitempty" jsonschema:"none, social or chronic"`
}

// SessionResult reports a session's state.
type SessionResult struct {
	SessionID      string                 `json:"session_id"`
	DrugIDs        []string               `json:"drug_ids"`
	HepaticStage   domain.HepaticStage    `json:"hepatic_stage"`
	RenalStage     domain.RenalStage      `json:"renal_stage"`
	AlcoholHistory session.AlcoholHistory `json:"alcohol_history"`
}

// SessionEndResult confirms a session was discarded.
type SessionEndResult struct {
	SessionID string `json:"session_id"`
	Ended     bool   `json:"ended"`
}

// ExportDataParams defines parameters for the export_data tool
type ExportDataParams struct{}

// ExportDataResult defines the result structure for the export_data tool
type ExportDataResult struct {
	Path  string `json:"path"`
	Drugs int    `json:"drugs"`
	Rules int    `json:"rules"`
}

func (s *LiteServer) searchDrugs(ctx context.Context, params SearchDrugsParams) (*SearchDrugsResult, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, domain.NewValidationError("query", "is required", params.Query)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	drugs, err := s.store.ListDrugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drugs: %w", err)
	}

	hits := search.Search(drugs, params.Query, limit)
	result := &SearchDrugsResult{Query: params.Query, Results: make([]DrugSummary, 0, len(hits))}
	for i := range hits {
		d := &hits[i]
		summary := DrugSummary{
			ID:           d.ID,
			NameEN:       d.NameEN,
			NameLocal:    d.NameLocal,
			DrugClass:    d.DrugClass,
			HepaticGrade: d.Hepatotoxicity.Grade,
			Highlight:    search.Highlight(d.NameEN, strings.TrimSpace(params.Query)),
		}
		if d.HasRenalData() {
			summary.RenalGrade = d.Nephrotoxicity.Grade
		}
		result.Results = append(result.Results, summary)
	}
	return result, nil
}

func (s *LiteServer) getDrug(ctx context.Context, params GetDrugParams) (*domain.Drug, error) {
	if params.ID == "" {
		return nil, domain.NewValidationError("id", "is required", params.ID)
	}
	return s.store.GetDrug(ctx, params.ID)
}

func (s *LiteServer) resolveDosing(ctx context.Context, params ResolveDosingParams) (*ResolveDosingResult, error) {
	axis := domain.Axis(params.Axis)
	if !axis.IsValid() {
		return nil, domain.NewValidationError("axis", "must be hepatic or renal", params.Axis)
	}

	result := &ResolveDosingResult{DrugID: params.DrugID, Axis: axis}
	switch axis {
	case domain.AxisHepatic:
		stage, err := domain.ParseHepaticStage(params.Stage)
		if err != nil {
			return nil, err
		}
		result.Stage, result.StageLabel = string(stage), domain.HepaticStageLabel(stage)
	case domain.AxisRenal:
		stage, err := domain.ParseRenalStage(params.Stage)
		if err != nil {
			return nil, err
		}
		result.Stage, result.StageLabel = string(stage), domain.RenalStageLabel(stage)
	}

	drug, err := s.getDrug(ctx, GetDrugParams{ID: params.DrugID})
	if err != nil {
		return nil, err
	}
	result.Guidance = service.ResolveDosing(drug, axis, result.Stage)
	return result, nil
}

func (s *LiteServer) analyzeRegimen(ctx context.Context, params AnalyzeRegimenParams) (*AnalyzeRegimenResult, error) {
	categories := make([]domain.AlertCategory, 0, len(params.Categories))
	for _, c := range params.Categories {
		category := domain.AlertCategory(c)
		if !category.IsValid() {
			return nil, domain.NewValidationError("categories", "must be hepato, renal or combined", c)
		}
		categories = append(categories, category)
	}

	var (
		drugs          []domain.Drug
		hepaticStage   domain.HepaticStage
		renalStage     domain.RenalStage
		alcoholHistory session.AlcoholHistory
	)
	if params.SessionID != "" {
		state, err := s.sessions.Get(ctx, params.SessionID)
		if err != nil {
			return nil, err
		}
		drugs, hepaticStage, renalStage, alcoholHistory = state.Drugs, state.HepaticStage, state.RenalStage, state.AlcoholHistory
	} else {
		var err error
		if hepaticStage, err = domain.ParseHepaticStage(params.HepaticStage); err != nil {
			return nil, err
		}
		if renalStage, err = domain.ParseRenalStage(params.RenalStage); err != nil {
			return nil, err
		}
		if drugs, err = s.loadDrugs(ctx, params.DrugIDs); err != nil {
			return nil, err
		}
	}

	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}

	analysis := s.analyzer.Analyze(drugs, hepaticStage, renalStage, rules)

	triggered := make(map[string]string, len(analysis.Alerts))
	for _, a := range analysis.Alerts {
		triggered[a.ID] = string(a.Level)
	}
	metrics.RecordAnalysis(string(hepaticStage), string(renalStage), triggered)

	if len(categories) > 0 {
		analysis.Alerts = service.FilterAlertsByCategory(analysis.Alerts, categories...)
	}

	result := &AnalyzeRegimenResult{Analysis: analysis}
	switch params.Format {
	case "", "json":
	case "text":
		result.Report = service.FormatTextReport(analysis, service.ReportOptions{
			GeneratedAt:    time.Now(),
			AlcoholHistory: string(alcoholHistory),
		})
	default:
		return nil, domain.NewValidationError("format", "must be json or text", params.Format)
	}
	return result, nil
}

// loadDrugs resolves ids in order, dropping repeats.
func (s *LiteServer) loadDrugs(ctx context.Context, ids []string) ([]domain.Drug, error) {
	seen := make(map[string]bool, len(ids))
	drugs := make([]domain.Drug, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		drug, err := s.store.GetDrug(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load drug %q: %w", id, err)
		}
		drugs = append(drugs, *drug)
	}
	return drugs, nil
}

func (s *LiteServer) listAlertRules(ctx context.Context, params ListAlertRulesParams) (*ListAlertRulesResult, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	if params.Category == "" {
		return &ListAlertRulesResult{Rules: rules}, nil
	}

	category := domain.AlertCategory(params.Category)
	if !category.IsValid() {
		return nil, domain.NewValidationError("category", "must be hepato, renal or combined", params.Category)
	}
	filtered := make([]domain.AlertRule, 0, len(rules))
	for _, r := range rules {
		c := r.Category
		if c == "" {
			c = domain.CategoryHepato
		}
		if c == category {
			filtered = append(filtered, r)
		}
	}
	return &ListAlertRulesResult{Rules: filtered}, nil
}

func (s *LiteServer) sessionStart(ctx context.Context, _ struct{}) (*SessionResult, error) {
	id, state, err := s.sessions.Start(ctx)
	if err != nil {
		return nil, err
	}
	return sessionResult(id, state), nil
}

func (s *LiteServer) sessionGet(ctx context.Context, params SessionParams) (*SessionResult, error) {
	state, err := s.sessions.Get(ctx, params.SessionID)
	if err != nil {
		return nil, err
	}
	return sessionResult(params.SessionID, state), nil
}

func (s *LiteServer) sessionUpdate(ctx context.Context, params SessionUpdateParams) (*SessionResult, error) {
	var actions []session.Action
	if params.ClearDrugs {
		actions = append(actions, session.ClearDrugs{})
	}
	for _, id := range params.RemoveDrugIDs {
		actions = append(actions, session.RemoveDrug{ID: id})
	}

	added, err := s.loadDrugs(ctx, params.AddDrugIDs)
	if err != nil {
		return nil, err
	}
	for _, d := range added {
		actions = append(actions, session.AddDrug{Drug: d})
	}

	if params.HepaticStage != "" {
		stage, err := domain.ParseHepaticStage(params.HepaticStage)
		if err != nil {
			return nil, err
		}
		actions = append(actions, session.SetHepaticStage{Stage: stage})
	}
	if params.RenalStage != "" {
		stage, err := domain.ParseRenalStage(params.RenalStage)
		if err != nil {
			return nil, err
		}
		actions = append(actions, session.SetRenalStage{Stage: stage})
	}
	if params.AlcoholHistory != "" {
		history, err := session.ParseAlcoholHistory(params.AlcoholHistory)
		if err != nil {
			return nil, err
		}
		actions = append(actions, session.SetAlcoholHistory{History: history})
	}

	state, err := s.sessions.Apply(ctx, params.SessionID, actions...)
	if err != nil {
		return nil, err
	}
	return sessionResult(params.SessionID, state), nil
}

func (s *LiteServer) sessionEnd(ctx context.Context, params SessionParams) (*SessionEndResult, error) {
	if params.SessionID == "" {
		return nil, domain.NewValidationError("session_id", "is required", params.SessionID)
	}
	if err := s.sessions.End(ctx, params.SessionID); err != nil {
		return nil, err
	}
	return &SessionEndResult{SessionID: params.SessionID, Ended: true}, nil
}

func sessionResult(id string, state session.State) *SessionResult {
	return &SessionResult{
		SessionID:      id,
		DrugIDs:        state.DrugIDs(),
		HepaticStage:   state.HepaticStage,
		RenalStage:     state.RenalStage,
		AlcoholHistory: state.AlcoholHistory,
	}
}

func (s *LiteServer) exportData(ctx context.Context, _ ExportDataParams) (*ExportDataResult, error) {
	now := time.Now()
	path := filepath.Join(s.config.ExportDir(), store.ExportFileName(now))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := store.ExportJSON(ctx, s.store, f, now); err != nil {
		return nil, fmt.Errorf("failed to export data: %w", err)
	}

	drugs, err := s.store.CountDrugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count drugs: %w", err)
	}
	rules, err := s.store.CountRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count rules: %w", err)
	}

	s.logger.WithField("path", path).Info("Exported reference data")
	return &ExportDataResult{Path: path, Drugs: drugs, Rules: rules}, nil
}
