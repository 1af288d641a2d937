// Package resolver implements the Field Resolver (C8, spec §4.7): the
// cached -> AI -> pattern layering that produces one job's canonical field
// plan.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/matcher"
	"github.com/formflow/automation/internal/models"
)

// ErrNoFields is returned when the cached, AI, and pattern layers all
// produce empty plans; the pipeline maps this onto failed(no_fields)
// (spec §4.4 "detecting").
var ErrNoFields = errors.New("field resolver: no fields detected by any layer")

const formHTMLBudget = 20000 // generous cap; the AI client truncates further to its own budget

// Resolver implements interfaces.FieldResolver.
type Resolver struct {
	domainStore   interfaces.DomainMappingStore
	analyzers     interfaces.FieldAnalyzerFactory
	provider      string
	patternMatch  interfaces.PatternMatcher
	minConfidence float64
	logger        arbor.ILogger
}

func New(domainStore interfaces.DomainMappingStore, analyzers interfaces.FieldAnalyzerFactory, provider string, minConfidence float64, logger arbor.ILogger) *Resolver {
	return &Resolver{
		domainStore:   domainStore,
		analyzers:     analyzers,
		provider:      provider,
		patternMatch:  matcher.New(),
		minConfidence: minConfidence,
		logger:        logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, domain string, session interfaces.BrowserSession, profileKeys []string) (*interfaces.FieldPlan, error) {
	if mapping, err := r.domainStore.Get(ctx, domain); err != nil {
		return nil, fmt.Errorf("resolve: domain mapping lookup: %w", err)
	} else if mapping != nil && len(mapping.Plan) > 0 {
		r.logger.Debug().Str("domain", domain).Int("entries", len(mapping.Plan)).Msg("field resolver: using cached plan")
		return &interfaces.FieldPlan{Entries: mapping.Plan, Source: models.PlanSourceCached}, nil
	}

	fields, err := session.QueryFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve: query fields: %w", err)
	}
	bySelector := make(map[string]models.FieldDescriptor, len(fields))
	for _, f := range fields {
		bySelector[f.Selector] = f
	}

	if entries, err := r.resolveViaAI(ctx, session, profileKeys, bySelector); err != nil {
		r.logger.Warn().Err(err).Str("domain", domain).Msg("field resolver: AI layer unavailable, falling back to pattern matching")
	} else if len(entries) > 0 {
		r.logger.Debug().Str("domain", domain).Int("entries", len(entries)).Msg("field resolver: using AI plan")
		return &interfaces.FieldPlan{Entries: entries, Source: models.PlanSourceAI}, nil
	}

	entries := r.resolveViaPattern(fields)
	if len(entries) > 0 {
		r.logger.Debug().Str("domain", domain).Int("entries", len(entries)).Msg("field resolver: using pattern plan")
		return &interfaces.FieldPlan{Entries: entries, Source: models.PlanSourcePattern}, nil
	}

	return nil, ErrNoFields
}

func (r *Resolver) resolveViaAI(ctx context.Context, session interfaces.BrowserSession, profileKeys []string, bySelector map[string]models.FieldDescriptor) ([]models.FieldPlanEntry, error) {
	analyzer, err := r.analyzers.Get(r.provider)
	if err != nil {
		return nil, fmt.Errorf("get analyzer: %w", err)
	}

	html, err := session.GetFormHTML(ctx, formHTMLBudget)
	if err != nil {
		return nil, fmt.Errorf("get form html: %w", err)
	}

	result, err := analyzer.AnalyzeFields(ctx, interfaces.FieldAnalyzerRequest{FormHTML: html, CanonicalKeys: profileKeys})
	if err != nil {
		return nil, fmt.Errorf("analyze fields: %w", err)
	}

	entries := make([]models.FieldPlanEntry, 0, len(result.Entries))
	for _, e := range result.Entries {
		if e.Confidence < r.minConfidence {
			r.logger.Debug().Str("selector", e.Selector).Float64("confidence", e.Confidence).Msg("field resolver: discarding AI entry below confidence threshold")
			continue
		}
		e.Handler = handlerFor(e.Selector, bySelector, r.patternMatch)
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Resolver) resolveViaPattern(fields []models.FieldDescriptor) []models.FieldPlanEntry {
	entries := make([]models.FieldPlanEntry, 0, len(fields))
	for _, f := range fields {
		if !f.Visible || f.Disabled || f.Hidden {
			continue
		}
		profileKey, _, handler := r.patternMatch.Match(f)
		if profileKey == "" {
			continue
		}
		entries = append(entries, models.FieldPlanEntry{
			Selector:   f.Selector,
			ProfileKey: profileKey,
			Kind:       classifyKind(f, profileKey),
			Confidence: 1.0,
			Handler:    handler,
		})
	}
	return entries
}

// handlerFor re-derives the special-handler classification for a field the
// AI layer mapped, by selector, against the live field descriptors the
// Browser Capability observed (spec §4.7 "Merging").
func handlerFor(selector string, bySelector map[string]models.FieldDescriptor, pm interfaces.PatternMatcher) models.SpecialHandler {
	f, ok := bySelector[selector]
	if !ok {
		return models.HandlerNone
	}
	_, _, handler := pm.Match(f)
	return handler
}

// classifyKind derives a FieldKind from a raw field descriptor and the
// profile key the Pattern Matcher resolved it to, since pattern matching
// only emits a profile key, not a kind.
func classifyKind(f models.FieldDescriptor, profileKey string) models.FieldKind {
	switch f.Tag {
	case "select":
		return models.FieldKindSelect
	case "button":
		return models.FieldKindSubmit
	}
	switch f.Type {
	case "email":
		return models.FieldKindEmail
	case "password":
		return models.FieldKindPassword
	case "checkbox":
		return models.FieldKindCheckbox
	case "radio":
		return models.FieldKindRadio
	case "submit":
		return models.FieldKindSubmit
	}
	switch profileKey {
	case "dob_day":
		return models.FieldKindDOBDay
	case "dob_month":
		return models.FieldKindDOBMonth
	case "dob_year":
		return models.FieldKindDOBYear
	}
	return models.FieldKindText
}
