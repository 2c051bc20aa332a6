package services

import (
	"context"
	"strings"

	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/internal/repository"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/google/uuid"
)

// ScoredLead is a persisted lead with its motivation score and offer path
type ScoredLead struct {
	Lead     *models.Lead        `json:"lead"`
	Score    models.LeadScore    `json:"score"`
	Priority models.LeadPriority `json:"priority"`
}

// LeadService scores and routes seller leads
type LeadService struct {
	repos  *repository.Repositories
	engine *engineRef
	clock  clock.Clock
}

func newLeadService(repos *repository.Repositories, ref *engineRef, clk clock.Clock) *LeadService {
	return &LeadService{repos: repos, engine: ref, clock: clk}
}

// Route maps a lead score to its offer path
func Route(score int, rules config.LeadRules) models.LeadPriority {
	switch {
	case score >= rules.HighScoreThreshold:
		return models.PriorityImmediate
	case score >= rules.MediumScoreThreshold:
		return models.PriorityDelayed
	}
	return models.PriorityNurture
}

// Score rates a lead without storing it
func (s *LeadService) Score(lead models.Lead) ScoredLead {
	eng := s.engine.get()
	score := eng.leads.Score(lead)
	return ScoredLead{Lead: &lead, Score: score, Priority: Route(score.Score, eng.rules.Lead)}
}

// Submit validates, scores and stores a new lead
func (s *LeadService) Submit(ctx context.Context, lead models.Lead) (*ScoredLead, error) {
	if strings.TrimSpace(lead.Name) == "" && strings.TrimSpace(lead.Address) == "" {
		return nil, errors.InvalidInput("lead needs a name or an address", nil).WithOperation("submit_lead")
	}
	if lead.Units < 0 {
		return nil, errors.InvalidInput("units cannot be negative", nil).WithOperation("submit_lead")
	}
	lead.ID = uuid.New()
	lead.CreatedAt = s.clock.Now()

	scored := s.Score(lead)
	if err := s.repos.Leads.Create(ctx, scored.Lead); err != nil {
		return nil, err
	}
	return &scored, nil
}

// Get returns a stored lead rescored against the current rules
func (s *LeadService) Get(ctx context.Context, id uuid.UUID) (*ScoredLead, error) {
	lead, err := s.repos.Leads.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	scored := s.Score(*lead)
	return &scored, nil
}
