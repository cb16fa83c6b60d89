package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/flowbridge/internal/dialogflow"
	"github.com/soyeahso/flowbridge/internal/domain"
	"github.com/soyeahso/flowbridge/internal/logging"
)

// SideEffects runs the best-effort work that follows a reply: syncing
// visitor fields from response parameters and triggering handover.
type SideEffects struct {
	visitors   domain.VisitorDirectory
	handover   domain.Handover
	department string
	timeout    time.Duration
	log        *logging.Logger

	wg sync.WaitGroup
}

// SideEffectsConfig tunes SideEffects.
type SideEffectsConfig struct {
	DefaultDepartment string
	Timeout           time.Duration
}

// NewSideEffects creates the pipeline. handover may be nil to disable handover.
func NewSideEffects(visitors domain.VisitorDirectory, handover domain.Handover, cfg SideEffectsConfig, log *logging.Logger) *SideEffects {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SideEffects{
		visitors:   visitors,
		handover:   handover,
		department: cfg.DefaultDepartment,
		timeout:    timeout,
		log:        log.Sub("sideeffects"),
	}
}

// Apply starts field sync and handover for res and returns immediately.
// The work outlives ctx's cancellation but keeps its values.
func (s *SideEffects) Apply(ctx context.Context, res *dialogflow.Result, sessionID, visitorToken string) {
	if res == nil {
		return
	}
	detached := context.WithoutCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()
		s.syncFields(ctx, res.Parameters, sessionID, visitorToken)
	}()
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()
		s.triggerHandover(ctx, res.Handover, sessionID, visitorToken)
	}()
}

// Wait blocks until every dispatched side effect has finished.
func (s *SideEffects) Wait() {
	s.wg.Wait()
}

func (s *SideEffects) syncFields(ctx context.Context, params map[string]any, sessionID, token string) {
	if s.visitors == nil || token == "" || len(params) == 0 {
		return
	}
	log := s.log.With("sessionId", sessionID)

	visitor, err := s.visitors.GetVisitorByToken(ctx, token)
	if errors.Is(err, domain.ErrVisitorNotFound) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("field sync: visitor lookup failed")
		return
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if visitor.HasField(k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, key := range keys {
		value, err := fieldString(params[key])
		if err != nil {
			log.Warn().Err(err).Str("field", key).Msg("field sync: unencodable value")
			continue
		}
		// Unfilled intent parameters arrive as "" and must not blank the profile.
		if value == "" {
			continue
		}
		if err := s.visitors.SetCustomField(ctx, token, key, value, true); err != nil {
			log.Warn().Err(err).Str("field", key).Msg("field sync: update failed")
			continue
		}
		log.Debug().Str("field", key).Msg("visitor field synced")
	}
}

func (s *SideEffects) triggerHandover(ctx context.Context, signal any, sessionID, token string) {
	if s.handover == nil {
		return
	}
	department, ok := HandoverDepartment(signal, s.department)
	if !ok {
		return
	}
	if err := s.handover.PerformHandover(ctx, sessionID, token, department); err != nil {
		s.log.Error().Err(err).Str("sessionId", sessionID).Str("department", department).Msg("handover failed")
		return
	}
	s.log.Info().Str("sessionId", sessionID).Str("department", department).Msg("handover requested by agent")
}

// HandoverDepartment interprets a handover parameter. Truthy values are
// true, non-zero numbers, and non-empty strings other than "false" and "0".
// A string other than "true" names the target department; everything else
// uses fallback.
func HandoverDepartment(signal any, fallback string) (string, bool) {
	switch v := signal.(type) {
	case bool:
		return fallback, v
	case string:
		s := strings.TrimSpace(v)
		switch strings.ToLower(s) {
		case "", "false", "0":
			return "", false
		case "true", "1":
			return fallback, true
		}
		return s, true
	case json.Number:
		f, err := v.Float64()
		return fallback, err == nil && f != 0
	case float64:
		return fallback, v != 0
	case int:
		return fallback, v != 0
	default:
		return "", false
	}
}
