package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dan9191/balance-planner/internal/config"
	"github.com/Dan9191/balance-planner/internal/metrics"
	"github.com/Dan9191/balance-planner/internal/models"
	"github.com/Dan9191/balance-planner/internal/optimizer"
	"github.com/Dan9191/balance-planner/internal/regenerator"
	"github.com/Dan9191/balance-planner/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Login and ParseToken
var ErrInvalidCredentials = errors.New("invalid credentials")

// KeyRateSource supplies the annual rate for plans that follow the key rate
type KeyRateSource interface {
	GetKeyRate(ctx context.Context) (decimal.Decimal, error)
	Refresh(ctx context.Context) (decimal.Decimal, error)
}

// Notifier delivers run summaries
type Notifier interface {
	SendRunSummary(run *models.RunSummary, warnings []string) error
}

type session struct {
	regen    *regenerator.Regenerator
	lastSeen time.Time
}

// Service maps authenticated callers onto planning sessions and records what they run
type Service struct {
	runs      repository.RunRepository
	rates     KeyRateSource
	notifier  Notifier
	optimizer *optimizer.Optimizer
	log       *logrus.Logger
	config    *config.Config
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewService initializes a new service. rates and notifier may be nil.
func NewService(runs repository.RunRepository, rates KeyRateSource, notifier Notifier, opt *optimizer.Optimizer, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{
		runs:      runs,
		rates:     rates,
		notifier:  notifier,
		optimizer: opt,
		log:       log,
		config:    cfg,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

// Login checks the operator credentials and returns a JWT whose id names a fresh planning session
func (s *Service) Login(creds models.Credentials) (string, error) {
	if creds.Username != s.config.OperatorUsername {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.OperatorPasswordHash), []byte(creds.Password)); err != nil {
		return "", ErrInvalidCredentials
	}

	sessionID := uuid.NewString()
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   creds.Username,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenExpiry)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.WithField("session_id", sessionID).Infof("User logged in: %s", creds.Username)
	return tokenString, nil
}

// ParseToken validates a bearer token and returns its session id
func (s *Service) ParseToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.ID == "" {
		return "", fmt.Errorf("%w: token has no session", ErrInvalidCredentials)
	}
	return claims.ID, nil
}

// session returns the planning session for an id, creating it on first use
func (s *Service) session(id string) *regenerator.Regenerator {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{regen: regenerator.New(s.optimizer, s.log)}
		s.sessions[id] = sess
		metrics.ActiveSessions.Inc()
	}
	sess.lastSeen = s.now()
	return sess.regen
}

// EvictIdle drops sessions untouched for longer than the session TTL, skipping any with a run in flight
func (s *Service) EvictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.config.SessionTTL)
	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) && !sess.regen.Running() {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.ActiveSessions.Sub(float64(evicted))
		s.log.Infof("Evicted %d idle sessions", evicted)
	}
	return evicted
}

// Optimize runs a fresh optimization for the session
func (s *Service) Optimize(ctx context.Context, sessionID string, cfg models.OptimizationConfig) (*models.ScheduleResult, error) {
	if cfg.UseKeyRate {
		rate, err := s.KeyRate(ctx)
		if err != nil {
			return nil, err
		}
		cfg.AnnualRate = rate
	}

	regen := s.session(sessionID)
	started := s.now()
	res, err := regen.RunOptimization(ctx, cfg)
	s.finish(ctx, sessionID, models.RunKindOptimize, regen, res, 0, started, err)
	return res, err
}

// Regenerate re-runs the session's last optimization with its edits pinned
func (s *Service) Regenerate(ctx context.Context, sessionID string) (*models.ScheduleResult, error) {
	regen := s.session(sessionID)
	started := s.now()
	res, err := regen.RegenerateWithEdits(ctx)
	s.finish(ctx, sessionID, models.RunKindRegenerate, regen, res, len(regen.EditedCells()), started, err)
	return res, err
}

// RecordEdit stores a cell edit in the session
func (s *Service) RecordEdit(sessionID string, req models.EditRequest) (models.EditedCell, error) {
	if req.Value == nil {
		return models.EditedCell{}, &models.ConfigurationError{Field: "value", Reason: "is required"}
	}
	cell, err := s.session(sessionID).RecordEdit(req.Day, models.Field(req.Field), *req.Value)
	result := "accepted"
	if err != nil {
		result = "rejected"
	}
	metrics.EditsRecorded.WithLabelValues(req.Field, result).Inc()
	return cell, err
}

// Edits returns the session's stored edits
func (s *Service) Edits(sessionID string) []models.EditedCell {
	return s.session(sessionID).EditedCells()
}

// ClearEdits drops the session's stored edits
func (s *Service) ClearEdits(sessionID string) {
	s.session(sessionID).ClearEdits()
	s.log.WithField("session_id", sessionID).Info("Edits cleared")
}

// Current returns the session's latest schedule
func (s *Service) Current(sessionID string) (*models.ScheduleResult, error) {
	res := s.session(sessionID).Current()
	if res == nil {
		return nil, models.ErrNoSchedule
	}
	return res, nil
}

// LastConfig returns the config of the session's last optimization
func (s *Service) LastConfig(sessionID string) (models.OptimizationConfig, error) {
	cfg, ok := s.session(sessionID).LastOptimizationConfig()
	if !ok {
		return models.OptimizationConfig{}, models.ErrNoConfig
	}
	return cfg, nil
}

// Progress returns the state of the session's active or last run
func (s *Service) Progress(sessionID string) models.Progress {
	return s.session(sessionID).Progress()
}

// Cancel aborts the session's active run
func (s *Service) Cancel(sessionID string) error {
	if !s.session(sessionID).Cancel() {
		return &models.StateError{Reason: "no run in progress"}
	}
	s.log.WithField("session_id", sessionID).Info("Run cancelled")
	return nil
}

// History returns the session's completed runs, newest first
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]models.RunSummary, error) {
	runs, err := s.runs.ListRuns(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}
	return runs, nil
}

// KeyRate returns the current annual key rate in percent
func (s *Service) KeyRate(ctx context.Context) (decimal.Decimal, error) {
	if s.rates == nil {
		return decimal.Zero, &models.ConfigurationError{Field: "use_key_rate", Reason: "no key rate source is configured"}
	}
	rate, err := s.rates.GetKeyRate(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get key rate: %w", err)
	}
	return rate, nil
}

// RefreshKeyRate forces a fetch of the key rate into the cache
func (s *Service) RefreshKeyRate(ctx context.Context) error {
	if s.rates == nil {
		return nil
	}
	if _, err := s.rates.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh key rate: %w", err)
	}
	return nil
}

// finish records metrics, history and notifications for a completed run
func (s *Service) finish(ctx context.Context, sessionID string, kind models.RunKind, regen *regenerator.Regenerator, res *models.ScheduleResult, editCount int, started time.Time, runErr error) {
	elapsed := s.now().Sub(started)
	feasible := res != nil && res.Feasible
	metrics.RunsTotal.WithLabelValues(string(kind), metrics.Outcome(feasible, runErr)).Inc()
	if runErr != nil {
		s.log.WithError(runErr).WithFields(logrus.Fields{"session_id": sessionID, "kind": kind}).Warn("Run failed")
		return
	}
	metrics.RunDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	metrics.RunGenerations.Observe(float64(res.Generations))

	cfg, _ := regen.LastOptimizationConfig()
	summary := &models.RunSummary{
		ID:           res.RunID,
		SessionID:    sessionID,
		Kind:         kind,
		Config:       cfg,
		Fitness:      res.Fitness,
		Feasible:     res.Feasible,
		FinalBalance: res.FinalBalance,
		EditCount:    editCount,
		Generations:  res.Generations,
		Duration:     elapsed,
	}
	if err := s.runs.SaveRun(ctx, summary); err != nil {
		s.log.WithError(err).WithField("run_id", res.RunID).Error("Failed to save run")
	}

	if s.notifier != nil && (!res.Feasible || s.config.NotifyAll) {
		warnings := res.Warnings
		go func() {
			if err := s.notifier.SendRunSummary(summary, warnings); err != nil {
				s.log.WithError(err).WithField("run_id", summary.ID).Error("Failed to send run summary")
			}
		}()
	}
}
