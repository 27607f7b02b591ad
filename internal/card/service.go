// Package card manages the cards that own product tables.
package card

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/registry"
	"github.com/rzpsarthak13/cardtable/internal/write"
	"go.uber.org/zap"
)

// Tables drops the cached table of a deleted card.
type Tables interface {
	DeleteTable(ctx context.Context, cardID string) error
}

// Service runs card CRUD against the remote store.
type Service struct {
	store  core.CardStore
	tables Tables
	logger *zap.Logger
}

// NewService creates a card service. tables may be nil.
func NewService(store core.CardStore, tables Tables, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tables: tables, logger: logger.Named("card")}
}

// List returns every card, newest first.
func (s *Service) List(ctx context.Context) ([]core.Card, error) {
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// Get returns one card.
func (s *Service) Get(ctx context.Context, id string) (*core.Card, error) {
	return s.store.CardByID(ctx, id)
}

// Create adds a card after checking its name is set and not taken.
func (s *Service) Create(ctx context.Context, fields core.CardFields) (*core.Card, error) {
	name := ""
	if fields.Name != nil {
		name = *fields.Name
	}
	if err := s.checkName(ctx, name, ""); err != nil {
		return nil, err
	}
	fields = trimFields(fields)

	card, err := s.store.InsertCard(ctx, fields)
	if err != nil {
		s.logger.Error("create card failed", zap.Error(err))
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	s.logger.Info("card created", zap.String("card_id", card.ID), zap.String("name", card.Name))
	return card, nil
}

// Update applies a partial write. A new name is checked against the other cards.
func (s *Service) Update(ctx context.Context, id string, fields core.CardFields) (*core.Card, error) {
	if fields.Empty() {
		return nil, core.ErrNoFields
	}
	if fields.Name != nil {
		if err := s.checkName(ctx, *fields.Name, id); err != nil {
			return nil, err
		}
	}
	fields = trimFields(fields)

	card, err := s.store.UpdateCard(ctx, id, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to update card: %w", err)
	}
	return card, nil
}

// Delete removes the card with its products and drops its table.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteCard(ctx, id); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	if s.tables != nil {
		if err := s.tables.DeleteTable(ctx, id); err != nil && !errors.Is(err, registry.ErrTableNotRegistered) {
			s.logger.Warn("table not dropped", zap.String("card_id", id), zap.Error(err))
		}
	}
	s.logger.Info("card deleted", zap.String("card_id", id))
	return nil
}

func (s *Service) checkName(ctx context.Context, name, excludeID string) error {
	if strings.TrimSpace(name) == "" {
		return write.ErrEmptyName
	}
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cards: %w", err)
	}
	return write.ValidateCardName(name, cards, excludeID)
}

func trimFields(fields core.CardFields) core.CardFields {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		return core.Ptr(strings.TrimSpace(*p))
	}
	return core.CardFields{
		Name:        trim(fields.Name),
		Description: trim(fields.Description),
		ImageURL:    trim(fields.ImageURL),
	}
}
