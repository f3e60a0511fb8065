package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bracketops/matchday/broadcast"
	"github.com/bracketops/matchday/models"
	"github.com/bracketops/matchday/repositories"
	"github.com/bracketops/matchday/storage"
)

// RecordService owns audit trail persistence. Storing is awaited so records
// land in order before an operation reports success; the websocket broadcast
// and any archive export are best-effort extras that may fail independently
// without affecting match state.
type RecordService interface {
	StoreAndBroadcast(ctx context.Context, record *models.Record) error
	StoreAndBroadcastBatch(ctx context.Context, records []*models.Record) error

	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Record, error)
	ArchiveTournament(ctx context.Context, tournamentID int) (*storage.PutResult, error)
}

type recordService struct {
	recordRepo     repositories.RecordRepository
	tournamentRepo repositories.TournamentRepository
	hub            *broadcast.Hub
	store          storage.ObjectStore
	logger         *slog.Logger
}

func NewRecordService(
	recordRepo repositories.RecordRepository,
	tournamentRepo repositories.TournamentRepository,
	hub *broadcast.Hub,
	store storage.ObjectStore,
	logger *slog.Logger,
) RecordService {
	return &recordService{
		recordRepo:     recordRepo,
		tournamentRepo: tournamentRepo,
		hub:            hub,
		store:          store,
		logger:         logger,
	}
}

func (s *recordService) StoreAndBroadcast(ctx context.Context, record *models.Record) error {
	if err := s.recordRepo.Create(ctx, nil, record); err != nil {
		return fmt.Errorf("failed to store %s record: %w", record.Type, err)
	}
	s.broadcast(record)
	return nil
}

func (s *recordService) StoreAndBroadcastBatch(ctx context.Context, records []*models.Record) error {
	if err := s.recordRepo.CreateBatch(ctx, nil, records); err != nil {
		return fmt.Errorf("failed to store record batch: %w", err)
	}
	for _, record := range records {
		s.broadcast(record)
	}
	return nil
}

func (s *recordService) broadcast(record *models.Record) {
	room := strconv.Itoa(record.TournamentID)
	s.hub.BroadcastToRoom(room, broadcast.Message{
		Type:    broadcast.TypeRecordAppended,
		Payload: record,
	})
	if record.MatchID != nil {
		s.hub.BroadcastToRoom(room, broadcast.Message{
			Type: broadcast.TypeMatchUpdated,
			Payload: map[string]any{
				"match_id": *record.MatchID,
				"action":   record.Type,
			},
		})
	}
}

func (s *recordService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Record, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return s.recordRepo.ListByTournament(ctx, nil, tournamentID)
}

// ArchiveTournament exports a tournament's full audit trail to object
// storage as one JSON Lines object and returns where it landed.
func (s *recordService) ArchiveTournament(ctx context.Context, tournamentID int) (*storage.PutResult, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	records, err := s.recordRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecordArchiveFailed, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRecordArchiveFailed, err)
		}
	}

	key := fmt.Sprintf("audit/%s/records-%s.jsonl", tournament.Slug, time.Now().UTC().Format("20060102T150405Z"))
	result, err := s.store.Put(ctx, key, "application/x-ndjson", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecordArchiveFailed, err)
	}

	s.logger.InfoContext(ctx, "audit archive exported",
		slog.Int("tournament_id", tournamentID),
		slog.String("key", result.Key),
		slog.Int("records", len(records)))
	return result, nil
}
