package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"personabot/internal/models"
)

// Service persists user profiles, action logs, and flow results.
type Service struct {
	db *sql.DB
}

// NewService builds a record service over an opened database.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetOrCreateUser resolves the transport's external user id to a profile,
// creating it on first contact and refreshing names on later ones.
func (s *Service) GetOrCreateUser(ctx context.Context, externalID int64, username, firstName, lastName string) (*models.User, error) {
	if externalID <= 0 {
		return nil, errors.New("invalid external user id")
	}

	now := time.Now().UTC()
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, username, first_name, last_name, created_at, updated_at
		 FROM users WHERE external_id = ?`, externalID,
	).Scan(&user.ID, &user.ExternalID, &user.Username, &user.FirstName, &user.LastName, &user.CreatedAt, &user.UpdatedAt)
	if err == nil {
		if username != "" || firstName != "" || lastName != "" {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE users SET username = ?, first_name = ?, last_name = ?, updated_at = ? WHERE id = ?`,
				username, firstName, lastName, now, user.ID,
			); err != nil {
				return nil, fmt.Errorf("update user: %w", err)
			}
			user.Username, user.FirstName, user.LastName, user.UpdatedAt = username, firstName, lastName, now
		}
		return &user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query user: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (external_id, username, first_name, last_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		externalID, username, firstName, lastName, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &models.User{
		ID:         id,
		ExternalID: externalID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// LogAction records a user action. Callers treat failures as non-fatal.
func (s *Service) LogAction(ctx context.Context, userID int64, action, details string) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return errors.New("action is required")
	}
	var det sql.NullString
	if details != "" {
		det = sql.NullString{String: details, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO user_logs (user_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		userID, action, det, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

// SaveTestResult stores a completed assessment payload as JSON.
func (s *Service) SaveTestResult(ctx context.Context, userID int64, testType string, payload any) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode test result: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO test_results (user_id, test_type, result_data, completed_at) VALUES (?, ?, ?, ?)`,
		userID, testType, string(data), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert test result: %w", err)
	}
	return nil
}

// SaveAnalysis stores a completed media analysis payload as JSON.
func (s *Service) SaveAnalysis(ctx context.Context, userID int64, mediaKind models.MediaKind, mediaRef string, payload any) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_analyses (user_id, media_kind, media_ref, result_data, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, string(mediaKind), mediaRef, string(data), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}
