package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge/internal/models"
)

var ErrStoryNotFound = fmt.Errorf("story not found")

func (db *DB) CreateStory(ctx context.Context, story *models.Story) error {
	query := `
		INSERT INTO stories (
			id, prompt, target_duration_seconds, voice, visual_style,
			pacing_profile, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		story.ID, story.Prompt, story.TargetDurationSeconds,
		story.Voice, story.VisualStyle, story.PacingProfile, story.Status,
	).Scan(&story.CreatedAt, &story.UpdatedAt)
}

func (db *DB) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	query := `
		SELECT
			id, prompt, target_duration_seconds, voice, visual_style,
			pacing_profile, status, error_message, artifact_path,
			total_duration_seconds, created_at, updated_at
		FROM stories
		WHERE id = $1
	`

	story := &models.Story{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&story.ID, &story.Prompt, &story.TargetDurationSeconds,
		&story.Voice, &story.VisualStyle, &story.PacingProfile,
		&story.Status, &story.ErrorMessage, &story.ArtifactPath,
		&story.TotalDurationSeconds, &story.CreatedAt, &story.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrStoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}

	return story, nil
}

// ListStories returns story summaries ordered by creation date (newest first).
// Supports optional status filter, limit, and offset for pagination.
func (db *DB) ListStories(ctx context.Context, status string, limit, offset int) ([]models.StorySummary, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `
		SELECT
			s.id, s.prompt, s.target_duration_seconds, s.status,
			s.artifact_path, s.error_message, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM scenes sc WHERE sc.story_id = s.id) AS scene_count
		FROM stories s
	`

	if status != "" {
		query := baseSelect + ` WHERE s.status = $1 ORDER BY s.created_at DESC LIMIT $2 OFFSET $3`
		rows, err = db.QueryContext(ctx, query, status, limit, offset)
	} else {
		query := baseSelect + ` ORDER BY s.created_at DESC LIMIT $1 OFFSET $2`
		rows, err = db.QueryContext(ctx, query, limit, offset)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var stories []models.StorySummary
	for rows.Next() {
		var s models.StorySummary
		if err := rows.Scan(
			&s.ID, &s.Prompt, &s.TargetDurationSeconds, &s.Status,
			&s.ArtifactPath, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt,
			&s.SceneCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		stories = append(stories, s)
	}

	return stories, nil
}

// CountStories returns the total number of stories, optionally filtered by status.
func (db *DB) CountStories(ctx context.Context, status string) (int, error) {
	var count int
	if status != "" {
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories WHERE status = $1`, status).Scan(&count)
		return count, err
	}
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories`).Scan(&count)
	return count, err
}

func (db *DB) UpdateStoryStatus(ctx context.Context, id uuid.UUID, status models.StoryStatus) error {
	query := `UPDATE stories SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

func (db *DB) UpdateStoryError(ctx context.Context, id uuid.UUID, status models.StoryStatus, errorMessage string) error {
	query := `
		UPDATE stories
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, status, errorMessage, id)
	return err
}

// SetStoryArtifact records the final video and its duration, moving the story
// into its terminal status (completed or partial).
func (db *DB) SetStoryArtifact(ctx context.Context, id uuid.UUID, status models.StoryStatus, artifactPath string, totalSeconds float64) error {
	query := `
		UPDATE stories
		SET status = $1, artifact_path = $2, total_duration_seconds = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, status, artifactPath, totalSeconds, id)
	return err
}

// DeleteStory removes a story and, via ON DELETE CASCADE, its scenes.
func (db *DB) DeleteStory(ctx context.Context, id uuid.UUID) error {
	result, err := db.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStoryNotFound
	}
	return nil
}
