package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge/internal/models"
)

// ErrSceneNotFound is returned when a scene lookup matches no row.
var ErrSceneNotFound = errors.New("scene not found")

// CreateScenes inserts all scenes for a story in one transaction so a story
// never ends up with a partial scene list.
func (db *DB) CreateScenes(ctx context.Context, scenes []models.Scene) error {
	if len(scenes) == 0 {
		return fmt.Errorf("no scenes to create")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO scenes (
			id, story_id, scene_index, narration, visual_description,
			planned_duration_seconds
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	for i := range scenes {
		if _, err := tx.ExecContext(
			ctx, query,
			scenes[i].ID, scenes[i].StoryID, scenes[i].SceneIndex,
			scenes[i].Narration, scenes[i].VisualDescription,
			scenes[i].PlannedDurationSeconds,
		); err != nil {
			return fmt.Errorf("failed to insert scene %d: %w", scenes[i].SceneIndex, err)
		}
	}

	return tx.Commit()
}

func (db *DB) GetScenesByStory(ctx context.Context, storyID uuid.UUID) ([]models.Scene, error) {
	query := `
		SELECT
			id, story_id, scene_index, narration, visual_description,
			planned_duration_seconds, audio_path, video_path,
			reference_image_path, strategy, audio_ok, error_message,
			created_at, updated_at
		FROM scenes
		WHERE story_id = $1
		ORDER BY scene_index ASC
	`

	rows, err := db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.Scene
	for rows.Next() {
		var sc models.Scene
		if err := rows.Scan(
			&sc.ID, &sc.StoryID, &sc.SceneIndex, &sc.Narration,
			&sc.VisualDescription, &sc.PlannedDurationSeconds,
			&sc.AudioPath, &sc.VideoPath, &sc.ReferenceImagePath,
			&sc.Strategy, &sc.AudioOK, &sc.ErrorMessage,
			&sc.CreatedAt, &sc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scenes = append(scenes, sc)
	}

	return scenes, nil
}

// GetScene fetches a single scene by story and position.
func (db *DB) GetScene(ctx context.Context, storyID uuid.UUID, sceneIndex int) (*models.Scene, error) {
	query := `
		SELECT
			id, story_id, scene_index, narration, visual_description,
			planned_duration_seconds, audio_path, video_path,
			reference_image_path, strategy, audio_ok, error_message,
			created_at, updated_at
		FROM scenes
		WHERE story_id = $1 AND scene_index = $2
	`

	var sc models.Scene
	err := db.QueryRowContext(ctx, query, storyID, sceneIndex).Scan(
		&sc.ID, &sc.StoryID, &sc.SceneIndex, &sc.Narration,
		&sc.VisualDescription, &sc.PlannedDurationSeconds,
		&sc.AudioPath, &sc.VideoPath, &sc.ReferenceImagePath,
		&sc.Strategy, &sc.AudioOK, &sc.ErrorMessage,
		&sc.CreatedAt, &sc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSceneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scene: %w", err)
	}

	return &sc, nil
}

// UpdateSceneAssets records the generated asset paths and outcome for a scene.
func (db *DB) UpdateSceneAssets(ctx context.Context, scene *models.Scene) error {
	query := `
		UPDATE scenes
		SET audio_path = $1, video_path = $2, reference_image_path = $3,
		    strategy = $4, audio_ok = $5, error_message = $6, updated_at = NOW()
		WHERE id = $7
	`
	_, err := db.ExecContext(
		ctx, query,
		scene.AudioPath, scene.VideoPath, scene.ReferenceImagePath,
		scene.Strategy, scene.AudioOK, scene.ErrorMessage, scene.ID,
	)
	return err
}

func (db *DB) UpdateSceneError(ctx context.Context, sceneID uuid.UUID, errorMessage string) error {
	query := `UPDATE scenes SET error_message = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, errorMessage, sceneID)
	return err
}
