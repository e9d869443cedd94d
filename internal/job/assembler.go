package job

import (
	"context"
	"fmt"
	"log"

	"github.com/storyforge/storyforge/internal/media"
	"github.com/storyforge/storyforge/internal/models"
	"github.com/storyforge/storyforge/internal/storage"
)

// ArtifactStore is the slice of object storage the assembler needs.
type ArtifactStore interface {
	DownloadToFile(ctx context.Context, storagePath, localPath string) error
	UploadFile(ctx context.Context, storagePath, localPath, contentType string) error
}

// StorageAssembler pulls scene assets down from object storage, stitches them
// locally, and pushes the finished artifact back up.
type StorageAssembler struct {
	store    ArtifactStore
	engine   media.Engine
	stitcher *media.Stitcher
}

var _ Assembler = (*StorageAssembler)(nil)

func NewStorageAssembler(store ArtifactStore, engine media.Engine, stitcher *media.Stitcher) *StorageAssembler {
	return &StorageAssembler{
		store:    store,
		engine:   engine,
		stitcher: stitcher,
	}
}

// Assemble expects only scenes that have a video clip. Scenes without usable
// narration are stitched silent at their planned duration.
func (a *StorageAssembler) Assemble(ctx context.Context, story *models.Story, scenes []models.Scene) (string, float64, error) {
	var clips []media.Clip
	var scratch []string
	defer func() { a.engine.Cleanup(scratch...) }()

	for _, scene := range scenes {
		if scene.VideoPath == nil {
			return "", 0, fmt.Errorf("scene %d has no video clip", scene.SceneIndex)
		}

		localVideo := a.engine.TempPath(fmt.Sprintf("%s_stitch_%d.mp4", story.ID, scene.SceneIndex))
		scratch = append(scratch, localVideo)
		if err := a.store.DownloadToFile(ctx, *scene.VideoPath, localVideo); err != nil {
			return "", 0, fmt.Errorf("scene %d: failed to fetch video: %w", scene.SceneIndex, err)
		}

		localAudio := ""
		if scene.AudioOK && scene.AudioPath != nil {
			localAudio = a.engine.TempPath(fmt.Sprintf("%s_stitch_%d.mp3", story.ID, scene.SceneIndex))
			scratch = append(scratch, localAudio)
			if err := a.store.DownloadToFile(ctx, *scene.AudioPath, localAudio); err != nil {
				return "", 0, fmt.Errorf("scene %d: failed to fetch audio: %w", scene.SceneIndex, err)
			}
		}

		clips = append(clips, media.Clip{
			SceneIndex:             scene.SceneIndex,
			VideoPath:              localVideo,
			AudioPath:              localAudio,
			PlannedDurationSeconds: scene.PlannedDurationSeconds,
		})
	}

	localOut := a.engine.TempPath(fmt.Sprintf("%s_final.mp4", story.ID))
	scratch = append(scratch, localOut)

	totalSeconds, err := a.stitcher.Stitch(ctx, clips, localOut)
	if err != nil {
		return "", 0, err
	}

	artifactPath := storage.SavePath(story.ID, storage.CategoryArtifact, "final.mp4")
	if err := a.store.UploadFile(ctx, artifactPath, localOut, "video/mp4"); err != nil {
		return "", 0, fmt.Errorf("failed to upload final artifact: %w", err)
	}

	log.Printf("[Assemble] story %s: artifact at %s (%.1fs)", story.ID, artifactPath, totalSeconds)
	return artifactPath, totalSeconds, nil
}
