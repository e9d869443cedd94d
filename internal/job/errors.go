package job

import "fmt"

// ScriptGenerationError means the storyboard could not be produced at all.
// It is terminal for the story.
type ScriptGenerationError struct {
	Err error
}

func (e *ScriptGenerationError) Error() string {
	return fmt.Sprintf("script generation failed: %v", e.Err)
}

func (e *ScriptGenerationError) Unwrap() error { return e.Err }

// SceneAssetError means one scene exhausted every generation path. It is
// recorded per scene and never terminal on its own.
type SceneAssetError struct {
	SceneIndex int
	Err        error
}

func (e *SceneAssetError) Error() string {
	return fmt.Sprintf("scene %d asset generation failed: %v", e.SceneIndex, e.Err)
}

func (e *SceneAssetError) Unwrap() error { return e.Err }

// StitchError means final assembly failed. Terminal; no artifact is kept.
type StitchError struct {
	Err error
}

func (e *StitchError) Error() string {
	return fmt.Sprintf("stitch failed: %v", e.Err)
}

func (e *StitchError) Unwrap() error { return e.Err }
