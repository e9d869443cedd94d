package media

import "fmt"

// ---------------------------------------------------------------------------
// Ken Burns motion effects for still-image fallback clips. Each clip gets a
// pan/zoom combined with a subtle breathing pulse.
// ---------------------------------------------------------------------------

type ClipEffect string

const (
	EffectZoomIn         ClipEffect = "zoom_in"
	EffectZoomOut        ClipEffect = "zoom_out"
	EffectPanDown        ClipEffect = "pan_down"
	EffectPanUp          ClipEffect = "pan_up"
	EffectPanLeft        ClipEffect = "pan_left"
	EffectPanRight       ClipEffect = "pan_right"
	EffectZoomInPanUp    ClipEffect = "zoom_in_pan_up"
	EffectZoomInPanDown  ClipEffect = "zoom_in_pan_down"
	EffectZoomInPanLeft  ClipEffect = "zoom_in_pan_left"
	EffectZoomInPanRight ClipEffect = "zoom_in_pan_right"
)

var allEffects = []ClipEffect{
	EffectZoomIn,
	EffectZoomOut,
	EffectPanDown,
	EffectPanUp,
	EffectPanLeft,
	EffectPanRight,
	EffectZoomInPanUp,
	EffectZoomInPanDown,
	EffectZoomInPanLeft,
	EffectZoomInPanRight,
}

// EffectForScene picks the motion effect for a scene by its index, so a rerun
// of the same story produces identical clips.
func EffectForScene(sceneIndex int) ClipEffect {
	if sceneIndex < 0 {
		sceneIndex = -sceneIndex
	}
	return allEffects[sceneIndex%len(allEffects)]
}

// Output rendering constants — portrait 1080x1920 at 30fps.
const (
	outputWidth  = 1080
	outputHeight = 1920
	videoFPS     = 30

	// Breathing pulse: a subtle zoom oscillation layered on the primary motion.
	// ±3% amplitude at ~0.12 rad/frame, roughly one full breath every 2 seconds.
	breathAmplitude = 0.03
	breathFrequency = 0.12
)

// buildMotionFilter constructs the zoompan filter chain for an effect.
// durationMs sizes the frame count; a 2-second buffer is added so zoompan
// always produces enough frames before -t cuts the clip to length.
func buildMotionFilter(effect ClipEffect, durationMs int) string {
	totalFrames := (durationMs * videoFPS / 1000) + videoFPS*2
	if totalFrames < videoFPS {
		totalFrames = videoFPS
	}

	breathExpr := fmt.Sprintf("%.3f*sin(on*%.3f)", breathAmplitude, breathFrequency)

	var zExpr, xExpr, yExpr string

	switch effect {

	case EffectZoomIn:
		// 1.0 → 1.5 centered push-in
		zExpr = fmt.Sprintf("1.0+0.5*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectZoomOut:
		// 1.5 → 1.0 centered reveal
		zExpr = fmt.Sprintf("1.5-0.5*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectPanDown:
		zExpr = fmt.Sprintf("1.3+%s", breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("(ih-ih/zoom)*on/%d", totalFrames)

	case EffectPanUp:
		zExpr = fmt.Sprintf("1.3+%s", breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("(ih-ih/zoom)*(1-on/%d)", totalFrames)

	case EffectPanRight:
		zExpr = fmt.Sprintf("1.3+%s", breathExpr)
		xExpr = fmt.Sprintf("(iw-iw/zoom)*on/%d", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectPanLeft:
		zExpr = fmt.Sprintf("1.3+%s", breathExpr)
		xExpr = fmt.Sprintf("(iw-iw/zoom)*(1-on/%d)", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectZoomInPanUp:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("max(0,(ih-ih/zoom)*(1-on/%d))", totalFrames)

	case EffectZoomInPanDown:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = fmt.Sprintf("min(ih-ih/zoom,(ih-ih/zoom)*on/%d)", totalFrames)

	case EffectZoomInPanRight:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = fmt.Sprintf("min(iw-iw/zoom,(iw-iw/zoom)*on/%d)", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	case EffectZoomInPanLeft:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = fmt.Sprintf("max(0,(iw-iw/zoom)*(1-on/%d))", totalFrames)
		yExpr = "ih/2-(ih/zoom/2)"

	default:
		zExpr = fmt.Sprintf("1.0+0.4*on/%d+%s", totalFrames, breathExpr)
		xExpr = "iw/2-(iw/zoom/2)"
		yExpr = "ih/2-(ih/zoom/2)"
	}

	return fmt.Sprintf(
		"zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		zExpr, xExpr, yExpr,
		totalFrames,
		outputWidth, outputHeight,
		videoFPS,
	)
}
