package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/storyforge/storyforge/internal/models"
	"github.com/storyforge/storyforge/internal/progress"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware in front of this.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StoryProgress handles GET /v1/stories/{id}/progress: a WebSocket stream of
// progress events for one story. The connection closes after the terminal
// event is delivered.
func (h *Handler) StoryProgress(w http.ResponseWriter, r *http.Request) {
	storyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid story ID")
		return
	}

	story, err := h.db.GetStory(r.Context(), storyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Story not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed for story %s: %v", storyID, err)
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(storyID)
	defer cancel()

	// Discard client messages but notice disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Snapshot so late subscribers see current state immediately.
	scenes, _ := h.db.GetScenesByStory(r.Context(), storyID)
	snapshot := progress.Event{
		StoryID:  storyID,
		Phase:    string(story.Status),
		Fraction: storyProgress(story.Status, scenes),
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}
	if story.Status.Terminal() {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			if models.StoryStatus(event.Phase).Terminal() {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-clientGone:
			return

		case <-r.Context().Done():
			return
		}
	}
}
