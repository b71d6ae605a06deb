package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"llm-meeting/internal/app"
	"llm-meeting/internal/archive"
	"llm-meeting/internal/carryover"
	"llm-meeting/internal/extract"
	"llm-meeting/internal/meeting"
)

// streamBuffer is the event backlog a slow SSE client may fall behind by
// before events are dropped.
const streamBuffer = 256

// MeetingRequest is the body of POST /api/meetings.
type MeetingRequest struct {
	meeting.Settings
	CarryOverID string `json:"carry_over_id,omitempty"`
}

// healthCheck returns a simple health check response.
// GET /
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "LLM Meeting API",
	})
}

// listMeetings returns archived meetings, newest first.
// GET /api/meetings
func (s *Server) listMeetings(c *gin.Context) {
	meetings, err := s.app.Archive.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list meetings: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, meetings)
}

// getMeeting returns one archived meeting result.
// GET /api/meetings/:id
func (s *Server) getMeeting(c *gin.Context) {
	result, err := s.app.Archive.Get(c.Param("id"))
	if errors.Is(err, archive.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get meeting: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// bindMeeting parses and validates the request, writing a 400 on failure.
func (s *Server) bindMeeting(c *gin.Context) (app.RunRequest, bool) {
	var request MeetingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return app.RunRequest{}, false
	}

	settings := request.Settings
	settings.ApplyDefaults(s.app.Config)
	if err := settings.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return app.RunRequest{}, false
	}
	// Local paths would let callers read arbitrary server files.
	if settings.Document != "" && !extract.IsURL(settings.Document) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_path must be an http(s) URL"})
		return app.RunRequest{}, false
	}
	return app.RunRequest{Settings: settings, CarryOverID: request.CarryOverID}, true
}

// runMeeting holds a meeting and returns the result when it ends.
// POST /api/meetings
func (s *Server) runMeeting(c *gin.Context) {
	req, ok := s.bindMeeting(c)
	if !ok {
		return
	}

	result, err := s.app.Run(c.Request.Context(), req)
	if err != nil {
		c.JSON(carryOverStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// runMeetingStream holds a meeting and streams engine events via SSE,
// ending with {"type":"complete","result":...}.
// POST /api/meetings/stream
func (s *Server) runMeetingStream(c *gin.Context) {
	req, ok := s.bindMeeting(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	type outcome struct {
		result *meeting.Result
		err    error
	}
	obs := meeting.NewChannelObserver(streamBuffer)
	req.Observers = []meeting.Observer{obs}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.app.Run(c.Request.Context(), req)
		obs.Close()
		done <- outcome{result, err}
	}()

	for ev := range obs.Events() {
		s.sendSSEEvent(c, ev)
	}
	out := <-done
	if out.err != nil {
		s.sendSSEError(c, out.err.Error())
		return
	}
	if n := obs.Dropped(); n > 0 {
		s.logger.Warn("stream dropped events", zap.String("meeting_id", out.result.ID), zap.Int64("dropped", n))
	}
	s.sendSSEEvent(c, gin.H{"type": "complete", "result": out.result})
}

// listCarryOvers returns saved carry-overs, newest first.
// GET /api/carryovers?prune=true deletes corrupted files while listing.
func (s *Server) listCarryOvers(c *gin.Context) {
	items, err := s.app.CarryOvers.List(c.Query("prune") == "true")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list carry-overs: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, items)
}

// getCarryOver returns one carry-over record.
// GET /api/carryovers/:id
func (s *Server) getCarryOver(c *gin.Context) {
	id := c.Param("id")
	rec, err := s.app.CarryOvers.Load(id)
	if err != nil {
		c.JSON(carryOverStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "record": rec})
}

// extractDocument fetches a URL and returns its text.
// POST /api/extract - Body: {"source": "https://..."}
func (s *Server) extractDocument(c *gin.Context) {
	var request struct {
		Source string `json:"source" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}
	if !extract.IsURL(request.Source) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source must be an http(s) URL"})
		return
	}

	doc, err := s.app.Extractor.Extract(c.Request.Context(), request.Source)
	switch {
	case errors.Is(err, extract.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{
			"error": fmt.Sprintf("Failed to extract document: %v", err),
		})
	default:
		c.JSON(http.StatusOK, gin.H{"text": doc.Text, "metadata": doc.Metadata})
	}
}

func carryOverStatus(err error) int {
	switch {
	case errors.Is(err, carryover.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, carryover.ErrCorrupted):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendSSEEvent(c *gin.Context, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE event", zap.Error(err))
		return
	}
	_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
	c.Writer.Flush()
}

func (s *Server) sendSSEError(c *gin.Context, message string) {
	s.sendSSEEvent(c, gin.H{"type": "error", "message": message})
}
