package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vocalq/outbound/internal/store"
	"github.com/vocalq/outbound/pkg/telephony"
)

// defaultListLimit caps call history pages unless the client asks otherwise.
const defaultListLimit = 100

// listCalls returns call history, newest first. Transcripts are omitted from
// list responses; fetch a single call for the full record.
func (s *Server) listCalls(c *gin.Context) {
	skip, err := intQuery(c, "skip", 0)
	if err != nil {
		errorDetail(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intQuery(c, "limit", defaultListLimit)
	if err != nil {
		errorDetail(c, http.StatusBadRequest, err.Error())
		return
	}

	calls, err := s.cfg.Calls.ListCalls(c.Request.Context(), store.ListCallsOpts{
		Status: c.Query("status"),
		Offset: skip,
		Limit:  limit,
	})
	if err != nil {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, withoutTranscripts(calls))
}

func (s *Server) activeCalls(c *gin.Context) {
	calls, err := s.cfg.Calls.ListCalls(c.Request.Context(), store.ListCallsOpts{Status: store.CallActive})
	if err != nil {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, withoutTranscripts(calls))
}

func (s *Server) getCall(c *gin.Context) {
	call, err := s.cfg.Calls.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if call == nil {
		errorDetail(c, http.StatusNotFound, "Call not found")
		return
	}
	c.JSON(http.StatusOK, call)
}

// missedStatuses are terminal call statuses that count as missed in the
// analytics rollup.
var missedStatuses = map[string]bool{
	"missed":    true,
	"dropped":   true,
	"no-answer": true,
}

type hourBucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// callAnalytics aggregates the full call history into the dashboard rollup:
// totals, average duration, intent distribution and per-hour call volume.
func (s *Server) callAnalytics(c *gin.Context) {
	calls, err := s.cfg.Calls.ListCalls(c.Request.Context(), store.ListCallsOpts{})
	if err != nil {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}

	var completed, missed int
	var durationSum, durationCount int
	intents := make(map[string]int)
	byHour := make([]hourBucket, 24)
	for h := range byHour {
		byHour[h].Name = hourLabel(h)
	}

	for _, call := range calls {
		switch {
		case call.Status == store.CallCompleted:
			completed++
		case missedStatuses[call.Status]:
			missed++
		}
		if call.Duration > 0 {
			durationSum += call.Duration
			durationCount++
		}
		if call.Intent != "" {
			intents[call.Intent]++
		}
		byHour[call.StartTime.Hour()].Value++
	}

	var avgDuration float64
	if durationCount > 0 {
		avgDuration = float64(durationSum) / float64(durationCount)
	}

	c.JSON(http.StatusOK, gin.H{
		"total_calls":         len(calls),
		"completed_calls":     completed,
		"missed_calls":        missed,
		"avg_duration":        avgDuration,
		"intent_distribution": intents,
		"calls_by_hour":       byHour,
	})
}

// twilioWebhook answers the carrier's voice callback with TwiML that connects
// the answered call to the media stream endpoint. The queue id and attempt
// count ride along as stream parameters so the bridge can tie the stream back
// to its queue item.
func (s *Server) twilioWebhook(c *gin.Context) {
	attempt := c.Query("attempt_count")
	if attempt == "" {
		attempt = "1"
	}

	wsURL := fmt.Sprintf("%s://%s/api/v1/stream", wsScheme(c), c.Request.Host)
	twiml, err := telephony.StreamTwiML(wsURL, []telephony.StreamParameter{
		{Name: "callerNumber", Value: c.PostForm("From")},
		{Name: "queueId", Value: c.Query("queue_id")},
		{Name: "attemptCount", Value: attempt},
	})
	if err != nil {
		errorDetail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}

// wsScheme picks ws or wss for the stream URL. TLS termination usually
// happens at a tunnel or proxy in front of the service, so the forwarded
// proto header and the well-known tunnel hostnames decide.
func wsScheme(c *gin.Context) string {
	if c.GetHeader("X-Forwarded-Proto") == "https" {
		return "wss"
	}
	host := c.Request.Host
	if strings.Contains(host, ".ngrok") || strings.Contains(host, ".loca.lt") || strings.Contains(host, "serveo") {
		return "wss"
	}
	return "ws"
}

func withoutTranscripts(calls []store.CallRecord) []store.CallRecord {
	out := make([]store.CallRecord, len(calls))
	for i, call := range calls {
		call.Transcript = nil
		out[i] = call
	}
	return out
}

func hourLabel(hour int) string {
	suffix := "am"
	if hour >= 12 {
		suffix = "pm"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d%s", h, suffix)
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return n, nil
}
