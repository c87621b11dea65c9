package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/tablesift/internal/core"
	"github.com/JonMunkholm/tablesift/internal/logging"
)

// sseHeartbeat keeps idle event streams open through proxies.
const sseHeartbeat = 15 * time.Second

type loadRequest struct {
	Path  string `json:"path"`
	Sheet string `json:"sheet"`
}

type sheetRequest struct {
	Sheet string `json:"sheet"`
}

type sheetsResponse struct {
	Sheets  []string `json:"sheets"`
	Current string   `json:"current,omitempty"`
}

// handleLoad starts loading a file from the server's filesystem.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Path == "" {
		s.respondError(w, r, badRequest(fmt.Errorf("path is required")))
		return
	}

	st, err := s.session.StartLoad(r.Context(), req.Path, req.Sheet)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "load_id", st.LoadID, "path", st.Path).Info("load started")
	writeJSON(w, r, http.StatusAccepted, st)
}

// handleLoadStatus returns the most recent load's status.
func (s *Server) handleLoadStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.LoadStatus()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// handleCancelLoad cancels the in-flight load.
func (s *Server) handleCancelLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.session.CancelLoad(); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleLoadEvents streams the most recent load's progress via Server-Sent
// Events. The event ID is the progress percentage, so a reconnecting client
// sending Last-Event-ID skips progress it has already seen.
func (s *Server) handleLoadEvents(w http.ResponseWriter, r *http.Request) {
	lastEventID := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			lastEventID = n
		}
	}

	ch, unsubscribe, err := s.session.SubscribeLoad()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	sentSheets := false
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return
			}
			if len(st.Sheets) > 0 && !sentSheets {
				writeEvent(w, "sheets", -1, sheetsResponse{Sheets: st.Sheets})
				sentSheets = true
			}
			if name, terminal := eventName(st.Phase); terminal {
				writeEvent(w, name, st.Percent, st)
				flusher.Flush()
				return
			}
			if st.Percent > lastEventID {
				lastEventID = st.Percent
				writeEvent(w, "progress", st.Percent, st)
			}
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func eventName(p core.LoadPhase) (string, bool) {
	switch p {
	case core.PhaseComplete:
		return "loaded", true
	case core.PhaseFailed:
		return "failed", true
	case core.PhaseCancelled:
		return "cancelled", true
	default:
		return "progress", false
	}
}

func writeEvent(w http.ResponseWriter, name string, id int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte("{}")
	}
	if id >= 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

// handleSheets lists the sheets of the loaded workbook.
func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request) {
	sheets, current, err := s.session.Sheets()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if sheets == nil {
		sheets = []string{}
	}
	writeJSON(w, r, http.StatusOK, sheetsResponse{Sheets: sheets, Current: current})
}

// handleSwitchSheet loads another sheet of the current workbook.
func (s *Server) handleSwitchSheet(w http.ResponseWriter, r *http.Request) {
	var req sheetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	st, err := s.session.SwitchSheet(r.Context(), req.Sheet)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, st)
}

// handleUnload drops the loaded table.
func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	s.session.Unload()
	w.WriteHeader(http.StatusNoContent)
}
