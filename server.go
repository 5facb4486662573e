package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"chunkscribe/jobs"
	"chunkscribe/speeches"

	"github.com/gorilla/websocket"
)

type (
	service interface {
		Submit(ctx context.Context, fileName string, body io.Reader) (jobs.Job, error)
		Status(ctx context.Context, jobID string) (jobs.Job, error)
		Result(ctx context.Context, jobID string) ([]speeches.AlignedSegment, error)
	}

	api struct {
		svc service
		bus *jobs.EventBus
	}
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func newHandler(svc service, bus *jobs.EventBus) http.Handler {
	a := api{svc: svc, bus: bus}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.root)
	mux.HandleFunc("POST /upload", a.upload)
	mux.HandleFunc("GET /status/{id}", a.status)
	mux.HandleFunc("GET /download/{id}", a.download)
	mux.HandleFunc("GET /jobs/{id}/events", a.events)
	return mux
}

func (a api) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Audio Transcription API is running"})
}

// upload streams the multipart "file" part straight into the service.
func (a api) upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data upload")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, `missing "file" field`)
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("reading upload: %v", err))
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		job, err := a.svc.Submit(r.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			log.Printf("upload %s: %v", part.FileName(), err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}
}

func (a api) status(w http.ResponseWriter, r *http.Request) {
	job, err := a.svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a api) download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	segments, err := a.svc.Result(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transcript_%s.json"`, id))
	writeJSON(w, http.StatusOK, segments)
}

// events streams job snapshots over a websocket until the job is terminal
// or the client goes away.
func (a api) events(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	seq := a.bus.LastSeq()
	job, err := a.svc.Status(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events %s: upgrade: %v", id, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(e jobs.Event) bool {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(e); err != nil {
			log.Printf("events %s: write: %v", id, err)
			return false
		}
		return !e.Job.IsTerminal()
	}

	if !send(jobs.Event{Seq: seq, Timestamp: time.Now().UTC(), Job: job}) {
		closeNormal(conn)
		return
	}
	for {
		changed := a.bus.Changed()
		for _, e := range a.bus.Since(id, seq) {
			seq = e.Seq
			if !send(e) {
				closeNormal(conn)
				return
			}
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case speeches.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, speeches.ErrNotCompleted):
		writeError(w, http.StatusBadRequest, "Transcription not completed")
	case errors.Is(err, speeches.ErrResultNotFound):
		writeError(w, http.StatusNotFound, "Result file not found")
	default:
		log.Printf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writing response: %v", err)
	}
}
