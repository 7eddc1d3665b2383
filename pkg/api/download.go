package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/wpsteward/steward/pkg/log"
	"github.com/wpsteward/steward/pkg/types"
)

// submitDownloadable serves backup kinds that optionally stream the
// produced artefact back. Without download=true it behaves like any
// other submission; with it the request blocks until the task
// terminates, then the artefact is transferred over a fresh SSH session
// and written as the response body.
func (s *Server) submitDownloadable(kind, resultKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		site, args, email, err := decodeSubmission(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !args.Bool("download", false) {
			s.enqueue(w, kind, site, args, email)
			return
		}

		wait := s.cfg.DownloadWaitTimeout
		if secs := args.Int("wait_timeout", 0); secs > 0 {
			wait = time.Duration(secs) * time.Second
		}

		id, err := s.queue.Submit(kind, site, args, email)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()

		task, err := s.queue.WaitTerminal(ctx, id)
		if errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, http.StatusGatewayTimeout, map[string]any{
				"task_id": id,
				"error":   "timed out waiting for backup to finish",
			})
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if task.State == types.TaskStateFailed {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"task_id": id,
				"state":   task.State,
				"info":    task.Info,
			})
			return
		}

		remotePath, _ := task.Result[resultKey].(string)
		if remotePath == "" {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("task result carries no %s", resultKey))
			return
		}

		rc, err := s.open(r.Context(), &site, remotePath)
		if err != nil {
			writeError(w, http.StatusBadGateway, "artefact transfer failed: "+err.Error())
			return
		}
		defer rc.Close()

		filename := args.String("filename", path.Base(remotePath))
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		if _, err := io.Copy(w, rc); err != nil {
			log.WithTaskID(id).Warn().Err(err).Msg("artefact stream interrupted")
		}
	}
}
