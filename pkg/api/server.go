package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wpsteward/steward/pkg/config"
	"github.com/wpsteward/steward/pkg/events"
	"github.com/wpsteward/steward/pkg/log"
	"github.com/wpsteward/steward/pkg/metrics"
	"github.com/wpsteward/steward/pkg/queue"
	"github.com/wpsteward/steward/pkg/registry"
	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/storage"
	"github.com/wpsteward/steward/pkg/types"
)

// VerifyFunc probes a site over SSH and returns the remote uname line.
// Production wires a real session; tests substitute fakes.
type VerifyFunc func(ctx context.Context, site *types.SiteRecord) (string, error)

// ArtifactOpener streams a remote file over a fresh SSH session. The
// returned reader owns the session and closes it with the stream.
type ArtifactOpener func(ctx context.Context, site *types.SiteRecord, remotePath string) (io.ReadCloser, error)

// Server is the HTTP submitter: one endpoint per task kind, plus task
// lookup, session management and operational endpoints.
type Server struct {
	cfg      *config.Config
	queue    *queue.Queue
	sessions *registry.Registry
	broker   *events.Broker

	verify VerifyFunc
	open   ArtifactOpener

	router  *mux.Router
	handler http.Handler
	httpSrv *http.Server
}

// NewServer assembles the HTTP surface around a running queue.
func NewServer(cfg *config.Config, q *queue.Queue, sessions *registry.Registry, broker *events.Broker) *Server {
	s := &Server{
		cfg:      cfg,
		queue:    q,
		sessions: sessions,
		broker:   broker,
	}
	s.verify = s.sshVerify
	s.open = s.sshOpen
	s.router = s.routes()
	// CORS wraps outside the router so preflight OPTIONS requests get
	// their headers even though no route matches them.
	s.handler = s.corsMiddleware(s.router)
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.HandleFunc("/", s.banner).Methods(http.MethodGet)
	r.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/ssh/login", s.sshLogin).Methods(http.MethodPost)
	r.HandleFunc("/sites/{site_id}", s.getSite).Methods(http.MethodGet)

	r.HandleFunc("/tasks/backup", s.submitTask("backup_site")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/backup/db", s.submitDownloadable("backup_db", "db_dump")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/backup/content", s.submitDownloadable("backup_wp_content", "content_tar")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/wp-status", s.submitTask("wp_status")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/update", s.submitTask("update_with_rollback")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/ssl-expiry", s.submitTask("ssl_expiry")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/healthcheck", s.submitTask("healthcheck")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/wp-install/{site_id}", s.wpInstall).Methods(http.MethodPost)
	r.HandleFunc("/tasks/wp-reset", s.resetGate(s.submitTask("wp_reset_sh"))).Methods(http.MethodPost)
	r.HandleFunc("/tasks/domain-ssl-collect", s.submitTask("domain_ssl_collect")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/wp-outdated-fetch", s.submitTask("wp_outdated_fetch")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/wp-update/plugins", s.submitTask("wp_update_plugins")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/wp-update/core", s.submitTask("wp_update_core")).Methods(http.MethodPost)
	r.HandleFunc("/tasks/wp-update/all", s.resetGate(s.submitTask("wp_update_all"))).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{task_id}", s.getTask).Methods(http.MethodGet)

	return r
}

func (s *Server) banner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "steward"})
}

// Router exposes the assembled handler chain, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.handler
}

// Start serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		IdleTimeout:  90 * time.Second,
	}
	log.WithComponent("api").Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// siteFields are the submission keys consumed by the site record itself.
// They are stripped from the handler argument bag so credentials never
// ride along into persisted task arguments.
var siteFields = map[string]bool{
	"host":            true,
	"user":            true,
	"port":            true,
	"key_filename":    true,
	"private_key_pem": true,
	"password":        true,
	"sudo_password":   true,
	"db_pass":         true,
	"report_email":    true,
}

// decodeSubmission splits a request body into the site record, the
// handler argument bag and the report address. The user field is always
// forced to root.
func decodeSubmission(r *http.Request) (types.SiteRecord, types.Args, string, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return types.SiteRecord{}, nil, "", errors.New("invalid JSON body")
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return types.SiteRecord{}, nil, "", err
	}
	var site types.SiteRecord
	if err := json.Unmarshal(raw, &site); err != nil {
		return types.SiteRecord{}, nil, "", errors.New("invalid site record")
	}
	site.User = "root"

	email, _ := body["report_email"].(string)

	args := types.Args{}
	for k, v := range body {
		if !siteFields[k] {
			args[k] = v
		}
	}
	return site, args, email, nil
}

func (s *Server) submitTask(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		site, args, email, err := decodeSubmission(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.enqueue(w, kind, site, args, email)
	}
}

func (s *Server) enqueue(w http.ResponseWriter, kind string, site types.SiteRecord, args types.Args, email string) {
	id, err := s.queue.Submit(kind, site, args, email)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": id, "status": "queued"})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["task_id"]
	task, err := s.queue.Lookup(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"task_id": task.ID, "state": task.State}
	if task.Result != nil {
		resp["result"] = task.Result
	}
	if task.Info != "" {
		resp["info"] = task.Info
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) sshLogin(w http.ResponseWriter, r *http.Request) {
	site, _, _, err := decodeSubmission(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := site.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	uname, err := s.verify(r.Context(), &site)
	if err != nil {
		log.WithHost(site.Host).Warn().Err(err).Msg("ssh verification failed")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"verified": false,
			"error":    err.Error(),
		})
		return
	}

	sess := s.sessions.Add(site, uname)
	if s.broker != nil {
		s.broker.Publish(&events.Event{
			ID:       sess.ID,
			Type:     events.EventSessionOpened,
			Message:  "ssh session verified",
			Metadata: map[string]string{"host": site.Host},
		})
	}

	resp := map[string]any{"site_id": sess.ID, "verified": true}
	if uname != "" {
		resp["uname"] = uname
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(mux.Vars(r)["site_id"])
	if !ok {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"site_id":    sess.ID,
		"uname":      sess.Uname,
		"created_at": sess.CreatedAt,
		"site":       sess.Site.Redacted(),
	})
}

// wpInstall enqueues provisioning against a previously verified session,
// so the caller never re-sends credentials.
func (s *Server) wpInstall(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(mux.Vars(r)["site_id"])
	if !ok {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}

	args := types.Args{}
	var email string
	if r.Body != nil && r.ContentLength != 0 {
		var err error
		_, args, email, err = decodeSubmission(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	site := sess.Site
	site.User = "root"
	s.enqueue(w, "provision_wp_sh", site, args, email)
}

// resetGate guards destructive endpoints with the configured reset
// token. No token configured disables the endpoint entirely.
func (s *Server) resetGate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.ResetEnabled() {
			writeError(w, http.StatusServiceUnavailable, "reset token not configured")
			return
		}
		token := r.Header.Get("X-Reset-Token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token != s.cfg.ResetToken {
			writeError(w, http.StatusUnauthorized, "invalid reset token")
			return
		}
		next(w, r)
	}
}

func (s *Server) sshVerify(ctx context.Context, site *types.SiteRecord) (string, error) {
	session, err := remote.Connect(ctx, site, remote.ConnectOptions{ConnectTimeout: s.cfg.SSHConnectTimeout})
	if err != nil {
		return "", err
	}
	defer session.Close()
	return session.Verify(ctx)
}

func (s *Server) sshOpen(ctx context.Context, site *types.SiteRecord, remotePath string) (io.ReadCloser, error) {
	session, err := remote.Connect(ctx, site, remote.ConnectOptions{ConnectTimeout: s.cfg.SSHConnectTimeout})
	if err != nil {
		return nil, err
	}
	rc, err := session.Open(remotePath)
	if err != nil {
		session.Close()
		return nil, err
	}
	return &sessionReader{rc: rc, session: session}, nil
}

type sessionReader struct {
	rc      io.ReadCloser
	session *remote.Session
}

func (r *sessionReader) Read(p []byte) (int, error) { return r.rc.Read(p) }

func (r *sessionReader) Close() error {
	err := r.rc.Close()
	if cerr := r.session.Close(); err == nil {
		err = cerr
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
