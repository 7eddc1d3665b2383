package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// SiteRecord describes a single target host and its WordPress install.
// It is constructed per request and treated as immutable once enqueued.
type SiteRecord struct {
	Host          string `json:"host"`
	User          string `json:"user"`
	Port          int    `json:"port,omitempty"`
	KeyPath       string `json:"key_filename,omitempty"`
	PrivateKeyPEM string `json:"private_key_pem,omitempty"`
	Password      string `json:"password,omitempty"`
	SudoPassword  string `json:"sudo_password,omitempty"`

	WPPath string `json:"wp_path,omitempty"`
	DBName string `json:"db_name,omitempty"`
	DBUser string `json:"db_user,omitempty"`
	DBPass string `json:"db_pass,omitempty"`
}

// Validate checks the invariants required before a site can be used:
// a non-empty host and at least one credential form.
func (s *SiteRecord) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("site host is required")
	}
	if s.KeyPath == "" && s.PrivateKeyPEM == "" && s.Password == "" {
		return fmt.Errorf("site needs one of key_filename, private_key_pem or password")
	}
	return nil
}

// Addr returns the host:port dial address, defaulting the port to 22.
func (s *SiteRecord) Addr() string {
	port := s.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", s.Host, port)
}

// EffectiveSudoPassword returns the sudo password, falling back to the
// login password when none is set.
func (s *SiteRecord) EffectiveSudoPassword() string {
	if s.SudoPassword != "" {
		return s.SudoPassword
	}
	return s.Password
}

// Redacted returns the loggable subset of the site record. Credentials,
// key material and the database password are never included.
func (s *SiteRecord) Redacted() map[string]string {
	r := map[string]string{
		"host": s.Host,
		"user": s.User,
	}
	if s.Port != 0 {
		r["port"] = fmt.Sprintf("%d", s.Port)
	}
	if s.WPPath != "" {
		r["wp_path"] = s.WPPath
	}
	if s.DBName != "" {
		r["db_name"] = s.DBName
	}
	return r
}

// Session is a verified site record identified by an opaque id. Sessions
// are process-local and live until process exit.
type Session struct {
	ID        string     `json:"site_id"`
	Site      SiteRecord `json:"-"`
	Uname     string     `json:"uname,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TaskState represents the state of a task. Transitions are monotonic
// along queued -> in_progress -> {succeeded | failed}.
type TaskState string

const (
	TaskStateQueued     TaskState = "queued"
	TaskStateInProgress TaskState = "in_progress"
	TaskStateSucceeded  TaskState = "succeeded"
	TaskStateFailed     TaskState = "failed"
)

// Terminal reports whether the state admits no further transition.
func (s TaskState) Terminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// Task is one enqueued unit of remote work tracked by state and result.
type Task struct {
	ID          string         `json:"task_id"`
	Kind        string         `json:"kind"`
	Site        SiteRecord     `json:"site"`
	Args        Args           `json:"args,omitempty"`
	ReportEmail string         `json:"report_email,omitempty"`
	State       TaskState      `json:"state"`
	Result      map[string]any `json:"result,omitempty"`
	Info        string         `json:"info,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	FinishedAt  time.Time      `json:"finished_at,omitzero"`
}

// Snapshot is the remote-produced pair of database dump and content
// tarball used for rollback.
type Snapshot struct {
	DBDump     string `json:"db_dump"`
	ContentTar string `json:"content_tar"`
	Timestamp  string `json:"timestamp"`
}

// Args is the keyword-argument bag attached to a task. Handlers decode
// it into their own argument records with Decode.
type Args map[string]any

// Decode unmarshals the argument bag into a typed argument record.
func (a Args) Decode(v any) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// String returns a string argument or the given default.
func (a Args) String(key, def string) string {
	if v, ok := a[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns a boolean argument or the given default.
func (a Args) Bool(key string, def bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return def
}

// Int returns an integer argument or the given default. JSON numbers
// arrive as float64.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
