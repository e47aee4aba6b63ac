// Package status persists session status documents: one JSON file per
// orchestration run, updated atomically under a cross-process lock, with
// an active-session pointer per workspace root. Readers never block
// writers and always observe a fully-formed document.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/justinDeu/Founder-Mode-sub000/pkg/models"
)

const (
	statusFileName = "status.json"
	activeLinkName = "active-session"
)

// Store manages session documents under one workspace root.
type Store struct {
	root string
}

// New creates a store for the workspace root. Documents live under
// <root>/.founder-mode/status/sessions/<session-id>/status.json.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) statusDir() string {
	return filepath.Join(s.root, ".founder-mode", "status")
}

// SessionsDir returns the directory holding all session directories.
func (s *Store) SessionsDir() string {
	return filepath.Join(s.statusDir(), "sessions")
}

// Handle identifies one session's on-disk location.
type Handle struct {
	ID  string
	Dir string
}

func (h Handle) statusPath() string {
	return filepath.Join(h.Dir, statusFileName)
}

// CreateSession initializes a new session document with every agent
// queued, writes it atomically, and repoints the active-session link.
func (s *Store) CreateSession(source, sourceFile string, agents []*models.AgentRecord, waves []*models.WaveStatus) (Handle, error) {
	id := fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), uuid.New().String()[:8])
	dir := filepath.Join(s.SessionsDir(), id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Handle{}, fmt.Errorf("create session directory: %w", err)
	}
	h := Handle{ID: id, Dir: dir}

	for _, a := range agents {
		if a.Status == "" {
			a.Status = models.AgentQueued
		}
		if a.LogFile == "" {
			a.LogFile = filepath.Join(dir, a.ID+".log")
		}
	}

	session := &models.Session{
		SchemaVersion: models.SchemaVersion,
		SessionID:     id,
		Source:        source,
		SourceFile:    sourceFile,
		StartedAt:     time.Now().UTC(),
		Status:        models.SessionRunning,
		Agents:        agents,
		Summary:       models.Summarize(agents),
		Waves:         waves,
	}

	if err := writeSession(h, session); err != nil {
		return Handle{}, err
	}

	if err := s.repointActive(dir); err != nil {
		return Handle{}, err
	}
	return h, nil
}

// repointActive replaces the active-session symlink with one resolving
// to dir.
func (s *Store) repointActive(dir string) error {
	link := filepath.Join(s.statusDir(), activeLinkName)
	if err := os.MkdirAll(s.statusDir(), 0755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("remove active-session link: %w", err)
		}
	}
	if err := os.Symlink(dir, link); err != nil {
		return fmt.Errorf("create active-session link: %w", err)
	}
	return nil
}

// Active returns the handle of the most recently created session for
// this workspace root.
func (s *Store) Active() (Handle, error) {
	link := filepath.Join(s.statusDir(), activeLinkName)
	dir, err := filepath.EvalSymlinks(link)
	if err != nil {
		return Handle{}, fmt.Errorf("no active session: %w", err)
	}
	return Handle{ID: filepath.Base(dir), Dir: dir}, nil
}

// Open returns a handle for an existing session ID.
func (s *Store) Open(id string) (Handle, error) {
	dir := filepath.Join(s.SessionsDir(), id)
	if _, err := os.Stat(filepath.Join(dir, statusFileName)); err != nil {
		return Handle{}, fmt.Errorf("session %s: %w", id, err)
	}
	return Handle{ID: id, Dir: dir}, nil
}

// AgentUpdate is a partial update to one agent's record. Nil fields are
// left unchanged.
type AgentUpdate struct {
	Status   *models.AgentStatus
	PID      *int
	ExitCode *int
	Error    string
	LogFile  string
}

// UpdateAgent applies a single-agent delta under the store lock:
// read the whole document, modify one agent, recompute the summary and
// wave progress, write atomically. When the update leaves every agent
// terminal, the session itself is finalized: failed if any agent failed,
// complete otherwise.
func (s *Store) UpdateAgent(h Handle, agentID string, update AgentUpdate) (*models.Session, error) {
	lock := newDirLock(h.statusPath() + ".lock")
	if err := lock.acquire(); err != nil {
		return nil, err
	}
	defer lock.release()

	session, err := Load(h)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, fmt.Errorf("session %s is already %s", h.ID, session.Status)
	}

	agent := session.Agent(agentID)
	if agent == nil {
		return nil, fmt.Errorf("session %s has no agent %s", h.ID, agentID)
	}

	if err := applyUpdate(agent, update); err != nil {
		return nil, err
	}

	session.Summary = models.Summarize(session.Agents)
	recomputeWaves(session)

	if session.AllTerminal() {
		finalize(session)
	}

	if err := writeSession(h, session); err != nil {
		return nil, err
	}
	return session, nil
}

// applyUpdate mutates one agent record, enforcing legal transitions.
func applyUpdate(agent *models.AgentRecord, update AgentUpdate) error {
	now := time.Now().UTC()

	if update.Status != nil && *update.Status != agent.Status {
		next := *update.Status
		if !agent.Status.CanTransition(next) {
			return fmt.Errorf("agent %s: illegal transition %s -> %s", agent.ID, agent.Status, next)
		}
		agent.Status = next

		switch {
		case next == models.AgentRunning:
			agent.StartedAt = &now
		case next.Terminal():
			agent.CompletedAt = &now
			if agent.StartedAt != nil {
				d := now.Sub(*agent.StartedAt).Seconds()
				agent.DurationSeconds = &d
			}
			agent.PID = nil
		}
	}

	if update.PID != nil {
		agent.PID = update.PID
	}
	if update.ExitCode != nil {
		agent.ExitCode = update.ExitCode
	}
	if update.Error != "" {
		agent.Error = update.Error
	}
	if update.LogFile != "" {
		agent.LogFile = update.LogFile
	}
	return nil
}

// finalize applies the terminal-status rule and stamps completion.
func finalize(session *models.Session) {
	failed := false
	for _, a := range session.Agents {
		if a.Status == models.AgentFailed {
			failed = true
			break
		}
	}
	if failed {
		session.Status = models.SessionFailed
	} else {
		session.Status = models.SessionComplete
	}
	now := time.Now().UTC()
	session.CompletedAt = &now
}

// recomputeWaves refreshes each wave's rollup status from its agents.
func recomputeWaves(session *models.Session) {
	for _, w := range session.Waves {
		allComplete := true
		anyRunning := false
		anyFailed := false
		anyQueued := false
		for _, id := range w.Agents {
			a := session.Agent(id)
			if a == nil {
				continue
			}
			switch a.Status {
			case models.AgentRunning:
				anyRunning = true
				allComplete = false
			case models.AgentFailed:
				anyFailed = true
				allComplete = false
			case models.AgentQueued:
				anyQueued = true
				allComplete = false
			case models.AgentCancelled:
				// Cancelled agents do not block wave completion.
			}
		}
		switch {
		case anyFailed:
			w.Status = "failed"
		case anyRunning:
			w.Status = "running"
		case anyQueued:
			w.Status = "queued"
		case allComplete:
			w.Status = "complete"
		default:
			w.Status = "complete"
		}
	}
}

// CompleteSession finalizes a session whose agents are all terminal.
// It is a no-op on an already-terminal session.
func (s *Store) CompleteSession(h Handle) (*models.Session, error) {
	lock := newDirLock(h.statusPath() + ".lock")
	if err := lock.acquire(); err != nil {
		return nil, err
	}
	defer lock.release()

	session, err := Load(h)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return session, nil
	}
	if !session.AllTerminal() {
		return nil, fmt.Errorf("session %s has non-terminal agents", h.ID)
	}

	finalize(session)
	if err := writeSession(h, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CancelSession marks every queued or running agent cancelled and the
// session as cancelled.
func (s *Store) CancelSession(h Handle) (*models.Session, error) {
	lock := newDirLock(h.statusPath() + ".lock")
	if err := lock.acquire(); err != nil {
		return nil, err
	}
	defer lock.release()

	session, err := Load(h)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return session, nil
	}

	now := time.Now().UTC()
	for _, a := range session.Agents {
		if !a.Status.Terminal() {
			a.Status = models.AgentCancelled
			a.CompletedAt = &now
			a.PID = nil
		}
	}
	session.Status = models.SessionCancelled
	session.CompletedAt = &now
	session.Summary = models.Summarize(session.Agents)
	recomputeWaves(session)

	if err := writeSession(h, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Load reads a session document. It takes no lock: writes are atomic
// renames, so a reader always sees a complete document.
func Load(h Handle) (*models.Session, error) {
	data, err := os.ReadFile(h.statusPath())
	if err != nil {
		return nil, fmt.Errorf("read session status: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session status: %w", err)
	}
	return &session, nil
}

// writeSession writes the document via write-temp-then-rename.
func writeSession(h Handle, session *models.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session status: %w", err)
	}
	if err := renameio.WriteFile(h.statusPath(), data, 0644); err != nil {
		return fmt.Errorf("write session status: %w", err)
	}
	return nil
}

// ListSessions returns every session directory, newest first by name
// (session IDs start with a sortable timestamp).
func (s *Store) ListSessions() ([]Handle, error) {
	entries, err := os.ReadDir(s.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	var handles []Handle
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.IsDir() {
			continue
		}
		handles = append(handles, Handle{
			ID:  e.Name(),
			Dir: filepath.Join(s.SessionsDir(), e.Name()),
		})
	}
	return handles, nil
}

// RemoveOlderThan deletes session directories whose document started
// before the cutoff. It returns the number removed.
func (s *Store) RemoveOlderThan(cutoff time.Time) (int, error) {
	handles, err := s.ListSessions()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, h := range handles {
		session, err := Load(h)
		if err != nil {
			continue
		}
		if session.StartedAt.Before(cutoff) {
			if err := os.RemoveAll(h.Dir); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
