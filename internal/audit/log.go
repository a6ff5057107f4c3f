// Package audit persists the append-only trail of safety decisions. Every
// switch and every gated command leaves exactly one entry here, and the
// entries form a hash chain: each record carries the hash of the previous
// one, so silent truncation or in-place edits of the log file are
// detectable with Verify. This is tamper-evidence, not cryptographic
// signing - an attacker who can rewrite the whole file can rebuild the
// chain, but nobody can quietly drop or doctor a single line.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	homedir "github.com/mitchellh/go-homedir"
)

// ErrUnavailable means an append against the audit log failed. The safety
// gate treats this as fatal for the operation being audited: no record, no
// execution.
var ErrUnavailable = errors.New("audit log unavailable")

// Action says what kind of request produced the entry.
type Action string

const (
	// ActionSwitch records a context-switch request.
	ActionSwitch Action = "switch"
	// ActionCommand records a command-execution request.
	ActionCommand Action = "command"
	// ActionDeny records a request refused before it ever reached the
	// safety gate, e.g. a command verb the dispatcher does not support.
	ActionDeny Action = "deny"
)

// Outcome is the terminal decision recorded for a request.
type Outcome string

const (
	// OutcomeAllowed means the gate let the operation through without a
	// prompt (non-sensitive tier, non-destructive operation).
	OutcomeAllowed Outcome = "allowed"
	// OutcomeDenied means the operation was refused: timeout, wrong
	// confirmation phrase, cancellation, or a pre-gate rejection.
	OutcomeDenied Outcome = "denied"
	// OutcomeConfirmedByUser means a human typed the exact confirmation
	// phrase before the deadline.
	OutcomeConfirmedByUser Outcome = "confirmedByUser"
	// OutcomeOverrideAllowed means a non-interactive override flag was
	// supplied. Recorded distinctly from interactive confirmation so the
	// two can never be conflated when reading the trail.
	OutcomeOverrideAllowed Outcome = "overrideAllowed"
)

// Entry is one immutable audit record. Credentials never appear here in
// plaintext - Detail carries at most a redacted credential reference.
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Actor         string    `json:"actor"`
	Action        Action    `json:"action"`
	TargetContext string    `json:"targetContext"`
	Tier          string    `json:"tier"`
	Outcome       Outcome   `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	Prev          string    `json:"prev"`           // Hex hash of the previous entry, "" for the first
	Hash          string    `json:"hash,omitempty"` // Hex hash of this entry (computed over the record with Hash blank)
}

// Log appends entries to a JSON-lines file, one record per line. Tail and
// Verify re-read the file, so the Log itself only has to remember the tip
// of the chain.
type Log struct {
	path     string
	lastHash string
	loaded   bool
}

// Open prepares a log backed by the given file. The file does not have to
// exist yet; the chain tip is read lazily on first append.
func Open(path string) (*Log, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot expand path %s: %v", ErrUnavailable, path, err)
	}
	return &Log{path: expanded}, nil
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Append records one entry, filling in ID, timestamp, actor, chain fields
// and hash. Errors are never swallowed: a failed append returns
// ErrUnavailable and the calling operation must fail closed.
func (l *Log) Append(entry Entry) error {
	if !l.loaded {
		if err := l.loadTip(); err != nil {
			return err
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = currentActor()
	}
	entry.Prev = l.lastHash
	entry.Hash = ""
	entry.Hash = chainHash(entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: serializing entry: %v", ErrUnavailable, err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("%w: creating log directory: %v", ErrUnavailable, err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrUnavailable, l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: appending to %s: %v", ErrUnavailable, l.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", ErrUnavailable, l.path, err)
	}

	l.lastHash = entry.Hash
	return nil
}

// Tail returns the last n entries in file order (oldest of the n first).
// n <= 0 returns everything.
func (l *Log) Tail(n int) ([]Entry, error) {
	entries, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Verify walks the whole chain, recomputing each entry's hash and checking
// its back-pointer. It returns true on an intact log; on a broken one it
// returns false plus the zero-based index of the first bad entry.
func (l *Log) Verify() (bool, int, error) {
	entries, err := l.readAll()
	if err != nil {
		return false, 0, err
	}

	prev := ""
	for i, e := range entries {
		if e.Prev != prev {
			return false, i, nil
		}
		recorded := e.Hash
		e.Hash = ""
		if chainHash(e) != recorded {
			return false, i, nil
		}
		prev = recorded
	}
	return true, -1, nil
}

// loadTip scans the existing file once to find the hash of the final entry,
// so new appends continue the chain instead of restarting it.
func (l *Log) loadTip() error {
	l.loaded = true

	entries, err := l.readAll()
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		l.lastHash = entries[len(entries)-1].Hash
	}
	return nil
}

func (l *Log) readAll() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: opening %s: %v", ErrUnavailable, l.path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrUnavailable, l.path, line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, l.path, err)
	}
	return entries, nil
}

// chainHash computes the hex SHA-256 over the previous entry's hash plus
// this entry's canonical JSON (with the Hash field blank). Struct field
// order fixes the serialization, so equal entries always hash equally.
func chainHash(e Entry) string {
	payload, err := json.Marshal(e)
	if err != nil {
		// Entry is a plain struct of strings and a time; Marshal cannot
		// fail on it. Keep the chain honest anyway.
		panic(fmt.Sprintf("audit: marshaling entry for hashing: %v", err))
	}
	h := sha256.New()
	h.Write([]byte(e.Prev))
	h.Write([]byte{'\n'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// currentActor resolves the OS user on a best-effort basis.
func currentActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}
