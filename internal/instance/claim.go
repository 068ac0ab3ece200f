package instance

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

type Role int

const (
	Unclaimed Role = iota
	Primary
	Secondary
)

func (r Role) String() string {
	switch r {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unclaimed"
	}
}

var (
	ErrInvalidName  = errors.New("instance name must be non-empty and contain no path separators")
	ErrNotPrimary   = errors.New("only the primary instance can listen for activation")
	ErrNotSecondary = errors.New("only a secondary instance can send activation")
	ErrClosed       = errors.New("instance claim closed")
)

type Options struct {
	Name string
	// Dir holds the lock file and activation socket. Defaults to os.TempDir().
	Dir string
}

// Signal is what a secondary launch forwards to the primary.
type Signal struct {
	Argv []string `json:"argv"`
	Cwd  string   `json:"cwd"`
}

// OnActivation runs in the primary for every signal received.
type OnActivation func(sig Signal)

// Claim is the process-wide result of Acquire. Construct it once at startup
// and hand the pointer to whoever needs it.
type Claim struct {
	name       string
	role       Role
	lock       *flock.Flock
	lockPath   string
	socketPath string

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}
	closed   bool
}

// Acquire attempts the exclusive lock. An error means ownership could not even
// be determined and startup must abort.
func Acquire(opts Options) (*Claim, error) {
	if opts.Name == "" || strings.ContainsAny(opts.Name, `/\`) || opts.Name == "." || opts.Name == ".." {
		return nil, ErrInvalidName
	}
	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("error creating instance directory: %w", err)
	}
	c := &Claim{
		name:       opts.Name,
		lockPath:   filepath.Join(dir, opts.Name+".lock"),
		socketPath: filepath.Join(dir, opts.Name+".sock"),
		done:       make(chan struct{}),
	}
	c.lock = flock.New(c.lockPath)
	held, err := c.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("error acquiring instance lock %s: %w", c.lockPath, err)
	}
	if held {
		c.role = Primary
	} else {
		c.role = Secondary
	}
	log.Debug().Str("op", "instance/claim").Str("name", c.name).Str("role", c.role.String()).Msg("instance claim resolved")
	return c, nil
}

func (c *Claim) Name() string {
	return c.name
}

func (c *Claim) Role() Role {
	return c.role
}

// Held reports whether this process owns the lock.
func (c *Claim) Held() bool {
	return c.role == Primary
}

// Close stops the activation listener and releases the lock. Safe to call more
// than once; process exit has the same effect on the lock.
func (c *Claim) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	ln := c.listener
	c.mu.Unlock()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		c.wg.Wait()
	}
	if c.role == Primary {
		if ln != nil {
			os.Remove(c.socketPath)
		}
		if err := c.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("error releasing instance lock: %w", err))
		}
	} else {
		c.lock.Close()
	}
	return errors.Join(errs...)
}
