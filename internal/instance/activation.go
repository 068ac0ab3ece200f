package instance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	exchangeTimeout = 5 * time.Second
	dialRetryDelay  = 50 * time.Millisecond
	defaultDialWait = 3 * time.Second
)

// response acknowledges one signal.
type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Listen binds the activation socket and serves it in the background until ctx
// ends or the claim is closed. Each connection carries one JSON Signal.
func (c *Claim) Listen(ctx context.Context, onActivation OnActivation) error {
	if c.role != Primary {
		return ErrNotPrimary
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.listener != nil {
		return errors.New("activation listener already running")
	}
	// a socket file left by a crashed primary is stale: we hold the lock now
	if err := os.Remove(c.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing stale activation socket: %w", err)
	}
	ln, err := net.Listen("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("error binding activation socket: %w", err)
	}
	c.listener = ln

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		select {
		case <-ctx.Done():
			ln.Close()
		case <-c.done:
		}
	}()
	go func() {
		defer c.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					log.Error().Str("op", "instance/listen").Err(err).Msg("activation listener stopped")
				}
				return
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.handle(conn, onActivation)
			}()
		}
	}()
	log.Debug().Str("op", "instance/listen").Str("socket", c.socketPath).Msg("listening for activation")
	return nil
}

func (c *Claim) handle(conn net.Conn, onActivation OnActivation) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(exchangeTimeout))
	var sig Signal
	if err := json.NewDecoder(conn).Decode(&sig); err != nil {
		log.Warn().Str("op", "instance/listen").Err(err).Msg("malformed activation signal")
		json.NewEncoder(conn).Encode(response{OK: false, Error: "malformed signal"})
		return
	}
	log.Info().Str("op", "instance/listen").Strs("argv", sig.Argv).Str("cwd", sig.Cwd).Msg("activation requested by another launch")
	if onActivation != nil {
		onActivation(sig)
	}
	json.NewEncoder(conn).Encode(response{OK: true})
}

// Notify forwards sig to the primary. The primary may still be starting, so
// dialing is retried until ctx ends (three seconds when ctx has no deadline).
func (c *Claim) Notify(ctx context.Context, sig Signal) error {
	if c.role != Secondary {
		return ErrNotSecondary
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultDialWait)
		defer cancel()
	}
	var dialer net.Dialer
	var conn net.Conn
	for {
		var err error
		conn, err = dialer.DialContext(ctx, "unix", c.socketPath)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("error reaching primary instance: %w", err)
		case <-time.After(dialRetryDelay):
		}
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(exchangeTimeout))
	if err := json.NewEncoder(conn).Encode(sig); err != nil {
		return fmt.Errorf("error sending activation signal: %w", err)
	}
	var resp response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("error reading activation response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("primary rejected activation: %s", resp.Error)
	}
	log.Debug().Str("op", "instance/notify").Msg("activation signal delivered")
	return nil
}
