package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/tanq16/oglauncher/internal/transfer"
	"golang.org/x/oauth2"
)

const maxArgsBytes = 1 << 20

type commandFunc func(ctx context.Context, raw json.RawMessage) (any, error)

// argsError marks a malformed invocation rather than a failed command.
type argsError struct {
	msg string
}

func (e *argsError) Error() string {
	return e.msg
}

func readArgs(r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxArgsBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading arguments: %v", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}"), nil
	}
	return data, nil
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &argsError{msg: fmt.Sprintf("invalid arguments: %v", err)}
	}
	return nil
}

type transferArgs struct {
	UID      string            `json:"uid"`
	URL      string            `json:"url"`
	Filename string            `json:"filename"`
	Headers  map[string]string `json:"headers"`
}

type pathArgs struct {
	Path string `json:"path"`
}

type gameArgs struct {
	Exe          string `json:"exe"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) commandTable() map[string]commandFunc {
	return map[string]commandFunc{
		"download_file":       s.downloadFile,
		"upload_file":         s.uploadFile,
		"file_exists":         s.fileExists,
		"file_size_recursive": s.fileSizeRecursive,
		"remove_dir":          s.removeDir,
		"create_dir":          s.createDir,
		"open_game":           s.openGame,
	}
}

func (a *transferArgs) request(dir transfer.Direction) (transfer.Request, error) {
	if a.URL == "" || a.Filename == "" {
		return transfer.Request{}, &argsError{msg: "url and filename are required"}
	}
	if a.UID == "" {
		a.UID = uuid.NewString()
	}
	req := transfer.Request{
		CorrelationID: a.UID,
		Direction:     dir,
		RemoteURL:     a.URL,
		LocalPath:     a.Filename,
	}
	if dir == transfer.Upload {
		req.Headers = a.Headers
	}
	return req, nil
}

// downloadFile resolves to null on success.
func (s *Server) downloadFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var args transferArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	req, err := args.request(transfer.Download)
	if err != nil {
		return nil, err
	}
	if _, err := s.deps.Transfers.Do(ctx, req); err != nil {
		return nil, err
	}
	return nil, nil
}

// uploadFile resolves to the response body text.
func (s *Server) uploadFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var args transferArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	req, err := args.request(transfer.Upload)
	if err != nil {
		return nil, err
	}
	return s.deps.Transfers.Do(ctx, req)
}

func (s *Server) pathArg(raw json.RawMessage) (string, error) {
	var args pathArgs
	if err := decode(raw, &args); err != nil {
		return "", err
	}
	if args.Path == "" {
		return "", &argsError{msg: "path is required"}
	}
	return args.Path, nil
}

func (s *Server) fileExists(_ context.Context, raw json.RawMessage) (any, error) {
	path, err := s.pathArg(raw)
	if err != nil {
		return nil, err
	}
	return s.deps.Files.Exists(path), nil
}

func (s *Server) fileSizeRecursive(_ context.Context, raw json.RawMessage) (any, error) {
	path, err := s.pathArg(raw)
	if err != nil {
		return nil, err
	}
	return s.deps.Files.SizeRecursive(path)
}

func (s *Server) removeDir(_ context.Context, raw json.RawMessage) (any, error) {
	path, err := s.pathArg(raw)
	if err != nil {
		return nil, err
	}
	s.deps.Files.RemoveDir(path)
	return nil, nil
}

func (s *Server) createDir(_ context.Context, raw json.RawMessage) (any, error) {
	path, err := s.pathArg(raw)
	if err != nil {
		return nil, err
	}
	s.deps.Files.CreateDir(path)
	return nil, nil
}

func (s *Server) openGame(ctx context.Context, raw json.RawMessage) (any, error) {
	var args gameArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if s.deps.Launch == nil {
		return nil, errors.New("game launching unavailable")
	}
	return s.deps.Launch(ctx, args.Exe, &oauth2.Token{
		AccessToken:  args.AccessToken,
		RefreshToken: args.RefreshToken,
	})
}
