// Package publish uploads a release bundle to S3-compatible storage together
// with the latest.json manifest the launcher's updater polls.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	ManifestName = "latest.json"
	releaseNotes = "Latest version"
)

type Manifest struct {
	Version   string              `json:"version"`
	Notes     string              `json:"notes"`
	PubDate   string              `json:"pub_date"`
	Platforms map[string]Platform `json:"platforms"`
}

type Platform struct {
	Signature string `json:"signature"`
	URL       string `json:"url"`
}

type Options struct {
	Bucket      string
	Prefix      string
	BaseURL     string
	BundleGlob  string
	Platform    string
	Version     string
	Concurrency int
	// Now stamps pub_date; defaults to time.Now.
	Now func() time.Time
}

// Publisher uploads the bundle held in fs, rooted at the bundle directory.
type Publisher struct {
	fs       billy.Filesystem
	uploader Uploader
	opts     Options
}

// Result summarizes a completed publish.
type Result struct {
	Files    int
	Bytes    int64
	Manifest Manifest
}

func New(fs billy.Filesystem, uploader Uploader, opts Options) *Publisher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{fs: fs, uploader: uploader, opts: opts}
}

func (p *Publisher) key(rel string) string {
	return path.Join(p.opts.Prefix, rel)
}

// Publish uploads every regular file, then the manifest. The manifest is only
// written once all files are in place so the updater never sees a release
// whose artifact is missing.
func (p *Publisher) Publish(ctx context.Context) (*Result, error) {
	if p.opts.Version == "" {
		return nil, ErrNoVersion
	}
	artifact, err := p.findArtifact()
	if err != nil {
		return nil, err
	}
	signature, err := util.ReadFile(p.fs, artifact+".sig")
	if err != nil {
		return nil, fmt.Errorf("error reading signature for %s: %v", artifact, err)
	}
	files, err := p.collect()
	if err != nil {
		return nil, err
	}

	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, rel := range files {
		g.Go(func() error {
			n, err := p.uploadFile(gctx, rel)
			if err != nil {
				return err
			}
			uploaded.Add(n)
			log.Info().Str("op", "publish/upload").Str("key", p.key(rel)).Msgf("Uploaded %s to %s", rel, p.opts.Bucket)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest := Manifest{
		Version: p.opts.Version,
		Notes:   releaseNotes,
		PubDate: p.opts.Now().UTC().Format(time.RFC3339),
		Platforms: map[string]Platform{
			p.opts.Platform: {
				Signature: string(signature),
				URL:       strings.TrimRight(p.opts.BaseURL, "/") + "/" + p.key(relative(artifact)),
			},
		},
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("error encoding manifest: %v", err)
	}
	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.opts.Bucket),
		Key:         aws.String(p.key(ManifestName)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("error uploading manifest: %v", err)
	}
	log.Info().Str("op", "publish/manifest").Str("version", manifest.Version).Msg("Published manifest")
	return &Result{Files: len(files), Bytes: uploaded.Load(), Manifest: manifest}, nil
}

func (p *Publisher) uploadFile(ctx context.Context, rel string) (int64, error) {
	f, err := p.fs.Open("/" + rel)
	if err != nil {
		return 0, fmt.Errorf("error opening %s: %v", rel, err)
	}
	defer f.Close()
	counter := &countingReader{r: f}
	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.opts.Bucket),
		Key:    aws.String(p.key(rel)),
		Body:   counter,
	})
	if err != nil {
		return 0, fmt.Errorf("error uploading %s: %v", rel, err)
	}
	return counter.n, nil
}

// findArtifact returns the single bundle file matching BundleGlob.
func (p *Publisher) findArtifact() (string, error) {
	matches, err := util.Glob(p.fs, path.Join("/", p.opts.BundleGlob))
	if err != nil {
		return "", fmt.Errorf("error matching bundle pattern: %v", err)
	}
	var artifacts []string
	for _, m := range matches {
		if !strings.HasSuffix(m, ".sig") {
			artifacts = append(artifacts, m)
		}
	}
	switch len(artifacts) {
	case 0:
		return "", fmt.Errorf("no bundle matches %q", p.opts.BundleGlob)
	case 1:
		return artifacts[0], nil
	default:
		return "", fmt.Errorf("bundle pattern %q is ambiguous: %s", p.opts.BundleGlob, strings.Join(artifacts, ", "))
	}
}

// collect lists regular files as slash-separated paths relative to the root.
func (p *Publisher) collect() ([]string, error) {
	var files []string
	err := util.Walk(p.fs, "/", func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, relative(name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking bundle: %v", err)
	}
	if len(files) == 0 {
		return nil, errors.New("bundle directory is empty")
	}
	return files, nil
}

func relative(name string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
