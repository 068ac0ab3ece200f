package publish

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog/log"
)

var ErrNoVersion = errors.New("no version given and HEAD is not tagged")

// ResolveVersion picks the release version: the explicit flag value, then the
// configured one, then the tag pointing at HEAD of the repository containing
// repoDir. A leading "v" is dropped from tag names.
func ResolveVersion(flagValue, configured, repoDir string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if configured != "" {
		return configured, nil
	}
	tag, err := TagAtHead(repoDir)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(tag, "v"), nil
}

// TagAtHead returns the name of a tag, lightweight or annotated, whose target
// is the HEAD commit. When several match the lexically greatest wins.
func TagAtHead(repoDir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(repoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("error opening git repository: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("error resolving HEAD: %v", err)
	}
	tags, err := repo.Tags()
	if err != nil {
		return "", fmt.Errorf("error listing tags: %v", err)
	}
	var found string
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if obj, err := repo.TagObject(ref.Hash()); err == nil {
			target = obj.Target
		}
		if target == head.Hash() && ref.Name().Short() > found {
			found = ref.Name().Short()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("error reading tags: %v", err)
	}
	if found == "" {
		return "", ErrNoVersion
	}
	log.Debug().Str("op", "publish/version").Str("tag", found).Msg("using tag at HEAD")
	return found, nil
}
