// Package provisioner creates per-issue workspace directories, clones the
// repositories a classification names, and reclaims stale workspaces.
package provisioner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/store"
)

// GitCloneError reports a failed shallow clone, carrying the URL and the
// captured stderr so operators can see exactly what git rejected.
type GitCloneError struct {
	URL    string
	Stderr string
}

func (e *GitCloneError) Error() string {
	return fmt.Sprintf("git clone %s failed: %s", e.URL, strings.TrimSpace(e.Stderr))
}

// IssueDetails is the minimal issue context Provision needs.
type IssueDetails struct {
	Owner      string
	Repository string
}

// ProvisionedWorkspace describes the directory Provision created.
type ProvisionedWorkspace struct {
	Path        string
	ClonedRepos []string
	PrimaryRepo string
}

// Config configures a Provisioner.
type Config struct {
	BasePath      string
	DirMode       os.FileMode
	CloneTimeout  time.Duration
	RetentionDays int
}

// Provisioner creates workspace directories and clones repositories into
// them. Git operations shell out to the git binary rather than a Go git
// library.
type Provisioner struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Provisioner.
func New(cfg Config, logger *zap.Logger) *Provisioner {
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.CloneTimeout == 0 {
		cfg.CloneTimeout = 300 * time.Second
	}
	return &Provisioner{cfg: cfg, logger: logger.With(zap.String("component", "provisioner"))}
}

// Provision creates the workspace directory for issueID and shallow-clones
// the primary repository plus every affected_packages entry.
func (p *Provisioner) Provision(ctx context.Context, issueID string, c store.Classification, issue IssueDetails) (*ProvisionedWorkspace, error) {
	dirName := workspaceDirName(issueID)
	path := filepath.Join(p.cfg.BasePath, dirName)

	if err := os.MkdirAll(path, p.cfg.DirMode); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}
	if err := os.Chmod(path, p.cfg.DirMode); err != nil {
		return nil, fmt.Errorf("set workspace directory permissions: %w", err)
	}

	primary := fmt.Sprintf("%s/%s", issue.Owner, issue.Repository)
	urls := resolveCloneTargets(primary, c.AffectedPackages)

	cloned := make([]string, 0, len(urls))
	for pkg, url := range urls {
		dest := filepath.Join(path, pkg)
		if err := p.shallowClone(ctx, url, dest); err != nil {
			return nil, err
		}
		cloned = append(cloned, pkg)
	}

	return &ProvisionedWorkspace{Path: path, ClonedRepos: cloned, PrimaryRepo: primary}, nil
}

// workspaceDirName renders "owner_repo_number_epochSeconds": issue-ID
// separators become underscores and a creation-time tag is appended so
// repeated provisions for the same issue don't collide.
func workspaceDirName(issueID string) string {
	safe := strings.NewReplacer("/", "_", "#", "_").Replace(issueID)
	return fmt.Sprintf("%s_%d", safe, time.Now().Unix())
}

// resolveCloneTargets returns package-name -> clone-URL, always including
// the primary repository and deduplicating affected_packages against it.
func resolveCloneTargets(primary string, affectedPackages []string) map[string]string {
	owner := primary
	if idx := strings.Index(primary, "/"); idx >= 0 {
		owner = primary[:idx]
	}
	primaryPkg := primary
	if idx := strings.LastIndex(primary, "/"); idx >= 0 {
		primaryPkg = primary[idx+1:]
	}

	targets := map[string]string{
		primaryPkg: fmt.Sprintf("https://github.com/%s.git", primary),
	}
	for _, pkg := range affectedPackages {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" || pkg == primaryPkg {
			continue
		}
		targets[pkg] = fmt.Sprintf("https://github.com/%s/%s.git", owner, pkg)
	}
	return targets
}

func (p *Provisioner) shallowClone(ctx context.Context, url, dest string) error {
	cloneCtx, cancel := context.WithTimeout(ctx, p.cfg.CloneTimeout)
	defer cancel()

	cmd := exec.CommandContext(cloneCtx, "git", "clone", "--depth", "1", url, dest)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &GitCloneError{URL: url, Stderr: stderr.String()}
	}
	return nil
}

// CleanupOldWorkspaces removes direct subdirectories of the base path whose
// mtime is older than retention_days. Files in the base path are ignored.
// Returns the number of directories removed.
func (p *Provisioner) CleanupOldWorkspaces() (int, error) {
	entries, err := os.ReadDir(p.cfg.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspace base path: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(p.cfg.RetentionDays) * 24 * time.Hour)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			p.logger.Warn("stat workspace entry failed", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		full := filepath.Join(p.cfg.BasePath, entry.Name())
		if err := os.RemoveAll(full); err != nil {
			p.logger.Warn("remove stale workspace failed", zap.String("path", full), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
