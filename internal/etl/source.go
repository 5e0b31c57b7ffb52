package etl

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"sort"
	"sync"
	"time"

	"etlpipe/internal/domain"
)

// ── Source ──────────────────────────────────────────────────
// A Source extracts one table from an external system.
// Implementations live in etl/sources/, one file per access method.

// SourceSpec describes an access method and the descriptor fields it requires.
type SourceSpec struct {
	Method   domain.AccessMethod `json:"method"`
	Label    string              `json:"label"`
	Required []string            `json:"required"`
	Help     string              `json:"help,omitempty"`
}

// Source is the interface every access method must implement.
type Source interface {
	// Spec returns metadata about this access method.
	Spec() SourceSpec

	// Extract fetches and parses the source into a table named after it.
	Extract(ctx context.Context, src domain.SourceDescriptor, env *Env) (*Table, error)
}

// CommandRunner runs an external program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Env carries the shared resources sources need during extraction.
type Env struct {
	HTTPClient  *http.Client
	Runner      CommandRunner
	DownloadDir string // managed_dataset target directory
	KaggleBin   string // managed_dataset CLI binary
	Log         *slog.Logger
}

// DefaultHTTPTimeout bounds a single HTTP fetch.
const DefaultHTTPTimeout = 10 * time.Minute

// NewEnv builds an Env with defaults for any unset resource.
func NewEnv(timeout time.Duration, downloadDir, kaggleBin string) *Env {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if downloadDir == "" {
		downloadDir = "downloads"
	}
	if kaggleBin == "" {
		kaggleBin = "kaggle"
	}
	return &Env{
		HTTPClient:  &http.Client{Timeout: timeout},
		Runner:      ExecRunner{},
		DownloadDir: downloadDir,
		KaggleBin:   kaggleBin,
		Log:         slog.Default(),
	}
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[domain.AccessMethod]Source{}
)

// RegisterSource registers a source by its access method.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Method] = s
}

// GetSource returns a registered source by access method, or an error if not found.
func GetSource(method domain.AccessMethod) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, method)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by method.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Method < specs[j].Method })
	return specs
}
