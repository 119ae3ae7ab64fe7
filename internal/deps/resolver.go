// Package deps maps bare module specifiers of bundled projects to CDN URLs and,
// when enabled, verifies that the CDN actually serves them.
package deps

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"

	"github.com/conneroisu/srcdoc/internal/errors"
	"github.com/conneroisu/srcdoc/internal/logging"
)

// DefaultCDN serves npm packages as browser ES modules.
const DefaultCDN = "https://esm.sh"

// DefaultReactVersion is used when a project does not pin React.
const DefaultReactVersion = "18.3.1"

// Config controls the resolver.
type Config struct {
	CDN         string
	Verify      bool
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int64
	TTL         time.Duration
	CacheSize   int
}

// DefaultConfig returns a non-verifying resolver configuration.
func DefaultConfig() Config {
	return Config{
		CDN:         DefaultCDN,
		Timeout:     10 * time.Second,
		MaxRetries:  3,
		RetryDelay:  500 * time.Millisecond,
		Concurrency: 4,
		TTL:         10 * time.Minute,
		CacheSize:   512,
	}
}

// Target carries the per-build inputs of a resolution. Both values are build
// options, so they are already covered by the build fingerprint.
type Target struct {
	CDN          string
	ReactVersion string
}

func (t Target) normalize(defaultCDN string) Target {
	if t.CDN == "" {
		t.CDN = defaultCDN
	}
	t.CDN = strings.TrimRight(t.CDN, "/")
	if t.ReactVersion == "" {
		t.ReactVersion = DefaultReactVersion
	}

	return t
}

// Stats reports resolver activity.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Errors   int64 `json:"errors"`
	Verified int64 `json:"verified"`
	Cached   int   `json:"cached"`
}

// Resolver resolves bare specifiers. It is safe for concurrent use and shared
// across build sessions.
type Resolver struct {
	config Config
	client *http.Client
	sem    *semaphore.Weighted
	cache  *expirable.LRU[string, string]
	logger logging.Logger

	hits     int64
	misses   int64
	errors   int64
	verified int64
}

// New creates a resolver. A nil logger discards output.
func New(config Config, logger logging.Logger) *Resolver {
	defaults := DefaultConfig()
	if config.CDN == "" {
		config.CDN = defaults.CDN
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.CacheSize <= 0 {
		config.CacheSize = defaults.CacheSize
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Resolver{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		sem:    semaphore.NewWeighted(config.Concurrency),
		cache:  expirable.NewLRU[string, string](config.CacheSize, nil, config.TTL),
		logger: logger.WithComponent("deps"),
	}
}

var specifierPattern = regexp.MustCompile(`^(@[a-z0-9][\w.-]*/)?[a-z0-9][\w.-]*(@[\w.^~<>=*|-]+)?(/[\w./@-]*)?$`)

// IsBare reports whether spec is a package import rather than a path or URL.
func IsBare(spec string) bool {
	if spec == "" || strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return false
	}

	return !strings.Contains(spec, "://") && !strings.HasPrefix(spec, "data:")
}

// splitSpecifier separates "pkg@1/sub" or "@scope/pkg/sub" into package,
// version and subpath.
func splitSpecifier(spec string) (pkg, version, subpath string) {
	rest := spec
	if strings.HasPrefix(rest, "@") {
		slash := strings.Index(rest, "/")
		next := strings.Index(rest[slash+1:], "/")
		if next < 0 {
			pkg = rest
			rest = ""
		} else {
			pkg = rest[:slash+1+next]
			rest = rest[slash+1+next:]
		}
	} else if slash := strings.Index(rest, "/"); slash >= 0 {
		pkg, rest = rest[:slash], rest[slash:]
	} else {
		pkg, rest = rest, ""
	}

	if at := strings.LastIndex(pkg, "@"); at > 0 {
		pkg, version = pkg[:at], pkg[at+1:]
	}

	return pkg, version, rest
}

func isReactPackage(pkg string) bool {
	return pkg == "react" || pkg == "react-dom"
}

// URL maps spec to its CDN module URL without touching the network. React
// packages are pinned to the target version; every other package treats React
// as external so the page shares a single React instance through its import
// map.
func URL(spec string, target Target) (string, error) {
	target = target.normalize(DefaultCDN)
	if !specifierPattern.MatchString(spec) {
		return "", errors.NewValidationError(errors.ErrCodeResolveFailed,
			fmt.Sprintf("invalid package specifier %q", spec))
	}

	pkg, version, subpath := splitSpecifier(spec)
	if isReactPackage(pkg) {
		return fmt.Sprintf("%s/%s@%s%s", target.CDN, pkg, target.ReactVersion, subpath), nil
	}

	if version != "" {
		pkg += "@" + version
	}

	return fmt.Sprintf("%s/%s%s?external=react,react-dom", target.CDN, pkg, subpath), nil
}

// ImportMap returns the import map entries that let CDN modules import React
// by its bare name.
func ImportMap(target Target) map[string]string {
	target = target.normalize(DefaultCDN)
	imports := make(map[string]string, 4)
	for _, pkg := range []string{"react", "react-dom"} {
		base := fmt.Sprintf("%s/%s@%s", target.CDN, pkg, target.ReactVersion)
		imports[pkg] = base
		imports[pkg+"/"] = base + "/"
	}

	return imports
}

// VerifyError reports that the CDN could not confirm a URL. It reflects the
// CDN's state at the time of the build rather than the build inputs.
type VerifyError struct {
	URL string
	Err error
}

func (e *VerifyError) Error() string {
	return e.Err.Error()
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// IsVerifyError reports whether err came from CDN verification.
func IsVerifyError(err error) bool {
	var verifyErr *VerifyError

	return stderrors.As(err, &verifyErr)
}

// Resolve maps spec to a URL, verifying it against the CDN when the resolver
// is configured to. Results are cached for the configured TTL.
func (r *Resolver) Resolve(ctx context.Context, spec string, target Target) (string, error) {
	target = target.normalize(r.config.CDN)

	url, err := URL(spec, target)
	if err != nil {
		atomic.AddInt64(&r.errors, 1)
		return "", err
	}
	if !r.config.Verify {
		return url, nil
	}

	if _, ok := r.cache.Get(url); ok {
		atomic.AddInt64(&r.hits, 1)
		return url, nil
	}
	atomic.AddInt64(&r.misses, 1)

	if err := r.verify(ctx, url); err != nil {
		atomic.AddInt64(&r.errors, 1)
		return "", &VerifyError{URL: url, Err: err}
	}

	r.cache.Add(url, spec)
	atomic.AddInt64(&r.verified, 1)

	return url, nil
}

func (r *Resolver) verify(ctx context.Context, url string) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	var lastErr error
	delay := r.config.RetryDelay
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Debug(ctx, "Retrying package verification", "url", url, "attempt", attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		retry, err := r.probe(ctx, url)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if !retry {
			break
		}
	}

	r.logger.Warn(ctx, lastErr, "Package verification failed", "url", url)

	return lastErr
}

// probe issues one HEAD request. The boolean reports whether a failure is
// worth retrying.
func (r *Resolver) probe(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, errors.NewValidationError(errors.ErrCodeResolveFailed, err.Error())
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return true, errors.NewNetworkError(errors.ErrCodeResolveFailed, "cannot reach "+url, err)
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode < 400:
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, errors.NewValidationError(errors.ErrCodeResolveFailed,
			fmt.Sprintf("package not found on CDN: %s", url))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, errors.NewNetworkError(errors.ErrCodeResolveFailed,
			fmt.Sprintf("CDN responded %d for %s", resp.StatusCode, url), nil)
	default:
		return false, errors.NewValidationError(errors.ErrCodeResolveFailed,
			fmt.Sprintf("CDN responded %d for %s", resp.StatusCode, url))
	}
}

// Stats returns a snapshot of resolver counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Hits:     atomic.LoadInt64(&r.hits),
		Misses:   atomic.LoadInt64(&r.misses),
		Errors:   atomic.LoadInt64(&r.errors),
		Verified: atomic.LoadInt64(&r.verified),
		Cached:   r.cache.Len(),
	}
}

// Config returns the effective configuration.
func (r *Resolver) Config() Config {
	return r.config
}
