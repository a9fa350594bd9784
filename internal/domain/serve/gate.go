package serve

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mediaserver/internal/config"
	"mediaserver/internal/domain/transform"
	"mediaserver/internal/domain/variant"
	"mediaserver/internal/pkg/lock"
	"mediaserver/internal/pkg/signing"
	"mediaserver/internal/storage"
)

// Result is what the gate decided to send back.
type Result struct {
	Status      int
	Path        string // file to stream
	Body        []byte // rendered in memory when results are not stored
	ContentType string
	Name        string
	Cached      bool
	Generated   bool
}

// Gate answers media requests. A request is checked against the public
// store, then (optionally) its token, and then either the original is
// located or the variant is generated. Every failure ends in the fallback
// asset; only storage write failures are returned as errors.
type Gate struct {
	cfg       config.MediaConfig
	resolver  *variant.Resolver
	locator   *storage.Locator
	generator *transform.Generator
	publisher *storage.Publisher
	signer    *signing.Signer
	locker    lock.Locker
	flights   singleflight.Group
	logger    *zap.SugaredLogger
}

func NewGate(
	cfg config.MediaConfig,
	locator *storage.Locator,
	generator *transform.Generator,
	publisher *storage.Publisher,
	locker lock.Locker,
	logger *zap.SugaredLogger,
) *Gate {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Gate{
		cfg:       cfg,
		resolver:  variant.NewResolver(cfg.Presets),
		locator:   locator,
		generator: generator,
		publisher: publisher,
		signer:    signing.New(cfg.TokenSecret),
		locker:    locker,
		logger:    logger,
	}
}

// Signer returns the signer used for request tokens.
func (g *Gate) Signer() *signing.Signer {
	return g.signer
}

type request struct {
	req       variant.Request
	target    string
	status    int
	source    string
	body      []byte
	generated bool
}

// Serve handles one request path. token is only consulted when tokens are
// enabled.
func (g *Gate) Serve(ctx context.Context, rawPath, token string) (*Result, error) {
	if !g.cfg.Enabled {
		return nil, ErrDisabled
	}

	req, err := variant.ParsePath(rawPath)
	if err != nil {
		g.logger.Debugw("media path rejected", "path", rawPath, "error", err)
		return g.fallbackOnly(http.StatusNotFound)
	}

	r := &request{req: req, target: g.locator.PublicPath(req.Path), status: http.StatusOK}
	if storage.Exists(r.target) {
		res := g.fileResult(r.target, http.StatusOK, req)
		res.Cached = true
		return res, nil
	}

	if g.cfg.UseTokens {
		if err := g.checkToken(req.Path, token); err != nil {
			g.logger.Infow("media token rejected", "path", req.Path, "has_token", token != "")
			r.status = http.StatusNotFound
			return g.finish(r)
		}
	}

	if req.HasVariant() {
		err = g.serveVariant(ctx, r)
	} else {
		err = g.serveOriginal(r)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// nothing is linked at the target; a later request may still render it
		g.logger.Infow("variant generation abandoned", "path", req.Path, "error", err)
		return g.fallbackOnly(http.StatusNotFound)
	}
	if err != nil {
		return nil, err
	}
	return g.finish(r)
}

func (g *Gate) checkToken(p, token string) error {
	if !g.signer.Verify(p, token) {
		return ErrAuth
	}
	return nil
}

func (g *Gate) serveOriginal(r *request) error {
	src, err := g.locator.Locate(r.req.Path, g.cfg.Store)
	if errors.Is(err, storage.ErrNotFound) {
		r.status = http.StatusNotFound
		return nil
	}
	if err != nil {
		return err
	}
	r.source = src
	return nil
}

func (g *Gate) serveVariant(ctx context.Context, r *request) error {
	spec, err := g.resolver.Resolve(r.req.Token)
	if err != nil {
		g.logger.Debugw("variant unresolvable", "path", r.req.Path, "token", r.req.Token)
		r.status = http.StatusNotFound
		return nil
	}

	t, err := g.generator.Registry().Lookup(spec.Transform)
	if err != nil {
		g.logger.Infow("variant transform unsupported", "path", r.req.Path, "transform", spec.Transform)
		r.status = http.StatusNotFound
		return g.placeholder(r, spec, nil)
	}

	original, err := g.locator.Locate(r.req.Path, false)
	if errors.Is(err, storage.ErrNotFound) {
		r.status = http.StatusNotFound
		return g.placeholder(r, spec, t)
	}
	if err != nil {
		return err
	}

	err = g.generate(ctx, r, original, spec)
	if errors.Is(err, transform.ErrTransform) || errors.Is(err, transform.ErrUnsupportedTransform) {
		g.logger.Warnw("variant generation failed", "path", r.req.Path, "original", original, "error", err)
		r.status = http.StatusNotFound
		return g.placeholder(r, spec, t)
	}
	return err
}

// generate renders the variant. When results are stored, concurrent
// requests for the same target share one rendering and the file appears
// atomically.
func (g *Gate) generate(ctx context.Context, r *request, original string, spec variant.Spec) error {
	if !g.cfg.Store {
		data, err := g.generator.Generate(ctx, original, spec.Transform, spec.Args, r.req.Ext)
		if err != nil {
			return err
		}
		r.body = data
		r.generated = true
		return nil
	}

	ch := g.flights.DoChan(r.target, func() (any, error) {
		// the rendering outlives any single caller
		fctx := context.WithoutCancel(ctx)
		if g.cfg.GenerateTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, g.cfg.GenerateTimeout)
			defer cancel()
		}

		unlock, err := g.locker.Lock(fctx, r.target)
		if err != nil {
			return false, fmt.Errorf("lock %s: %w", r.req.Path, err)
		}
		defer unlock()

		if storage.Exists(r.target) {
			return false, nil
		}
		data, err := g.generator.Generate(fctx, original, spec.Transform, spec.Args, r.req.Ext)
		if err != nil {
			return false, err
		}
		if err := g.publisher.Write(r.target, data); err != nil {
			return false, err
		}
		g.logger.Infow("variant stored", "path", r.req.Path, "transform", spec.Transform, "args", spec.Args, "bytes", len(data))
		return true, nil
	})

	var v any
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		v = res.Val
	}
	r.source = r.target
	r.generated = v.(bool)
	return nil
}

// placeholder looks for a stand-in named after the token, then after the
// dimensions the transform reports.
func (g *Gate) placeholder(r *request, spec variant.Spec, t transform.Transform) error {
	if !g.cfg.AutoFallback {
		return nil
	}

	names := []string{spec.Token + "." + g.cfg.PlaceholderExt}
	if t != nil {
		if w, h := t.Dimensions(spec.Args); w != "" || h != "" {
			names = append(names, w+"x"+h+"."+g.cfg.PlaceholderExt)
		}
	}

	for _, name := range names {
		candidate := filepath.Join(g.cfg.PlaceholderDir, name)
		if !storage.Exists(candidate) {
			continue
		}
		if !g.cfg.Store {
			r.source = candidate
			return nil
		}
		if err := g.publisher.Link(candidate, r.target); err != nil {
			return err
		}
		r.source = r.target
		return nil
	}
	return nil
}

// finish is the terminal state: anything still without content gets the
// fallback asset, linked at the target when results are stored.
func (g *Gate) finish(r *request) (*Result, error) {
	if r.body != nil {
		return &Result{
			Status:      r.status,
			Body:        r.body,
			ContentType: contentType("", r.req.Ext),
			Name:        path.Base(r.req.Path),
			Generated:   r.generated,
		}, nil
	}

	if r.source == "" {
		switch {
		case storage.Exists(r.target):
			r.source = r.target
		case !storage.Exists(g.cfg.Fallback):
			g.logger.Warnw("fallback asset missing", "fallback", g.cfg.Fallback)
			return &Result{Status: r.status, Name: path.Base(r.req.Path)}, nil
		case g.cfg.Store:
			if err := g.publisher.Link(g.cfg.Fallback, r.target); err != nil {
				return nil, err
			}
			r.source = r.target
		default:
			r.source = g.cfg.Fallback
		}
	}

	res := g.fileResult(r.source, r.status, r.req)
	res.Generated = r.generated
	return res, nil
}

// fallbackOnly serves the fallback for paths that cannot name a target.
func (g *Gate) fallbackOnly(status int) (*Result, error) {
	if !storage.Exists(g.cfg.Fallback) {
		return &Result{Status: status}, nil
	}
	return &Result{
		Status:      status,
		Path:        g.cfg.Fallback,
		ContentType: contentType(g.cfg.Fallback, filepath.Ext(g.cfg.Fallback)),
		Name:        filepath.Base(g.cfg.Fallback),
	}, nil
}

func (g *Gate) fileResult(p string, status int, req variant.Request) *Result {
	return &Result{
		Status:      status,
		Path:        p,
		ContentType: contentType(p, filepath.Ext(p)),
		Name:        path.Base(req.Path),
	}
}

// contentType goes by extension and sniffs the file when the extension is
// unknown.
func contentType(file, ext string) string {
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if file != "" {
		if m, err := mimetype.DetectFile(file); err == nil {
			return m.String()
		}
	}
	return "application/octet-stream"
}
