// Package browser provides disposable rendering surfaces backed by headless
// Chrome. Every surface lives in its own incognito context and is closed
// after one export; surfaces are never pooled or reused.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/layout"
)

// ErrUnavailable is returned when no browser can be started or reached
var ErrUnavailable = errors.New("browser unavailable")

// Surface is an isolated page that can lay out, measure and capture a document
type Surface interface {
	// Load replaces the page with document at the given viewport width and
	// waits for it and all of its images to finish loading.
	Load(ctx context.Context, document string, viewportWidth int) error
	// Measure returns the geometry of every element matching selector
	Measure(ctx context.Context, selector string) ([]layout.Box, error)
	// ApplyMargins adds top spacing to the matched elements by index
	ApplyMargins(ctx context.Context, selector string, adjustments []layout.Adjustment) error
	ContentHeight(ctx context.Context) (float64, error)
	// Capture rasterizes the area from the top of the page as PNG
	Capture(ctx context.Context, width, height, scale float64) ([]byte, error)
	// PrintPDF runs the browser's own print pipeline
	PrintPDF(ctx context.Context, opts PrintOptions) ([]byte, error)
	Close() error
}

// Factory creates surfaces
type Factory interface {
	NewSurface(ctx context.Context) (Surface, error)
	Available(ctx context.Context) bool
}

// PrintOptions are passed to the print pipeline. Sizes are in inches.
type PrintOptions struct {
	PaperWidth      float64
	PaperHeight     float64
	Margin          float64
	PrintBackground bool
	// PreferCSSPageSize lets an @page rule in the document win
	PreferCSSPageSize bool
}

// A4 returns print options for an A4 page with the given margin in millimetres
func A4(marginMM float64) PrintOptions {
	const mmPerInch = 25.4
	return PrintOptions{
		PaperWidth:        210 / mmPerInch,
		PaperHeight:       297 / mmPerInch,
		Margin:            marginMM / mmPerInch,
		PrintBackground:   true,
		PreferCSSPageSize: true,
	}
}

// Config holds browser configuration
type Config struct {
	Bin               string        `yaml:"bin"`
	DebuggerURL       string        `yaml:"debugger_url"`
	Headless          bool          `yaml:"headless"`
	Flags             []string      `yaml:"flags,omitempty"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
	}
}

// Timeout returns the navigation timeout
func (c Config) Timeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Manager owns the Chrome process and hands out incognito surfaces
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	browser    *rod.Browser
	launch     *launcher.Launcher
	controlURL string
}

// NewManager creates a manager. Chrome is started lazily.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: logger.Named("browser")}
}

// Start connects to an existing Chrome or launches a new one
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx)
}

func (m *Manager) startLocked(ctx context.Context) error {
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.logger.Warn("stale browser connection, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(m.cfg.Headless)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		for _, raw := range m.cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("%w: launch chrome: %v", ErrUnavailable, err)
		}
		m.launch = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("%w: connect to chrome: %v", ErrUnavailable, err)
	}
	// The connection must outlive the request that started it.
	m.browser = b.Context(context.Background())
	m.controlURL = controlURL
	m.logger.Debug("browser connected", zap.String("control_url", controlURL))
	return nil
}

// Available reports whether a browser can be reached
func (m *Manager) Available(ctx context.Context) bool {
	return m.Start(ctx) == nil
}

// NewSurface opens a fresh incognito page
func (m *Manager) NewSurface(ctx context.Context) (Surface, error) {
	m.mu.Lock()
	if err := m.startLocked(ctx); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	b := m.browser
	m.mu.Unlock()

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	// Documents never run their own scripts; Eval from the surface still works.
	if err := (proto.EmulationSetScriptExecutionDisabled{Value: true}).Call(page); err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("disable scripts: %w", err)
	}
	return &pageSurface{page: page, context: incognito, timeout: m.cfg.Timeout()}, nil
}

// Close shuts the browser down and kills a launched process
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.launch != nil {
		m.launch.Cleanup()
		m.launch = nil
	}
	return err
}

type pageSurface struct {
	page    *rod.Page
	context *rod.Browser
	timeout time.Duration
}

func (s *pageSurface) p(ctx context.Context) *rod.Page {
	return s.page.Context(ctx).Timeout(s.timeout)
}

const waitImagesJS = `() => Promise.all(Array.from(document.images).map(img =>
	img.complete ? true : new Promise(resolve => { img.onload = img.onerror = () => resolve(true); })))`

func (s *pageSurface) Load(ctx context.Context, document string, viewportWidth int) error {
	page := s.p(ctx)
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            int(layout.PageHeightForWidth(float64(viewportWidth))),
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := page.SetDocumentContent(document); err != nil {
		return fmt.Errorf("set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	// Broken images resolve too, so one bad source cannot stall the export.
	if _, err := page.Eval(waitImagesJS); err != nil {
		return fmt.Errorf("wait images: %w", err)
	}
	return nil
}

const measureJS = `(sel) => JSON.stringify(Array.from(document.querySelectorAll(sel)).map((el, i) => {
	const r = el.getBoundingClientRect();
	return { index: i, top: r.top + window.scrollY, height: r.height };
}))`

func (s *pageSurface) Measure(ctx context.Context, selector string) ([]layout.Box, error) {
	res, err := s.p(ctx).Eval(measureJS, selector)
	if err != nil {
		return nil, fmt.Errorf("measure %s: %w", selector, err)
	}
	var boxes []layout.Box
	if err := json.Unmarshal([]byte(res.Value.Str()), &boxes); err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	return boxes, nil
}

const applyMarginsJS = `(sel, raw) => {
	const els = document.querySelectorAll(sel);
	for (const a of JSON.parse(raw)) {
		const el = els[a.index];
		if (!el) continue;
		const current = parseFloat(getComputedStyle(el).paddingTop) || 0;
		el.style.paddingTop = (current + a.extra_margin) + 'px';
	}
	return true;
}`

func (s *pageSurface) ApplyMargins(ctx context.Context, selector string, adjustments []layout.Adjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	raw, err := json.Marshal(adjustments)
	if err != nil {
		return err
	}
	if _, err := s.p(ctx).Eval(applyMarginsJS, selector, string(raw)); err != nil {
		return fmt.Errorf("apply margins: %w", err)
	}
	return nil
}

func (s *pageSurface) ContentHeight(ctx context.Context) (float64, error) {
	res, err := s.p(ctx).Eval(`() => document.documentElement.scrollHeight`)
	if err != nil {
		return 0, fmt.Errorf("content height: %w", err)
	}
	return res.Value.Num(), nil
}

func (s *pageSurface) Capture(ctx context.Context, width, height, scale float64) ([]byte, error) {
	data, err := s.p(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      0,
			Y:      0,
			Width:  width,
			Height: height,
			Scale:  scale,
		},
		CaptureBeyondViewport: true,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return data, nil
}

func (s *pageSurface) PrintPDF(ctx context.Context, opts PrintOptions) ([]byte, error) {
	width, height, margin := opts.PaperWidth, opts.PaperHeight, opts.Margin
	stream, err := s.p(ctx).PDF(&proto.PagePrintToPDF{
		PrintBackground:   opts.PrintBackground,
		PreferCSSPageSize: opts.PreferCSSPageSize,
		PaperWidth:        &width,
		PaperHeight:       &height,
		MarginTop:         &margin,
		MarginBottom:      &margin,
		MarginLeft:        &margin,
		MarginRight:       &margin,
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return data, nil
}

func (s *pageSurface) Close() error {
	err := s.page.Close()
	if cerr := s.context.Close(); err == nil {
		err = cerr
	}
	return err
}
