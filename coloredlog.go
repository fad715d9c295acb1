// Package coloredlog times every request served by a Fiber application and
// writes one colorized key=value line per request to the host logger.
package coloredlog

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/valyala/fasthttp"
)

// StartKey is the Locals key holding the request start time.
const StartKey = "coloredlog_start"

// ForwardedForHeader takes precedence over the connection address for the ip token.
const ForwardedForHeader = "X-Forwarded-For"

var (
	// ErrNilApp is returned by New when no application is given.
	ErrNilApp = errors.New("coloredlog: no app object was passed")
	// ErrMissingStart is returned by OnRequestEnd when OnRequestStart never ran
	// for the request.
	ErrMissingStart = errors.New("coloredlog: request start time not recorded")
)

// Hooks is the pair of lifecycle callbacks a request pipeline invokes around
// the route handler.
type Hooks interface {
	OnRequestStart(c *fiber.Ctx)
	OnRequestEnd(c *fiber.Ctx) (*fasthttp.Response, error)
}

// Logger is the informational sink request lines are written to.
// *slog.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
}

// Recorder receives one observation per logged request.
type Recorder interface {
	RecordRequest(method string, status int, duration float64)
}

// Config defines the config for the request logger.
type Config struct {
	// Exclusions lists literal request paths that are never logged.
	Exclusions []string

	// NoLogIP drops the trailing ip token.
	NoLogIP bool

	// Logger receives the rendered lines. Defaults to Fiber's global logger.
	Logger Logger

	// Metrics is optional.
	Metrics Recorder

	// Colors is the palette tokens are painted with. Defaults to fiber.DefaultColors.
	Colors fiber.Colors

	// DisableColors renders plain tokens.
	DisableColors bool

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// RequestLogger implements Hooks. It is immutable after New returns and safe
// for concurrent use by all requests.
type RequestLogger struct {
	app        *fiber.App
	exclusions []string
	excluded   map[string]struct{}
	noLogIP    bool
	logger     Logger
	metrics    Recorder
	colors     fiber.Colors
	plain      bool
	now        func() time.Time
}

var _ Hooks = (*RequestLogger)(nil)

// New builds a RequestLogger and registers its hooks on app.
func New(app *fiber.App, config ...Config) (*RequestLogger, error) {
	if app == nil {
		return nil, ErrNilApp
	}

	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	l := &RequestLogger{
		app:        app,
		exclusions: append([]string(nil), cfg.Exclusions...),
		excluded:   make(map[string]struct{}, len(cfg.Exclusions)),
		noLogIP:    cfg.NoLogIP,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		colors:     cfg.Colors,
		plain:      cfg.DisableColors,
		now:        cfg.Now,
	}
	for _, path := range l.exclusions {
		l.excluded[path] = struct{}{}
	}
	if l.logger == nil {
		l.logger = hostLogger{}
	}
	if l.colors == (fiber.Colors{}) {
		l.colors = fiber.DefaultColors
	}
	if l.now == nil {
		l.now = time.Now
	}

	app.Use(l.handle)
	return l, nil
}

// Exclusions returns a copy of the excluded paths in configured order.
func (l *RequestLogger) Exclusions() []string {
	return append([]string(nil), l.exclusions...)
}

// handle is the middleware registered on the app.
func (l *RequestLogger) handle(c *fiber.Ctx) error {
	l.OnRequestStart(c)

	// Resolve chain errors here so the logged status is the one sent.
	if chainErr := c.Next(); chainErr != nil {
		if err := c.App().ErrorHandler(c, chainErr); err != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	_, err := l.OnRequestEnd(c)
	return err
}

// OnRequestStart records the start time. It runs for excluded paths too.
func (l *RequestLogger) OnRequestStart(c *fiber.Ctx) {
	c.Locals(StartKey, l.now())
}

// OnRequestEnd logs the request unless its path is excluded and returns the
// response untouched.
func (l *RequestLogger) OnRequestEnd(c *fiber.Ctx) (*fasthttp.Response, error) {
	resp := c.Response()
	// Decoded path, so "/a%20b" matches an exclusion of "/a b".
	path := string(c.Request().URI().Path())
	if _, skip := l.excluded[path]; skip {
		return resp, nil
	}

	// Method is backed by a pooled buffer; Recorder implementations may keep it.
	method := utils.CopyString(c.Method())

	start, ok := c.Locals(StartKey).(time.Time)
	if !ok {
		return resp, fmt.Errorf("%w: %s %s", ErrMissingStart, method, path)
	}

	now := l.now()
	elapsed := roundSeconds(now.Sub(start))

	fields := []field{
		{"method", method, l.colors.Blue},
		{"path", path, l.colors.Blue},
		{"status", strconv.Itoa(resp.StatusCode()), l.colors.Yellow},
		{"duration", strconv.FormatFloat(elapsed, 'f', 2, 64), l.colors.Green},
		{"time", now.UTC().Format(time.RFC3339), l.colors.Magenta},
		{"host", stripPort(string(c.Request().Host())), l.colors.Red},
		{"params", formatParams(c.Context().QueryArgs()), l.colors.Blue},
	}
	if !l.noLogIP {
		fields = append(fields, field{"ip", clientIP(c), l.colors.Red})
	}

	l.logger.Info(l.render(fields))

	if l.metrics != nil {
		l.metrics.RecordRequest(method, resp.StatusCode(), elapsed)
	}

	return resp, nil
}

type field struct {
	name  string
	value string
	color string
}

func (l *RequestLogger) render(fields []field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		if !l.plain {
			b.WriteString(f.color)
		}
		b.WriteString(f.name)
		b.WriteByte('=')
		b.WriteString(f.value)
		if !l.plain {
			b.WriteString(l.colors.Reset)
		}
	}
	return b.String()
}

// roundSeconds converts d to seconds rounded to two decimals.
func roundSeconds(d time.Duration) float64 {
	if d < 0 {
		d = 0
	}
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}

func stripPort(host string) string {
	h, _, _ := strings.Cut(host, ":")
	return h
}

// clientIP returns the X-Forwarded-For value whenever the header is present,
// even if empty, and the connection address otherwise.
func clientIP(c *fiber.Ctx) string {
	var (
		fwd   string
		found bool
	)
	c.Request().Header.VisitAll(func(key, value []byte) {
		if !found && bytes.EqualFold(key, forwardedFor) {
			fwd, found = string(value), true
		}
	})
	if found {
		return fwd
	}
	return c.Context().RemoteIP().String()
}

var forwardedFor = []byte(ForwardedForHeader)

// formatParams renders query arguments as {'k': 'v'} in received order.
// Only the first value of a repeated key is kept.
func formatParams(args *fasthttp.Args) string {
	seen := make(map[string]struct{}, args.Len())
	var b strings.Builder
	b.WriteByte('{')
	args.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		if len(seen) > 1 {
			b.WriteString(", ")
		}
		b.WriteString(quote(k))
		b.WriteString(": ")
		b.WriteString(quote(string(value)))
	})
	b.WriteByte('}')
	return b.String()
}

// quote wraps s in single quotes, or in double quotes when s contains a
// single quote and no double quote. Backslashes and control whitespace are
// escaped.
func quote(s string) string {
	q := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 && strings.IndexByte(s, '"') < 0 {
		q = '"'
	}

	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(q)
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case q:
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	b.WriteByte(q)
	return b.String()
}

// hostLogger forwards to Fiber's global logger.
type hostLogger struct{}

func (hostLogger) Info(msg string, args ...any) {
	if len(args) == 0 {
		fiberlog.Info(msg)
		return
	}
	fiberlog.Infow(msg, args...)
}
