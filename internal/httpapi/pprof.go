package httpapi

import (
	"crypto/subtle"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"

	"github.com/labstack/echo/v4"
)

// PprofConfig mounts net/http/pprof under Prefix on the API listener.
//
// Security: prefer a loopback API address; otherwise set Token or AllowInsecure.
type PprofConfig struct {
	Enabled       bool
	Prefix        string
	Token         string
	AllowInsecure bool

	MutexProfileFraction int
	BlockProfileRate     int
	MemProfileRate       int
}

// ApplyRuntimeRates sets the runtime profiling rates; 0 keeps Go defaults.
func ApplyRuntimeRates(cfg PprofConfig) {
	if cfg.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
	if cfg.MemProfileRate > 0 {
		runtime.MemProfileRate = cfg.MemProfileRate
	}
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func mountPprof(e *echo.Echo, cfg PprofConfig) {
	prefix := normalizePrefix(cfg.Prefix)
	base := strings.TrimSuffix(prefix, "/")

	g := e.Group(base, withToken(cfg.Token))
	g.GET("", func(c echo.Context) error {
		return c.Redirect(http.StatusPermanentRedirect, prefix)
	})
	g.GET("/cmdline", echo.WrapHandler(http.HandlerFunc(hpprof.Cmdline)))
	g.GET("/profile", echo.WrapHandler(http.HandlerFunc(hpprof.Profile)))
	g.Any("/symbol", echo.WrapHandler(http.HandlerFunc(hpprof.Symbol)))
	g.GET("/trace", echo.WrapHandler(http.HandlerFunc(hpprof.Trace)))
	g.GET("/*", echo.WrapHandler(pprofIndexAt(prefix)))
}

// pprof.Index assumes requests are rooted at /debug/pprof/; rewrite the path
// so custom prefixes work.
func pprofIndexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suffix := strings.TrimPrefix(r.URL.Path, prefix)
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + suffix
		hpprof.Index(w, r2)
	}
}

// withToken accepts "Authorization: Bearer <token>" or ?token=<token>.
// An empty token disables the check.
func withToken(token string) echo.MiddlewareFunc {
	tok := strings.TrimSpace(token)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if tok == "" {
			return next
		}
		return func(c echo.Context) error {
			got := c.QueryParam("token")
			if got == "" {
				ah := c.Request().Header.Get(echo.HeaderAuthorization)
				if after, found := strings.CutPrefix(ah, "Bearer "); found {
					got = strings.TrimSpace(after)
				}
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}
