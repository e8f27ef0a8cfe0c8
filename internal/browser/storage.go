// internal/browser/storage.go
package browser

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/domstorage"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

// CaptureState snapshots every cookie in the browser plus the current origin's
// localStorage. With extended set the origin's IndexedDB is included; an
// environment that cannot enumerate IndexedDB makes the capture fail so the
// caller can fall back to the narrow form. Origins seeded by RestoreState that
// the tab is not on are captured too.
func (p *ChromePage) CaptureState(ctx context.Context, extended bool) (*schemas.StorageState, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	var origin schemas.OriginState
	if err := p.Evaluate(ctx, localStorageJS, &origin); err != nil {
		return nil, fmt.Errorf("read localStorage: %w", err)
	}

	if extended {
		var dbs []schemas.IndexedDBDatabase
		if err := p.Evaluate(ctx, indexedDBJS, &dbs); err != nil {
			return nil, fmt.Errorf("read IndexedDB: %w", err)
		}
		origin.IndexedDB = dbs
	}

	state := &schemas.StorageState{
		Cookies: convertCookies(cookies),
		Origins: []schemas.OriginState{},
	}
	if origin.LocalStorage == nil {
		origin.LocalStorage = []schemas.NameValue{}
	}
	if isWebOrigin(origin.Origin) {
		state.Origins = append(state.Origins, origin)
	}

	for _, restored := range p.restored {
		if restored.Origin == origin.Origin || !isWebOrigin(restored.Origin) {
			continue
		}
		items, err := p.localStorageOf(ctx, restored.Origin)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("read localStorage of %s: %w", restored.Origin, err)
			}
			p.logger.Debug("Keeping restored storage for origin.", zap.String("origin", restored.Origin), zap.Error(err))
		}
		state.Origins = append(state.Origins, otherOrigin(restored, items, extended))
	}
	return state, nil
}

// localStorageOf reads an origin's localStorage without navigating to it.
func (p *ChromePage) localStorageOf(ctx context.Context, origin string) ([]domstorage.Item, error) {
	var items []domstorage.Item
	err := p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		if err := domstorage.Enable().Do(c); err != nil {
			return err
		}
		var err error
		items, err = domstorage.GetDOMStorageItems(&domstorage.StorageID{
			StorageKey:     domstorage.SerializedStorageKey(strings.TrimSuffix(origin, "/") + "/"),
			IsLocalStorage: true,
		}).Do(c)
		return err
	}))
	return items, err
}

// otherOrigin records an origin the tab is not on. Live localStorage wins when
// the browser holds any; an origin never loaded this session still has only
// its seed script, so its restored entries are kept.
func otherOrigin(restored schemas.OriginState, live []domstorage.Item, extended bool) schemas.OriginState {
	out := schemas.OriginState{Origin: restored.Origin, LocalStorage: []schemas.NameValue{}}
	for _, item := range live {
		if len(item) < 2 {
			continue
		}
		out.LocalStorage = append(out.LocalStorage, schemas.NameValue{Name: item[0], Value: item[1]})
	}
	if len(out.LocalStorage) == 0 {
		out.LocalStorage = append(out.LocalStorage, restored.LocalStorage...)
	}
	if extended {
		out.IndexedDB = restored.IndexedDB
	}
	return out
}

// RestoreState installs the snapshot's cookies and arranges for each origin's
// storage to be seeded on that origin's first document load.
func (p *ChromePage) RestoreState(ctx context.Context, state *schemas.StorageState) error {
	if state == nil {
		return nil
	}
	p.restored = append([]schemas.OriginState(nil), state.Origins...)

	params := make([]*network.CookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		params = append(params, cookieParam(c))
	}

	return p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		if len(params) > 0 {
			if err := network.SetCookies(params).Do(c); err != nil {
				return fmt.Errorf("set cookies: %w", err)
			}
		}
		for _, o := range state.Origins {
			if len(o.LocalStorage) == 0 && len(o.IndexedDB) == 0 {
				continue
			}
			id, err := page.AddScriptToEvaluateOnNewDocument(restoreOriginScript(o.Origin, o)).Do(c)
			if err != nil {
				return fmt.Errorf("inject storage seed for %s: %w", o.Origin, err)
			}
			p.logger.Debug("Injected storage seed.", zap.String("origin", o.Origin), zap.String("script_id", string(id)))
		}
		return nil
	}))
}

func convertCookies(in []*network.Cookie) []schemas.Cookie {
	out := make([]schemas.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		expires := c.Expires
		if c.Session || expires <= 0 {
			expires = -1
		}
		out = append(out, schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: convertSameSite(c.SameSite),
		})
	}
	return out
}

func convertSameSite(s network.CookieSameSite) schemas.CookieSameSite {
	switch s {
	case network.CookieSameSiteStrict:
		return schemas.CookieSameSiteStrict
	case network.CookieSameSiteNone:
		return schemas.CookieSameSiteNone
	default:
		return schemas.CookieSameSiteLax
	}
}

func cookieParam(c schemas.Cookie) *network.CookieParam {
	param := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	switch c.SameSite {
	case schemas.CookieSameSiteStrict:
		param.SameSite = network.CookieSameSiteStrict
	case schemas.CookieSameSiteNone:
		param.SameSite = network.CookieSameSiteNone
	case schemas.CookieSameSiteLax:
		param.SameSite = network.CookieSameSiteLax
	}
	if c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		ts := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
		param.Expires = &ts
	}
	return param
}

func isWebOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return (strings.EqualFold(u.Scheme, "http") || strings.EqualFold(u.Scheme, "https")) && u.Host != ""
}
