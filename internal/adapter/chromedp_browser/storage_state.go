package chromedp_browser

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/user/listing-harvester/internal/repository"
)

// StorageState is a saved browser session: cookies plus per-origin
// localStorage, in the layout written by Playwright's storageState().
type StorageState struct {
	Cookies []StoredCookie `json:"cookies"`
	Origins []StoredOrigin `json:"origins"`
}

type StoredCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

type StoredOrigin struct {
	Origin       string        `json:"origin"`
	LocalStorage []StoredEntry `json:"localStorage"`
}

type StoredEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadStorageState reads the session file. Any failure is reported as
// repository.ErrSessionUnavailable.
func LoadStorageState(path string) (*StorageState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", repository.ErrSessionUnavailable, path, err)
	}
	var state StorageState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", repository.ErrSessionUnavailable, path, err)
	}
	return &state, nil
}

// CookieParams converts the stored cookies for network.SetCookies.
// Session cookies (expires <= 0) keep no expiry.
func (s *StorageState) CookieParams() []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		if c.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax":
			p.SameSite = network.CookieSameSiteLax
		case "none":
			p.SameSite = network.CookieSameSiteNone
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			exp := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}

// LocalStorageScript returns a script that seeds localStorage for the
// document's origin, or "" when nothing is stored.
func (s *StorageState) LocalStorageScript() (string, error) {
	byOrigin := make(map[string]map[string]string)
	for _, o := range s.Origins {
		if o.Origin == "" || len(o.LocalStorage) == 0 {
			continue
		}
		entries := byOrigin[o.Origin]
		if entries == nil {
			entries = make(map[string]string, len(o.LocalStorage))
			byOrigin[o.Origin] = entries
		}
		for _, e := range o.LocalStorage {
			entries[e.Name] = e.Value
		}
	}
	if len(byOrigin) == 0 {
		return "", nil
	}

	payload, err := json.Marshal(byOrigin)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
	const stored = %s;
	const entries = stored[window.location.origin];
	if (!entries) { return; }
	try {
		for (const [k, v] of Object.entries(entries)) {
			window.localStorage.setItem(k, v);
		}
	} catch (e) {}
})();`, payload), nil
}
