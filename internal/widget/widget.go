package widget

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/webident/loginza/internal/config"
	"github.com/webident/loginza/pkg/metrics"
)

// Kind selects one of the four fixed widget fragments.
type Kind int

const (
	Iframe Kind = iota
	Button
	Icons
	StringLink
)

func (k Kind) String() string {
	switch k {
	case Iframe:
		return "iframe"
	case Button:
		return "button"
	case Icons:
		return "icons"
	case StringLink:
		return "string"
	}
	return "unknown"
}

// ParseKind maps a widget name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "iframe":
		return Iframe, nil
	case "button":
		return Button, nil
	case "icons":
		return Icons, nil
	case "string":
		return StringLink, nil
	}
	return 0, fmt.Errorf("unknown widget kind %q", s)
}

// Options are the per-render overrides; empty fields fall back to the
// configured defaults.
type Options struct {
	Lang         string
	Provider     string
	ProvidersSet string // comma-separated
	Width        string
	Height       string
	ID           string
}

// defaultProviderTitles lists every provider the broker supports with its
// default display name; config.ProviderTitles overrides entries.
var defaultProviderTitles = map[string]string{
	"google":        "Google Accounts",
	"yandex":        "Yandex",
	"mailruapi":     "Mail.ru API",
	"mailru":        "Mail.ru",
	"vkontakte":     "Vkontakte",
	"facebook":      "Facebook",
	"twitter":       "Twitter",
	"odnoklassniki": "Odnoklassniki",
	"loginza":       "Loginza",
	"myopenid":      "MyOpenID",
	"webmoney":      "WebMoney",
	"rambler":       "Rambler",
	"flickr":        "Flickr",
	"lastfm":        "Last.fm",
	"verisign":      "Verisign",
	"aol":           "AOL",
	"openid":        "OpenID",
	"livejournal":   "LiveJournal",
}

// Renderer composes login-widget HTML fragments from configuration and
// per-render options. Purely deterministic string composition.
type Renderer struct {
	cfg    config.LoginzaConfig
	titles map[string]string
}

func NewRenderer(cfg config.LoginzaConfig) *Renderer {
	titles := make(map[string]string, len(defaultProviderTitles))
	for k, v := range defaultProviderTitles {
		titles[k] = v
	}
	for k, v := range cfg.ProviderTitles {
		if _, ok := titles[k]; ok {
			titles[k] = v
		}
	}
	return &Renderer{cfg: cfg, titles: titles}
}

// Render produces the HTML fragment for the given kind. Caption is ignored
// for the iframe widget.
func (r *Renderer) Render(kind Kind, caption string, opts Options) (string, error) {
	if opts.Lang == "" {
		opts.Lang = r.cfg.DefaultLanguage
	}

	var html string
	switch kind {
	case Iframe:
		width := opts.Width
		if width == "" {
			width = r.cfg.IframeWidth
		}
		height := opts.Height
		if height == "" {
			height = r.cfg.IframeHeight
		}
		html = fmt.Sprintf(`%s
<iframe src="%s/api/widget?overlay=loginza&%slang=%s&token_url=%s"
style="width:%s;height:%s;" scrolling="no" frameborder="no" %s></iframe>`,
			r.script(), r.cfg.WidgetURL, r.providersParams(opts), opts.Lang, r.returnURL(), width, height, idAttr(opts.ID))
	case Button:
		html = fmt.Sprintf(`%s
<a href="%s/api/widget?%slang=%s&token_url=%s" rel="nofollow" class="loginza" %s>
    <img src="%s" alt="%s" title="%s"/>
</a>`,
			r.script(), r.cfg.WidgetURL, r.providersParams(opts), opts.Lang, r.returnURL(), idAttr(opts.ID),
			r.cfg.ButtonImgURL, caption, caption)
	case Icons:
		html = fmt.Sprintf(`%s
%s
<a href="%s/api/widget?%slang=%s&token_url=%s" rel="nofollow" class="loginza" %s>
    %s
</a>`,
			r.script(), caption, r.cfg.WidgetURL, r.providersParams(opts), opts.Lang, r.returnURL(), idAttr(opts.ID),
			r.icons(opts))
	case StringLink:
		html = fmt.Sprintf(`%s
<a href="%s/api/widget?%slang=%s&token_url=%s" rel="nofollow" class="loginza" %s>
    %s
</a>`,
			r.script(), r.cfg.WidgetURL, r.providersParams(opts), opts.Lang, r.returnURL(), idAttr(opts.ID), caption)
	default:
		return "", fmt.Errorf("unknown widget kind %d", kind)
	}

	metrics.WidgetsRendered.WithLabelValues(kind.String()).Inc()
	return html, nil
}

func (r *Renderer) script() string {
	return fmt.Sprintf(`<script src="%s/js/widget.js" type="text/javascript"></script>`, r.cfg.WidgetURL)
}

// returnURL is the URL-encoded absolute callback the broker redirects to.
func (r *Renderer) returnURL() string {
	return url.QueryEscape("https://" + r.cfg.SiteDomain + r.cfg.CallbackPath)
}

// providersSet filters the requested (or default) set down to known providers.
func (r *Renderer) providersSet(opts Options) []string {
	list := opts.ProvidersSet
	if list == "" {
		list = r.cfg.DefaultProvidersSet
	}
	var set []string
	if list != "" {
		for _, p := range strings.Split(list, ",") {
			p = strings.TrimSpace(p)
			if _, ok := r.titles[p]; ok {
				set = append(set, p)
			}
		}
	}
	return set
}

// providersParams builds the providers_set/provider query prefix, with a
// trailing "&" when any parameter is present.
func (r *Renderer) providersParams(opts Options) string {
	var params []string

	if set := r.providersSet(opts); len(set) > 0 {
		params = append(params, "providers_set="+strings.Join(set, ","))
	}

	provider := opts.Provider
	if provider == "" {
		provider = r.cfg.DefaultProvider
	}
	if _, ok := r.titles[provider]; ok {
		params = append(params, "provider="+provider)
	}

	if len(params) == 0 {
		return ""
	}
	return strings.Join(params, "&") + "&"
}

// icons renders one img tag per provider. Without an explicit set the
// configured icons providers are used, and failing that every known provider.
func (r *Renderer) icons(opts Options) string {
	set := r.providersSet(opts)
	if len(set) < 1 {
		if r.cfg.IconsProviders != "" {
			set = strings.Split(r.cfg.IconsProviders, ",")
		} else {
			for p := range r.titles {
				set = append(set, p)
			}
			sort.Strings(set)
		}
	}

	imgs := make([]string, 0, len(set))
	for _, provider := range set {
		provider = strings.TrimSpace(provider)
		title, ok := r.titles[provider]
		if !ok {
			continue
		}
		imgURL, ok := r.cfg.IconsImgURLs[provider]
		if !ok {
			imgURL = fmt.Sprintf("%s/img/widget/%s_ico.gif", r.cfg.WidgetURL, provider)
		}
		imgs = append(imgs, fmt.Sprintf(`<img src="%s" alt="%s" title="%s">`, imgURL, title, title))
	}
	return strings.Join(imgs, "\r\n")
}

func idAttr(id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf(`id="%s"`, id)
}
