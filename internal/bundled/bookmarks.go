package bundled

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/dshills/plughost/internal/i18n"
	"github.com/dshills/plughost/internal/plugin"
	"github.com/dshills/plughost/internal/plugin/hostctx"
)

const bookmarksKey = "bookmarks.items"

// Bookmark is a saved reference to a feed item.
type Bookmark struct {
	ItemID  string    `json:"itemId"`
	Kind    string    `json:"kind"`
	Title   string    `json:"title"`
	Created time.Time `json:"created"`
}

// Ref is the kind/id reference inserted into composed text.
func (b Bookmark) Ref() string {
	return b.Kind + "/" + b.ItemID
}

var bookmarkTemplate = template.Must(template.New("bookmarks").Parse(
	`<section class="bookmarks"><h2>{{.Title}}</h2>` +
		`{{if not .Items}}<p class="empty">{{.Empty}}</p>{{else}}<ul>` +
		`{{range .Items}}<li data-kind="{{.Kind}}" data-id="{{.ItemID}}">{{.Title}}</li>{{end}}` +
		`</ul>{{end}}</section>`))

type bookmarks struct {
	mu     sync.Mutex
	host   *hostctx.Context
	tr     plugin.TranslateFunc
	cancel func()
}

type bookmarkPage struct {
	Title, Empty string
	Items        []Bookmark
}

// Bookmarks returns the bookmarks plugin.
func Bookmarks() plugin.Descriptor {
	b := &bookmarks{}
	return plugin.Descriptor{
		ID:          "bookmarks",
		Name:        "Bookmarks",
		Version:     "0.4.0",
		APIVersion:  "1.0",
		Description: "Bookmark feed items and link them from the composer.",
		Author:      "plughost",
		Capabilities: []plugin.Capability{
			plugin.CapabilityItemActions,
			plugin.CapabilityRoutes,
			plugin.CapabilityComposer,
		},
		Translations: map[string]i18n.Resources{
			"en": {
				"title":      "Bookmarks",
				"bookmark":   "Bookmark",
				"unbookmark": "Remove bookmark",
				"insert":     "Insert bookmark",
				"empty":      "Nothing bookmarked.",
			},
			"fr": {
				"title":      "Favoris",
				"bookmark":   "Ajouter aux favoris",
				"unbookmark": "Retirer des favoris",
				"insert":     "Insérer un favori",
				"empty":      "Aucun favori.",
			},
		},
		Setup: b.setup,
	}
}

func (b *bookmarks) setup(args plugin.SetupArgs) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.host = args.Host
	b.tr = args.Translate
	b.cancel = args.Host.Events.On("poll.created", b.onPollCreated)
	b.mu.Unlock()

	args.Register(plugin.Exports{
		Composer: &plugin.ComposerAction{
			ID:    "insert-bookmark",
			Label: args.Translate.T("", "insert"),
			Icon:  "bookmark",
			Run:   b.insert,
		},
		ItemActions: b.actions,
		Routes: []plugin.Route{
			{Path: "/bookmarks", Element: plugin.RenderFunc(b.render)},
		},
		Menu: []plugin.NavItem{
			{ID: "bookmarks", Label: args.Translate.T("", "title"), Icon: "bookmark", Path: "/bookmarks"},
		},
		Attachments: func() []plugin.AttachmentSpec {
			return []plugin.AttachmentSpec{
				{ID: "bookmark", Label: args.Translate.T("", "bookmark"), Icon: "bookmark", Accept: []string{"text/uri-list"}},
			}
		},
	})
	return nil
}

func (b *bookmarks) t(locale, key string) string {
	b.mu.Lock()
	tr := b.tr
	b.mu.Unlock()
	return tr.T(locale, key)
}

func (b *bookmarks) storage() *hostctx.Storage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host.Storage
}

// list returns the stored bookmarks, oldest first.
func (b *bookmarks) list(ctx context.Context) []Bookmark {
	var out []Bookmark
	loadJSON(ctx, b.storage(), bookmarksKey, &out)
	return out
}

func (b *bookmarks) find(ctx context.Context, kind, id string) (Bookmark, bool) {
	for _, bm := range b.list(ctx) {
		if bm.Kind == kind && bm.ItemID == id {
			return bm, true
		}
	}
	return Bookmark{}, false
}

// add stores bm unless an entry for the same item exists.
func (b *bookmarks) add(ctx context.Context, bm Bookmark) error {
	store := b.storage()

	b.mu.Lock()
	defer b.mu.Unlock()
	var list []Bookmark
	loadJSON(ctx, store, bookmarksKey, &list)
	for _, existing := range list {
		if existing.Kind == bm.Kind && existing.ItemID == bm.ItemID {
			return nil
		}
	}
	if bm.Created.IsZero() {
		bm.Created = time.Now().UTC()
	}
	return store.Set(ctx, bookmarksKey, append(list, bm))
}

func (b *bookmarks) remove(ctx context.Context, kind, id string) error {
	store := b.storage()

	b.mu.Lock()
	defer b.mu.Unlock()
	var list []Bookmark
	loadJSON(ctx, store, bookmarksKey, &list)
	kept := list[:0]
	for _, bm := range list {
		if bm.Kind != kind || bm.ItemID != id {
			kept = append(kept, bm)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return store.Set(ctx, bookmarksKey, kept)
}

func (b *bookmarks) onPollCreated(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	id, _ := m["id"].(string)
	if id == "" {
		return
	}
	title, _ := m["question"].(string)
	_ = b.add(context.Background(), Bookmark{ItemID: id, Kind: "poll", Title: title})
}

// actions offers bookmark or unbookmark on any item with an id.
func (b *bookmarks) actions(item plugin.Item) []plugin.ItemAction {
	if item.ID == "" {
		return nil
	}
	if _, ok := b.find(context.Background(), item.Kind, item.ID); ok {
		return []plugin.ItemAction{{
			ID:    "unbookmark",
			Label: b.t("", "unbookmark"),
			Icon:  "bookmark-slash",
			Run: func(ctx context.Context) error {
				return b.remove(ctx, item.Kind, item.ID)
			},
		}}
	}

	title, _ := item.Data["title"].(string)
	if title == "" {
		title = item.Kind + " " + item.ID
	}
	return []plugin.ItemAction{{
		ID:    "bookmark",
		Label: b.t("", "bookmark"),
		Icon:  "bookmark",
		Run: func(ctx context.Context) error {
			return b.add(ctx, Bookmark{ItemID: item.ID, Kind: item.Kind, Title: title})
		},
	}}
}

// insert writes a reference to the bookmark named by input {kind, id} into
// the composer, or to the most recent bookmark when input is empty.
func (b *bookmarks) insert(ctx context.Context, input plugin.Props) error {
	kind, id := propString(input, "kind"), propString(input, "id")

	var bm Bookmark
	var ok bool
	if id == "" {
		list := b.list(ctx)
		if len(list) > 0 {
			bm, ok = list[len(list)-1], true
		}
	} else {
		bm, ok = b.find(ctx, kind, id)
	}
	if !ok {
		return fmt.Errorf("%w: bookmark %s/%s", ErrNotFound, kind, id)
	}

	b.mu.Lock()
	host := b.host
	b.mu.Unlock()
	host.InsertText("[bookmark:" + bm.Ref() + "]")
	return nil
}

func (b *bookmarks) render(ctx context.Context, props plugin.Props) (string, error) {
	list := b.list(ctx)
	if kind := propString(props, "kind"); kind != "" {
		filtered := list[:0]
		for _, bm := range list {
			if strings.EqualFold(bm.Kind, kind) {
				filtered = append(filtered, bm)
			}
		}
		list = filtered
	}

	var sb strings.Builder
	locale := propString(props, "locale")
	page := bookmarkPage{Title: b.t(locale, "title"), Empty: b.t(locale, "empty"), Items: list}
	if err := bookmarkTemplate.Execute(&sb, page); err != nil {
		return "", err
	}
	return sb.String(), nil
}
