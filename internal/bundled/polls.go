package bundled

import (
	"context"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/plughost/internal/i18n"
	"github.com/dshills/plughost/internal/plugin"
	"github.com/dshills/plughost/internal/plugin/hostctx"
)

const pollsKey = "polls.items"

// Poll is a stored poll.
type Poll struct {
	ID       string    `json:"id"`
	Question string    `json:"question"`
	Options  []string  `json:"options"`
	Votes    []int     `json:"votes"`
	Closed   bool      `json:"closed"`
	Created  time.Time `json:"created"`
}

// Total returns the number of votes cast.
func (p Poll) Total() int {
	n := 0
	for _, v := range p.Votes {
		n += v
	}
	return n
}

var pollTemplates = template.Must(template.New("poll").Parse(`
{{- define "item" -}}
<article class="poll{{if .Closed}} closed{{end}}" data-id="{{.ID}}"><h3>{{.Question}}</h3><ol>
{{- range $i, $o := .Options}}<li>{{$o}} <span class="votes">{{index $.Votes $i}}</span></li>{{end -}}
</ol></article>
{{- end -}}
{{- define "list" -}}
<section class="polls"><h2>{{.Title}}</h2>
{{- if not .Polls}}<p class="empty">{{.Empty}}</p>{{end -}}
{{- range .Polls}}{{template "item" .}}{{end -}}
</section>
{{- end -}}
{{- define "results" -}}
<dialog class="poll-results"><h3>{{.Poll.Question}}</h3><p>{{.Poll.Total}} {{.Votes}}</p>
{{- if .Poll.Closed}}<p>{{.ClosedNotice}}</p>{{end}}</dialog>
{{- end -}}
`))

// pollPage carries translated labels into the list and results templates.
type pollPage struct {
	Title, Empty, Votes, ClosedNotice string

	Polls []Poll
	Poll  Poll
}

func execTemplate(name string, data any) (string, error) {
	var b strings.Builder
	if err := pollTemplates.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

type polls struct {
	// mu serializes read-modify-write cycles on the stored list.
	mu   sync.Mutex
	host atomic.Pointer[hostctx.Context]
	tr   atomic.Pointer[plugin.TranslateFunc]
}

// Polls returns the polls plugin.
func Polls() plugin.Descriptor {
	p := &polls{}
	return plugin.Descriptor{
		ID:          "polls",
		Name:        "Polls",
		Version:     "1.2.0",
		APIVersion:  "1.0",
		Description: "Create polls in the feed and vote on them.",
		Author:      "plughost",
		Capabilities: []plugin.Capability{
			plugin.CapabilityFeed,
			plugin.CapabilityComposer,
			plugin.CapabilityItemActions,
			plugin.CapabilityRoutes,
			plugin.CapabilityModals,
		},
		Translations: map[string]i18n.Resources{
			"en": {
				"title":        "Polls",
				"create":       "Create poll",
				"vote":         "Vote",
				"close":        "Close poll",
				"results":      "Results",
				"empty":        "No polls yet.",
				"votes":        "votes",
				"closedNotice": "This poll is closed.",
			},
			"de": {
				"title":        "Umfragen",
				"create":       "Umfrage erstellen",
				"vote":         "Abstimmen",
				"close":        "Umfrage schließen",
				"results":      "Ergebnisse",
				"empty":        "Noch keine Umfragen.",
				"votes":        "Stimmen",
				"closedNotice": "Diese Umfrage ist geschlossen.",
			},
		},
		Setup: p.setup,
	}
}

func (p *polls) setup(args plugin.SetupArgs) error {
	p.host.Store(args.Host)
	p.tr.Store(&args.Translate)

	args.Register(plugin.Exports{
		Feed: &plugin.FeedRenderer{Kind: "poll", Renderer: plugin.RenderFunc(p.renderItem)},
		Composer: &plugin.ComposerAction{
			ID:    "create-poll",
			Label: p.t("", "create"),
			Icon:  "chart-bar",
			Run:   p.create,
		},
		ItemActions: p.actions,
		Routes: []plugin.Route{
			{Path: "/polls", Element: plugin.RenderFunc(p.renderList)},
		},
		Modals: map[string]plugin.Renderable{
			"poll-results": plugin.RenderFunc(p.renderResults),
		},
		Menu: []plugin.NavItem{
			{ID: "polls", Label: p.t("", "title"), Icon: "chart-bar", Path: "/polls"},
		},
	})
	return nil
}

// t translates key for locale, the base locale when empty.
func (p *polls) t(locale, key string) string {
	if tr := p.tr.Load(); tr != nil {
		return tr.T(locale, key)
	}
	return key
}

func (p *polls) load(ctx context.Context) []Poll {
	var list []Poll
	loadJSON(ctx, p.host.Load().Storage, pollsKey, &list)
	return list
}

func (p *polls) find(ctx context.Context, id string) (Poll, bool) {
	for _, poll := range p.load(ctx) {
		if poll.ID == id {
			return poll, true
		}
	}
	return Poll{}, false
}

// update applies fn to the poll with id and stores the result.
func (p *polls) update(ctx context.Context, id string, fn func(*Poll) error) (Poll, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.load(ctx)
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if err := fn(&list[i]); err != nil {
			return Poll{}, err
		}
		if err := p.host.Load().Storage.Set(ctx, pollsKey, list); err != nil {
			return Poll{}, err
		}
		return list[i], nil
	}
	return Poll{}, fmt.Errorf("%w: poll %s", ErrNotFound, id)
}

// create adds a poll from composer input {question, options}.
func (p *polls) create(ctx context.Context, input plugin.Props) error {
	question := strings.TrimSpace(propString(input, "question"))
	if question == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	var options []string
	switch v := input["options"].(type) {
	case []any:
		for _, o := range v {
			if s, ok := o.(string); ok && strings.TrimSpace(s) != "" {
				options = append(options, strings.TrimSpace(s))
			}
		}
	case []string:
		options = v
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				options = append(options, s)
			}
		}
	}
	if len(options) < 2 {
		return fmt.Errorf("%w: a poll needs at least two options", ErrInvalidInput)
	}

	poll := Poll{
		ID:       uuid.NewString(),
		Question: question,
		Options:  options,
		Votes:    make([]int, len(options)),
		Created:  time.Now().UTC(),
	}

	p.mu.Lock()
	list := append(p.load(ctx), poll)
	err := p.host.Load().Storage.Set(ctx, pollsKey, list)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.host.Load().InsertText("[poll:" + poll.ID + "]")
	p.host.Load().Events.Emit(ctx, "poll.created", map[string]any{"id": poll.ID, "question": poll.Question})
	return nil
}

func (p *polls) vote(id string, option int) func(context.Context) error {
	return func(ctx context.Context) error {
		poll, err := p.update(ctx, id, func(poll *Poll) error {
			if poll.Closed {
				return ErrClosed
			}
			if option < 0 || option >= len(poll.Votes) {
				return fmt.Errorf("%w: option %d", ErrInvalidInput, option)
			}
			poll.Votes[option]++
			return nil
		})
		if err != nil {
			return err
		}
		p.host.Load().Events.Emit(ctx, "poll.voted", map[string]any{"id": id, "option": option, "total": poll.Total()})
		return nil
	}
}

func (p *polls) close(id string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := p.update(ctx, id, func(poll *Poll) error {
			poll.Closed = true
			return nil
		})
		if err != nil {
			return err
		}
		p.host.Load().Events.Emit(ctx, "poll.closed", map[string]any{"id": id})
		return nil
	}
}

// actions offers one vote action per option while the poll is open, a close
// action, and a results shortcut.
func (p *polls) actions(item plugin.Item) []plugin.ItemAction {
	if item.Kind != "poll" {
		return nil
	}
	poll, ok := p.find(context.Background(), item.ID)
	if !ok {
		return nil
	}

	var out []plugin.ItemAction
	if !poll.Closed {
		for i, o := range poll.Options {
			out = append(out, plugin.ItemAction{
				ID:    "vote-" + strconv.Itoa(i),
				Label: p.t("", "vote") + ": " + o,
				Icon:  "check",
				Run:   p.vote(poll.ID, i),
			})
		}
		out = append(out, plugin.ItemAction{ID: "close", Label: p.t("", "close"), Icon: "lock", Run: p.close(poll.ID)})
	}
	out = append(out, plugin.ItemAction{
		ID:    "results",
		Label: p.t("", "results"),
		Icon:  "chart-bar",
		Run: func(context.Context) error {
			p.host.Load().Navigate("/polls?id=" + poll.ID)
			return nil
		},
	})
	return out
}

// renderItem renders the poll named by props.id, or an inline poll given as
// props.question and props.options.
func (p *polls) renderItem(ctx context.Context, props plugin.Props) (string, error) {
	if id := propString(props, "id"); id != "" {
		poll, ok := p.find(ctx, id)
		if !ok {
			return "", fmt.Errorf("%w: poll %s", ErrNotFound, id)
		}
		return execTemplate("item", poll)
	}

	inline := Poll{Question: propString(props, "question")}
	if opts, ok := props["options"].([]any); ok {
		for _, o := range opts {
			inline.Options = append(inline.Options, fmt.Sprint(o))
		}
	}
	inline.Votes = make([]int, len(inline.Options))
	return execTemplate("item", inline)
}

// renderList renders every poll, newest first, with labels for props.locale.
func (p *polls) renderList(ctx context.Context, props plugin.Props) (string, error) {
	list := p.load(ctx)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Created.After(list[j].Created) })
	locale := propString(props, "locale")
	return execTemplate("list", pollPage{
		Title: p.t(locale, "title"),
		Empty: p.t(locale, "empty"),
		Polls: list,
	})
}

func (p *polls) renderResults(ctx context.Context, props plugin.Props) (string, error) {
	id := propString(props, "id")
	poll, ok := p.find(ctx, id)
	if !ok {
		return "", fmt.Errorf("%w: poll %q", ErrNotFound, id)
	}
	locale := propString(props, "locale")
	return execTemplate("results", pollPage{
		Votes:        p.t(locale, "votes"),
		ClosedNotice: p.t(locale, "closedNotice"),
		Poll:         poll,
	})
}
