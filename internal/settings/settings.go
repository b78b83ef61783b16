// Package settings defines the panel preferences shared by every
// attached inspection surface, the store interface behind them, and
// the change-notification plumbing store implementations embed.
package settings

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Display themes for the panel chrome.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// JSON display palettes the inspector can render with.
var JSONDisplayThemes = []string{
	"default",
	"monokai",
	"dracula",
	"solarized-light",
	"solarized-dark",
	"tomorrow-night",
}

// Settings is the whole preferences object. It is read and replaced
// atomically; there is no per-field patching.
type Settings struct {
	Theme                  string `json:"theme" koanf:"theme" validate:"oneof=light dark"`
	JSONDisplayTheme       string `json:"jsonDisplayTheme" koanf:"json_display_theme" validate:"oneof=default monokai dracula solarized-light solarized-dark tomorrow-night"`
	RawDataMinHeight       int    `json:"rawDataMinHeight" koanf:"raw_data_min_height" validate:"gte=0,lte=4096"`
	ClassNameMappingSource string `json:"classNameMappingSource" koanf:"class_name_mapping_source"`
	AlwaysExpandInspector  bool   `json:"alwaysExpandInspector" koanf:"always_expand_inspector"`
}

// Default returns the settings a fresh installation starts with.
func Default() Settings {
	return Settings{
		Theme:            ThemeLight,
		JSONDisplayTheme: "default",
		RawDataMinHeight: 100,
	}
}

var validate = validator.New()

// Validate checks field constraints before a settings object is
// accepted from a caller.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Store persists the settings object and notifies watchers on change.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Put(ctx context.Context, s Settings) error
	// Subscribe registers a watcher for whole-object change
	// notifications. The cancel func detaches it and closes the channel.
	Subscribe(buffer int) (<-chan Settings, func())
	Close() error
}

const defaultWatcherBuffer = 4

// Notifier fans settings snapshots out to watchers. Store
// implementations embed it and call Publish after a successful write.
type Notifier struct {
	mu     sync.Mutex
	watch  map[int]chan Settings
	nextID int
	closed bool
}

func NewNotifier() *Notifier {
	return &Notifier{watch: make(map[int]chan Settings)}
}

// Subscribe registers a watcher. Watchers that stop draining their
// channel miss intermediate snapshots rather than blocking writers.
func (n *Notifier) Subscribe(buffer int) (<-chan Settings, func()) {
	if buffer <= 0 {
		buffer = defaultWatcherBuffer
	}
	ch := make(chan Settings, buffer)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := n.nextID
	n.nextID++
	n.watch[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if existing, ok := n.watch[id]; ok {
			delete(n.watch, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish delivers a snapshot to every watcher without blocking. A
// full buffer loses its oldest snapshot so a laggard still converges
// on the latest state.
func (n *Notifier) Publish(s Settings) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.watch {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Close detaches every watcher.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.watch {
		delete(n.watch, id)
		close(ch)
	}
}
