package imagegen

import (
	"fmt"
	"sort"
	"strings"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/model"
)

// Registry 按 format 字符串分发到具体客户端
type Registry struct {
	clients map[string]Client
}

// NewRegistry registers every built-in format.
func NewRegistry(settings config.Getter, logPrefix string) *Registry {
	r := &Registry{clients: make(map[string]Client)}
	r.Register(NewOpenAIChatClient(settings, logPrefix))
	r.Register(NewOpenAIImagesClient(settings, logPrefix))
	r.Register(NewQwenClient(settings, logPrefix))
	r.Register(NewDoubaoClient(settings, logPrefix))
	return r
}

// Register adds or replaces the client for its format.
func (r *Registry) Register(c Client) {
	r.clients[strings.ToLower(c.Format())] = c
}

// Get returns the client for format; an empty format means openai.
func (r *Registry) Get(format string) (Client, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = model.FormatOpenAI
	}
	c, ok := r.clients[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return c, nil
}

func (r *Registry) Formats() []string {
	formats := make([]string, 0, len(r.clients))
	for f := range r.clients {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}
