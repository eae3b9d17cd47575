package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"outreach-controlplane/services/lead"
)

var ErrEmptyMessage = errors.New("composed message is empty")

// Composer renders the message body sent to a lead.
type Composer interface {
	Compose(ctx context.Context, template string, l *lead.Lead) (string, error)
}

// TemplateComposer substitutes {{placeholders}} with lead profile fields.
type TemplateComposer struct{}

func (TemplateComposer) Compose(_ context.Context, template string, l *lead.Lead) (string, error) {
	r := strings.NewReplacer(
		"{{first_name}}", l.FirstName,
		"{{last_name}}", l.LastName,
		"{{full_name}}", l.FullName,
		"{{headline}}", l.Headline,
		"{{company}}", l.Company,
		"{{location}}", l.Location,
	)
	out := strings.TrimSpace(r.Replace(template))
	if out == "" {
		return "", ErrEmptyMessage
	}
	return out, nil
}

// Composers selects a Composer by workflow agent type and falls back to the
// template composer.
type Composers struct {
	mu       sync.RWMutex
	byAgent  map[string]Composer
	fallback Composer
}

func NewComposers() *Composers {
	return &Composers{
		byAgent:  map[string]Composer{},
		fallback: TemplateComposer{},
	}
}

func (c *Composers) Register(agentType string, composer Composer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byAgent[agentType] = composer
}

func (c *Composers) For(agentType string) Composer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if composer, ok := c.byAgent[agentType]; ok {
		return composer
	}
	return c.fallback
}
