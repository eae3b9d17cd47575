package workflow

import (
	"context"
	"testing"

	"outreach-controlplane/services/lead"

	"github.com/stretchr/testify/require"
)

func TestTemplateComposer(t *testing.T) {
	l := &lead.Lead{FirstName: "Ada", LastName: "Lovelace", FullName: "Ada Lovelace", Company: "Analytical Engines"}

	out, err := TemplateComposer{}.Compose(context.Background(), "Hi {{first_name}}, how is {{company}}? {{unknown}}", l)
	require.NoError(t, err)
	require.Equal(t, "Hi Ada, how is Analytical Engines? {{unknown}}", out)

	_, err = TemplateComposer{}.Compose(context.Background(), " {{headline}} ", l)
	require.ErrorIs(t, err, ErrEmptyMessage)
}

type staticComposer string

func (s staticComposer) Compose(context.Context, string, *lead.Lead) (string, error) {
	return string(s), nil
}

func TestComposers_For(t *testing.T) {
	c := NewComposers()
	c.Register("sales_agent", staticComposer("generated"))

	out, err := c.For("sales_agent").Compose(context.Background(), "ignored", &lead.Lead{})
	require.NoError(t, err)
	require.Equal(t, "generated", out)

	require.IsType(t, TemplateComposer{}, c.For(""))
	require.IsType(t, TemplateComposer{}, c.For("other"))
}
