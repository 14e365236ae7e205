package render_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homer-mine/homer/pkg/render"
)

func TestDashboardRenderer_Render_EmptyStoreProducesValidHTML(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	out, err := render.NewDashboardRenderer().Render(context.Background(), store)
	require.NoError(t, err)

	assert.Contains(t, out, "Homer Dashboard")
	assert.Contains(t, out, "<html")
}

func TestDashboardRenderer_Path(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ".homer/report.html", render.NewDashboardRenderer().Path())
}
