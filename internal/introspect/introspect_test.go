package introspect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selectorheal/selectorheal/internal/drivertest"
)

func TestRun_ReturnsVisibleElements(t *testing.T) {
	fake := &drivertest.Fake{
		Elements: []drivertest.Element{
			{Tag: "button", TestID: "submit-btn", Text: "Submit", Visible: true},
			{Tag: "div", Text: "hidden panel", Visible: false},
		},
	}

	descriptors, err := Run(context.Background(), fake, 0, 0)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "button", descriptors[0].Tag)
	assert.Equal(t, "submit-btn", descriptors[0].Attributes["data-testid"])
}

func TestRun_DefaultsApplied(t *testing.T) {
	fake := &drivertest.Fake{Elements: []drivertest.Element{{Tag: "a", Visible: true}}}

	descriptors, err := Run(context.Background(), fake, -1, -1)
	require.NoError(t, err)
	assert.Len(t, descriptors, 1)
}

func TestRunForLLM(t *testing.T) {
	fake := &drivertest.Fake{Elements: []drivertest.Element{{Tag: "button", Text: "Go", Visible: true}}}

	descriptors, err := RunForLLM(context.Background(), fake)
	require.NoError(t, err)
	assert.Len(t, descriptors, 1)
}

