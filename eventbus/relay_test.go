package eventbus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/testutil"
)

func TestNATSRelay_PublishesEveryDeliveredType(t *testing.T) {
	b := newBus(t)
	pub := testutil.NewMockPublisher()
	relay := NewNATSRelay(pub, "widgets.events.", nil)
	detach := relay.Attach(b)

	require.NoError(t, b.EmitConfigChange(context.Background(),
		Event{ComponentID: "gauge.1", Section: datasource.SectionBase}))

	subjects := pub.Subjects()
	assert.ElementsMatch(t, []string{
		"widgets.events.config-changed.gauge_1",
		"widgets.events.base-config-changed.gauge_1",
	}, subjects)

	msgs := pub.Messages("widgets.events.base-config-changed.gauge_1")
	require.Len(t, msgs, 1)
	var ev Event
	require.NoError(t, json.Unmarshal(msgs[0], &ev))
	assert.Equal(t, "gauge.1", ev.ComponentID)
	assert.Equal(t, TypeBaseConfigChanged, ev.Type)

	detach()
	require.NoError(t, b.EmitConfigChange(context.Background(), Event{ComponentID: "x"}))
	assert.Len(t, pub.Subjects(), 2)
}

func TestNATSRelay_PublishErrorIsTransient(t *testing.T) {
	pub := testutil.NewMockPublisher()
	pub.FailWith(stderrors.New("nats down"))
	relay := NewNATSRelay(pub, "", nil)

	err := relay.Handle(context.Background(), Event{Type: TypeConfigChanged})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, DefaultSubjectPrefix+".config-changed._", relay.Subject(Event{Type: TypeConfigChanged}))
}
