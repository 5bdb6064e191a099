package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidesync/replica/event"
	"github.com/tidesync/replica/transport"
	"github.com/tidesync/replica/wire"
	"github.com/tidesync/replica/world"
)

const goodManifest = `
components:
  - {id: 1, name: position}
  - {id: 2, name: health}
channels:
  - {id: 1, name: player_input, direction: client_to_server, delivery: ordered}
  - {id: 2, name: chat, direction: server_to_client, delivery: unordered}
`

func TestParseManifest_Resolution(t *testing.T) {
	m, err := ParseManifest([]byte(goodManifest))
	require.NoError(t, err)

	id, err := m.ComponentID("health")
	require.NoError(t, err)
	assert.Equal(t, world.ComponentType(2), id)

	_, err = m.ComponentID("mana")
	var cerr *wire.ConfigError
	require.ErrorAs(t, err, &cerr)

	ch, err := m.Channel("player_input")
	require.NoError(t, err)
	dir, err := ch.ParseDirection()
	require.NoError(t, err)
	assert.Equal(t, event.ClientToServer, dir)
	mode, err := ch.ParseDelivery()
	require.NoError(t, err)
	assert.Equal(t, transport.Ordered, mode)
}

func TestParseManifest_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"duplicate component id": `
components:
  - {id: 1, name: position}
  - {id: 1, name: health}
`,
		"duplicate component name": `
components:
  - {id: 1, name: position}
  - {id: 2, name: position}
`,
		"reserved channel id": `
channels:
  - {id: 0, name: sneaky, direction: client_to_server, delivery: ordered}
`,
		"duplicate channel id": `
channels:
  - {id: 1, name: a, direction: client_to_server, delivery: ordered}
  - {id: 1, name: b, direction: client_to_server, delivery: ordered}
`,
		"bad direction": `
channels:
  - {id: 1, name: a, direction: sideways, delivery: ordered}
`,
		"bad delivery": `
channels:
  - {id: 1, name: a, direction: client_to_server, delivery: carrier_pigeon}
`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(body))
			var cerr *wire.ConfigError
			require.ErrorAs(t, err, &cerr)
		})
	}
}

func TestManifest_RegisterChannels(t *testing.T) {
	m, err := ParseManifest([]byte(goodManifest))
	require.NoError(t, err)

	vc := event.NewVariantCodec()
	reg := event.NewRegistry()
	require.NoError(t, m.Register(reg, map[string]*event.VariantCodec{
		"player_input": vc,
		"chat":         vc,
	}))

	ch, ok := reg.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, event.ClientToServer, ch.Direction())
	assert.Equal(t, transport.Ordered, ch.Mode())

	// A channel without a bound codec fails registration.
	err = m.Register(event.NewRegistry(), map[string]*event.VariantCodec{
		"player_input": vc,
	})
	var cerr *wire.ConfigError
	require.ErrorAs(t, err, &cerr)
}
