package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tidesync/replica/event"
	"github.com/tidesync/replica/transport"
	"github.com/tidesync/replica/wire"
	"github.com/tidesync/replica/world"
)

// Manifest is the declarative component and channel table both peers load
// at startup. Ids are the out-of-band agreement the wire format relies on;
// codecs are still bound in code, looked up by name.
type Manifest struct {
	Components []ComponentEntry `yaml:"components"`
	Channels   []ChannelEntry   `yaml:"channels"`
}

type ComponentEntry struct {
	ID   uint16 `yaml:"id"`
	Name string `yaml:"name"`
}

type ChannelEntry struct {
	ID        uint8  `yaml:"id"`
	Name      string `yaml:"name"`
	Direction string `yaml:"direction"` // client_to_server | server_to_client
	Delivery  string `yaml:"delivery"`  // unreliable | unordered | ordered
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	compIDs := make(map[uint16]string, len(m.Components))
	compNames := make(map[string]bool, len(m.Components))
	for _, c := range m.Components {
		if prev, ok := compIDs[c.ID]; ok {
			return wire.ConfigErrorf("component id %d used by both %q and %q", c.ID, prev, c.Name)
		}
		if compNames[c.Name] {
			return wire.ConfigErrorf("component name %q declared twice", c.Name)
		}
		compIDs[c.ID] = c.Name
		compNames[c.Name] = true
	}

	chanIDs := make(map[uint8]string, len(m.Channels))
	for _, ch := range m.Channels {
		if ch.ID == uint8(transport.ReplicationChannel) {
			return wire.ConfigErrorf("channel %q uses reserved id %d", ch.Name, ch.ID)
		}
		if prev, ok := chanIDs[ch.ID]; ok {
			return wire.ConfigErrorf("channel id %d used by both %q and %q", ch.ID, prev, ch.Name)
		}
		chanIDs[ch.ID] = ch.Name
		if _, err := ch.ParseDirection(); err != nil {
			return err
		}
		if _, err := ch.ParseDelivery(); err != nil {
			return err
		}
	}
	return nil
}

// ComponentID resolves a component name to its agreed type id.
func (m *Manifest) ComponentID(name string) (world.ComponentType, error) {
	for _, c := range m.Components {
		if c.Name == name {
			return world.ComponentType(c.ID), nil
		}
	}
	return 0, wire.ConfigErrorf("component %q not in manifest", name)
}

// Channel resolves a channel name to its entry.
func (m *Manifest) Channel(name string) (ChannelEntry, error) {
	for _, ch := range m.Channels {
		if ch.Name == name {
			return ch, nil
		}
	}
	return ChannelEntry{}, wire.ConfigErrorf("channel %q not in manifest", name)
}

func (c ChannelEntry) ParseDirection() (event.Direction, error) {
	switch c.Direction {
	case "client_to_server":
		return event.ClientToServer, nil
	case "server_to_client":
		return event.ServerToClient, nil
	default:
		return 0, wire.ConfigErrorf("channel %q: unknown direction %q", c.Name, c.Direction)
	}
}

func (c ChannelEntry) ParseDelivery() (transport.DeliveryMode, error) {
	switch c.Delivery {
	case "unreliable":
		return transport.Unreliable, nil
	case "unordered":
		return transport.Unordered, nil
	case "ordered":
		return transport.Ordered, nil
	default:
		return 0, wire.ConfigErrorf("channel %q: unknown delivery %q", c.Name, c.Delivery)
	}
}

// Register creates every manifest channel on the registry with the given
// per-channel codecs, keyed by channel name.
func (m *Manifest) Register(reg *event.Registry, codecs map[string]*event.VariantCodec) error {
	for _, ch := range m.Channels {
		codec, ok := codecs[ch.Name]
		if !ok {
			return wire.ConfigErrorf("no codec bound for channel %q", ch.Name)
		}
		dir, err := ch.ParseDirection()
		if err != nil {
			return err
		}
		mode, err := ch.ParseDelivery()
		if err != nil {
			return err
		}
		if _, err := reg.Register(transport.ChannelID(ch.ID), dir, mode, codec); err != nil {
			return err
		}
	}
	return nil
}
