package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/xraph/jobqueue/queue"
)

// Connections is the set of named queue connections a process can use.
type Connections struct {
	Default string
	Configs map[string]queue.Config
}

// Names returns the connection names in sorted order.
func (c Connections) Names() []string {
	names := make([]string, 0, len(c.Configs))
	for name := range c.Configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Drivers returns the distinct drivers the connections use.
func (c Connections) Drivers() []string {
	seen := make(map[string]bool)
	var drivers []string
	for _, name := range c.Names() {
		d := c.Configs[name].Driver
		if !seen[d] {
			seen[d] = true
			drivers = append(drivers, d)
		}
	}
	return drivers
}

// Apply registers every connection on m and sets its default.
func (c Connections) Apply(m *queue.Manager) {
	for name, cfg := range c.Configs {
		m.AddConnection(name, cfg)
	}
	m.SetDefaultConnection(c.Default)
}

type connectionFile struct {
	Default     string                    `json:"default"`
	Connections map[string]connectionSpec `json:"connections"`
}

type connectionSpec struct {
	Driver     string `json:"driver"`
	Collection string `json:"collection"`
	Queue      string `json:"queue"`
	Expire     int    `json:"expire"` // seconds
	Limit      int    `json:"limit"`
}

// Connections returns the connections from ConnectionsFile, or a single
// connection named DefaultConnection using Driver when no file is set.
func (s Settings) Connections() (Connections, error) {
	if s.ConnectionsFile != "" {
		c, err := LoadConnections(s.ConnectionsFile)
		if err != nil {
			return Connections{}, err
		}
		if c.Default == "" {
			c.Default = s.DefaultConnection
		}
		if _, ok := c.Configs[c.Default]; !ok {
			return Connections{}, fmt.Errorf("config: default connection %q is not defined in %s", c.Default, s.ConnectionsFile)
		}
		return c, nil
	}
	return Connections{
		Default: s.DefaultConnection,
		Configs: map[string]queue.Config{
			s.DefaultConnection: {Driver: s.Driver},
		},
	}, nil
}

// LoadConnections reads a JSON connections file of the form
//
//	{
//	  "default": "redis",
//	  "connections": {
//	    "redis": {"driver": "redis", "queue": "default", "expire": 60, "limit": 15}
//	  }
//	}
//
// expire is in seconds. Omitted fields take the connector defaults.
func LoadConnections(path string) (Connections, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Connections{}, fmt.Errorf("config: read connections: %w", err)
	}

	var f connectionFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return Connections{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(f.Connections) == 0 {
		return Connections{}, fmt.Errorf("config: %s defines no connections", path)
	}

	c := Connections{
		Default: f.Default,
		Configs: make(map[string]queue.Config, len(f.Connections)),
	}
	for name, fc := range f.Connections {
		if fc.Driver == "" {
			return Connections{}, fmt.Errorf("config: connection %q has no driver", name)
		}
		c.Configs[name] = queue.Config{
			Driver:     fc.Driver,
			Collection: fc.Collection,
			Queue:      fc.Queue,
			Expire:     time.Duration(fc.Expire) * time.Second,
			Limit:      fc.Limit,
		}
	}
	return c, nil
}
