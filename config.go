package micro

import (
	"fmt"
	"time"

	"github.com/nats-io/nuid"
)

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// StatsHandler supplies the opaque Data block of an endpoint's stats.
type StatsHandler func(*Endpoint) any

// DoneHandler runs once after Stop finishes tearing the service down.
type DoneHandler func(*Service)

// ErrHandler observes transport-level failures on the service's
// subscriptions.
type ErrHandler func(*Service, *BusError)

// Config describes a service. Name and Version are required; Version
// must be semver.
type Config struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	QueueGroup  string            `json:"queue_group"`

	// Default pending limits applied to every endpoint subscription.
	// Endpoint options override them per endpoint.
	PendingMsgsLimitByEndpoint  int
	PendingBytesLimitByEndpoint int

	// Now and GenerateID exist for tests; they default to
	// time.Now().UTC and nuid.Next.
	Now        func() time.Time
	GenerateID func() string

	// APIPrefix overrides the control-plane subject prefix, "$SRV" by
	// default.
	APIPrefix string

	StatsHandler StatsHandler
	DoneHandler  DoneHandler
	ErrorHandler ErrHandler
	Middleware   []Middleware

	OnStart func(*Service)
	OnStop  func(*Service)
}

func (c *Config) valid() error {
	if !nameRegexp.MatchString(c.Name) {
		return fmt.Errorf("%w: invalid service name %q", ErrConfigValidation, c.Name)
	}
	if !semVerRegexp.MatchString(c.Version) {
		return fmt.Errorf("%w: invalid version %q (expected semver)", ErrConfigValidation, c.Version)
	}
	if c.QueueGroup != "" && !subjectRegexp.MatchString(c.QueueGroup) {
		return fmt.Errorf("%w: invalid queue group %q", ErrConfigValidation, c.QueueGroup)
	}
	return nil
}

// normalize fills the injectable defaults in place.
func (c *Config) normalize() {
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	if c.GenerateID == nil {
		c.GenerateID = nuid.Next
	}
	if c.APIPrefix == "" {
		c.APIPrefix = APIPrefix
	}
}
