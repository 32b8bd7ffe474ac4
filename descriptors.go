package micro

import (
	"encoding/json"
	"time"
)

// Verb is one of the control-plane operations every service instance
// answers on its $SRV subjects.
type Verb int

const (
	PingVerb Verb = iota
	StatsVerb
	InfoVerb
)

const (
	// ErrorHeader carries the error description on error replies.
	ErrorHeader = "Nats-Service-Error"
	// ErrorCodeHeader carries the decimal error code on error replies.
	ErrorCodeHeader = "Nats-Service-Error-Code"

	PingResponseType  = "io.nats.micro.v1.ping_response"
	InfoResponseType  = "io.nats.micro.v1.info_response"
	StatsResponseType = "io.nats.micro.v1.stats_response"
)

func (v Verb) String() string {
	switch v {
	case PingVerb:
		return "PING"
	case StatsVerb:
		return "STATS"
	case InfoVerb:
		return "INFO"
	default:
		return ""
	}
}

// ServiceIdentity identifies one service instance.
type ServiceIdentity struct {
	Name     string            `json:"name"`
	ID       string            `json:"id"`
	Version  string            `json:"version"`
	Metadata map[string]string `json:"metadata"`
}

// Ping is the reply payload for PING requests.
type Ping struct {
	ServiceIdentity
	Type string `json:"type"`
}

// Info is the reply payload for INFO requests.
type Info struct {
	ServiceIdentity
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Endpoints   []EndpointInfo `json:"endpoints"`
}

// EndpointInfo describes a single registered endpoint.
type EndpointInfo struct {
	Name       string            `json:"name"`
	Subject    string            `json:"subject"`
	QueueGroup string            `json:"queue_group"`
	Metadata   map[string]string `json:"metadata"`
}

// Stats is the reply payload for STATS requests.
type Stats struct {
	ServiceIdentity
	Type      string           `json:"type"`
	Started   time.Time        `json:"started"`
	Endpoints []*EndpointStats `json:"endpoints"`
}

// EndpointStats holds the per-endpoint counters. ProcessingTime and
// AverageProcessingTime serialize as integer nanoseconds.
type EndpointStats struct {
	Name                  string          `json:"name"`
	Subject               string          `json:"subject"`
	QueueGroup            string          `json:"queue_group"`
	NumRequests           int             `json:"num_requests"`
	NumErrors             int             `json:"num_errors"`
	LastError             string          `json:"last_error"`
	ProcessingTime        time.Duration   `json:"processing_time"`
	AverageProcessingTime time.Duration   `json:"average_processing_time"`
	Data                  json.RawMessage `json:"data"`
}
