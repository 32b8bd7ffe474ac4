package micro

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultQueueGroup is used when neither the endpoint, its groups
	// nor the service set one.
	DefaultQueueGroup = "q"

	// APIPrefix is the default prefix for control-plane subjects.
	APIPrefix = "$SRV"
)

var (
	semVerRegexp = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)
	nameRegexp   = regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)
	// A subject must not contain spaces; '>' is only valid as the
	// final token.
	subjectRegexp = regexp.MustCompile(`^[^ >]*[>]?$`)
)

// ControlSubject returns the control-plane subject for verb, scoped by
// service and id. Both empty targets every service; a service alone
// targets all of its instances; service and id target one instance. An
// id without a service is invalid.
func ControlSubject(verb Verb, service, id string) (string, error) {
	return controlSubject(APIPrefix, verb, service, id)
}

// ControlSubjectWithPrefix is ControlSubject under a custom prefix.
func ControlSubjectWithPrefix(prefix string, verb Verb, service, id string) (string, error) {
	if prefix == "" {
		prefix = APIPrefix
	}
	return controlSubject(prefix, verb, service, id)
}

func controlSubject(prefix string, verb Verb, service, id string) (string, error) {
	verbStr := verb.String()
	if verbStr == "" {
		return "", fmt.Errorf("%w: %d", ErrVerbNotSupported, verb)
	}
	if service == "" && id != "" {
		return "", fmt.Errorf("%w: %w", ErrConfigValidation, ErrServiceNameRequired)
	}
	if service != "" && !nameRegexp.MatchString(service) {
		return "", fmt.Errorf("%w: invalid service name %q", ErrConfigValidation, service)
	}
	if id != "" && !nameRegexp.MatchString(id) {
		return "", fmt.Errorf("%w: invalid service id %q", ErrConfigValidation, id)
	}
	if service == "" {
		return fmt.Sprintf("%s.%s", prefix, verbStr), nil
	}
	if id == "" {
		return fmt.Sprintf("%s.%s.%s", prefix, verbStr, service), nil
	}
	return fmt.Sprintf("%s.%s.%s.%s", prefix, verbStr, service, id), nil
}

// resolveQueueGroup picks the effective queue group: the endpoint's
// own, else the nearest enclosing value, else the default.
func resolveQueueGroup(custom, parent string) string {
	if custom != "" {
		return custom
	}
	if parent != "" {
		return parent
	}
	return DefaultQueueGroup
}

func joinSubject(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}
