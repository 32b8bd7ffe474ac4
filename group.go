package micro

// Group is a subject-prefix and queue-group namespace for endpoints.
// Groups nest; a nested group's prefix is its parent's prefix plus its
// own name, dot-separated.
type Group struct {
	service    *Service
	prefix     string
	queueGroup string
}

// GroupOpt customizes AddGroup.
type GroupOpt func(*groupOpts)

type groupOpts struct {
	queueGroup string
}

// WithGroupQueueGroup sets the queue group inherited by the group's
// endpoints and nested groups.
func WithGroupQueueGroup(queueGroup string) GroupOpt {
	return func(o *groupOpts) {
		o.queueGroup = queueGroup
	}
}

// AddGroup creates a nested group under this group's prefix.
func (g *Group) AddGroup(name string, opts ...GroupOpt) *Group {
	var o groupOpts
	for _, opt := range opts {
		opt(&o)
	}
	return &Group{
		service:    g.service,
		prefix:     joinSubject(g.prefix, name),
		queueGroup: resolveInherited(o.queueGroup, g.queueGroup),
	}
}

// AddEndpoint registers an endpoint under the group's prefix with its
// inherited queue group.
func (g *Group) AddEndpoint(name string, handler Handler, opts ...EndpointOpt) error {
	var o endpointOpts
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return err
		}
	}

	subject := o.subject
	if subject == "" {
		subject = name
	}
	subject = joinSubject(g.prefix, subject)

	qg := resolveQueueGroup(o.queueGroup, resolveInherited(g.queueGroup, g.service.cfg.QueueGroup))
	return g.service.addEndpoint(name, subject, handler, qg, &o)
}

// resolveInherited walks one inheritance step without applying the
// default; the default is resolveQueueGroup's job at the endpoint.
func resolveInherited(custom, parent string) string {
	if custom != "" {
		return custom
	}
	return parent
}
