package messenger

// Module is a group of commands served by a Router.
type Module interface {
	Register(r *Router)
}

// RegisterAll registers every module with r.
func RegisterAll(r *Router, modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}
