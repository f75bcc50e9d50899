package handlers

import (
	"fmt"

	"area/database"
)

// ParamSpec declares one parameter of an action or reaction.
type ParamSpec struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// ActionSpec declares one trigger capability of a service.
type ActionSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`

	// AccountParam names the bound parameter that must match the inbound
	// payload's account identity under the account-keyed routing strategy.
	// Empty for channel-keyed and poll-style actions.
	AccountParam string `json:"-"`

	// UsesWatch marks actions that need a push channel subscribed at Area
	// creation. Polled marks actions checked by the scheduler instead of any
	// inbound notification.
	UsesWatch bool `json:"-"`
	Polled    bool `json:"-"`
}

// ReactionSpec declares one effect capability of a service.
type ReactionSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
}

// ServiceSpec bundles a service's display metadata, its capability catalogue
// and the handler implementing it.
type ServiceSpec struct {
	Type        string
	DisplayName string
	Color       string
	IconURL     string
	Description string
	Actions     []ActionSpec
	Reactions   []ReactionSpec
	Handler     EventHandler
}

// Registry is the static service-type -> capability table. Built once at
// startup, read-only afterwards.
type Registry struct {
	services map[string]*ServiceSpec
	order    []string
}

// Config carries the deployment-level settings the handlers need.
type Config struct {
	// PublicBaseURL is the externally reachable base URL push notifications
	// are delivered to, e.g. "https://area.example.com".
	PublicBaseURL string
	// GmailPubSubTopic is the Cloud Pub/Sub topic Gmail watch notifications
	// are published to.
	GmailPubSubTopic string
	// DiscordBotToken authenticates the shared Discord bot.
	DiscordBotToken string
}

// NewRegistry returns an empty registry; callers register service specs
// themselves.
func NewRegistry() *Registry {
	return &Registry{services: map[string]*ServiceSpec{}}
}

// DefaultRegistry builds the registry over the full supported catalogue.
func DefaultRegistry(cfg Config) *Registry {
	r := &Registry{services: map[string]*ServiceSpec{}}
	r.Register(CalendarService(cfg))
	r.Register(GmailService(cfg))
	r.Register(YoutubeService())
	r.Register(GithubService())
	r.Register(DiscordService(cfg))
	return r
}

func (r *Registry) Register(spec ServiceSpec) {
	s := spec
	r.services[spec.Type] = &s
	r.order = append(r.order, spec.Type)
}

// Resolve returns the handler for a service type.
func (r *Registry) Resolve(serviceType string) (EventHandler, error) {
	spec, ok := r.services[serviceType]
	if !ok || spec.Handler == nil {
		return nil, fmt.Errorf("%w: service %q", ErrCapabilityNotFound, serviceType)
	}
	return spec.Handler, nil
}

// Services returns the catalogue in registration order.
func (r *Registry) Services() []*ServiceSpec {
	specs := make([]*ServiceSpec, 0, len(r.order))
	for _, t := range r.order {
		specs = append(specs, r.services[t])
	}
	return specs
}

// ActionSpec looks up one action of a service.
func (r *Registry) ActionSpec(serviceType string, actionName string) (*ActionSpec, error) {
	spec, ok := r.services[serviceType]
	if !ok {
		return nil, fmt.Errorf("%w: service %q", ErrCapabilityNotFound, serviceType)
	}
	for i := range spec.Actions {
		if spec.Actions[i].Name == actionName {
			return &spec.Actions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: action %q on service %q", ErrCapabilityNotFound, actionName, serviceType)
}

// ReactionSpec looks up one reaction of a service.
func (r *Registry) ReactionSpec(serviceType string, reactionName string) (*ReactionSpec, error) {
	spec, ok := r.services[serviceType]
	if !ok {
		return nil, fmt.Errorf("%w: service %q", ErrCapabilityNotFound, serviceType)
	}
	for i := range spec.Reactions {
		if spec.Reactions[i].Name == reactionName {
			return &spec.Reactions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: reaction %q on service %q", ErrCapabilityNotFound, reactionName, serviceType)
}

// ValidateActionParams checks bound trigger parameters against the schema.
func (r *Registry) ValidateActionParams(serviceType string, actionName string, params map[string]string) error {
	spec, err := r.ActionSpec(serviceType, actionName)
	if err != nil {
		return err
	}
	return validateParams(spec.Params, params)
}

// ValidateReactionParams checks bound reaction parameters against the schema.
func (r *Registry) ValidateReactionParams(serviceType string, reactionName string, params map[string]string) error {
	spec, err := r.ReactionSpec(serviceType, reactionName)
	if err != nil {
		return err
	}
	return validateParams(spec.Params, params)
}

func validateParams(specs []ParamSpec, params map[string]string) error {
	known := map[string]bool{}
	for _, p := range specs {
		known[p.Name] = true
		if p.Required && params[p.Name] == "" {
			return fmt.Errorf("%w: missing required parameter %q", ErrInvalidParameters, p.Name)
		}
	}
	for name := range params {
		if !known[name] {
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameters, name)
		}
	}
	return nil
}

// PolledActions returns the poll-style actions per service type, for the
// scheduler to restore polling tasks at startup.
func (r *Registry) PolledActions() map[string][]string {
	polled := map[string][]string{}
	for _, spec := range r.Services() {
		for _, a := range spec.Actions {
			if a.Polled {
				polled[spec.Type] = append(polled[spec.Type], a.Name)
			}
		}
	}
	return polled
}

// ServiceInfoSeeds converts the catalogue into the rows seeded into the
// persistent store at startup.
func (r *Registry) ServiceInfoSeeds() []database.ServiceInfo {
	var seeds []database.ServiceInfo
	for _, spec := range r.Services() {
		info := database.ServiceInfo{
			Type:        spec.Type,
			Name:        spec.DisplayName,
			Color:       spec.Color,
			IconURL:     spec.IconURL,
			Description: spec.Description,
		}
		for _, a := range spec.Actions {
			info.Actions = append(info.Actions, database.Action{Name: a.Name, Description: a.Description})
		}
		for _, re := range spec.Reactions {
			info.Reactions = append(info.Reactions, database.Reaction{Name: re.Name, Description: re.Description})
		}
		seeds = append(seeds, info)
	}
	return seeds
}
