package gateway

import (
	"fmt"
	"regexp"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

const (
	LoginPrefix = "/login"
)

type (
	// Registry keeps login modules in registration order.
	Registry struct {
		modules []LoginModule
	}

	// ModuleData describes a module to the landing page. Subpath has no
	// leading slash so it can be used as a relative link.
	ModuleData struct {
		Name        string `json:"name"`
		Subpath     string `json:"subpath"`
		DisplayName string `json:"display_name"`
	}

	// Surface is the result of building a registry: a router with every
	// module mounted plus the ordered module listing.
	Surface struct {
		Router  *httprouter.Router
		Listing []ModuleData
	}
)

var (
	reValidSubpath = regexp.MustCompile(`^(/[A-Za-z0-9._~-]+)+$`)
)

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends m. A module with an invalid subpath is a programming
// error and is refused before it can be mounted.
func (r *Registry) Register(m LoginModule) error {
	if err := validateModule(m); err != nil {
		return err
	}
	r.modules = append(r.modules, m)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(m LoginModule) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []LoginModule {
	return append([]LoginModule(nil), r.modules...)
}

// Build mounts every module under /login<subpath>/ on a new router.
func (r *Registry) Build() (*Surface, error) {
	s := &Surface{
		Router:  httprouter.New(),
		Listing: make([]ModuleData, 0, len(r.modules)),
	}
	names := map[string]bool{}
	subpaths := map[string]bool{}
	for _, m := range r.modules {
		if err := validateModule(m); err != nil {
			return nil, err
		}
		if names[m.Name()] {
			return nil, DuplicateModule{Field: "name", Value: m.Name()}
		}
		if subpaths[m.Subpath()] {
			return nil, DuplicateModule{Field: "subpath", Value: m.Subpath()}
		}
		names[m.Name()] = true
		subpaths[m.Subpath()] = true

		log.Debug().Str("module", m.Name()).Str("subpath", m.Subpath()).Msg("Registering login module")
		m.RegisterRoutes(&Routes{router: s.Router, prefix: LoginPrefix + m.Subpath()})
		s.Listing = append(s.Listing, ModuleData{
			Name:        m.Name(),
			Subpath:     m.Subpath()[1:],
			DisplayName: m.DisplayName(),
		})
	}
	return s, nil
}

func validateModule(m LoginModule) error {
	if m.Name() == "" {
		return InvalidModule{Reason: "module name cannot be empty"}
	}
	if !reValidSubpath.MatchString(m.Subpath()) {
		return InvalidModule{
			Module: m.Name(),
			Reason: fmt.Sprintf("subpath %q must start with '/' and must not end with '/'", m.Subpath()),
		}
	}
	return nil
}
