package channel

import (
	"path"

	"github.com/go-chi/chi/v5"
)

// Register mounts every channel's routes on router under routePrefix, all bound to the
// same onNewMessage handler. Colliding mount paths are not detected.
func Register(channels []InputChannel, router chi.Router, routePrefix string, onNewMessage Handler) {
	for _, ch := range channels {
		sub := chi.NewRouter()
		for _, route := range ch.Routes(onNewMessage) {
			sub.MethodFunc(route.Method, route.Path, route.Handler)
		}

		router.Mount(MountPath(routePrefix, ch), sub)
	}
}

// MountPath joins routePrefix and the channel's URL prefix into an absolute path.
func MountPath(routePrefix string, ch InputChannel) string {
	return path.Join("/", routePrefix, URLPrefix(ch))
}
