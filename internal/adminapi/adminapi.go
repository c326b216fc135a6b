// Package adminapi is the REST surface over services, dependencies,
// observations and specifications.
package adminapi

import "sync"

var initOnce sync.Once

// Init registers every admin API route on the webserver registry
func Init() {
	initOnce.Do(func() {
		registerServiceRoutes()
		registerDependencyRoutes()
		registerServiceDataRoutes()
		registerSpecificationRoutes()
		registerSystemRoutes()
	})
}
