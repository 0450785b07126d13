package model

// Table names used for change notifications and subscriptions.
const (
	TableTasks    = "tasks"
	TableEvents   = "events"
	TableProfiles = "profiles"
)

// KnownTable reports whether name can be subscribed to.
func KnownTable(name string) bool {
	switch name {
	case TableTasks, TableEvents, TableProfiles:
		return true
	}
	return false
}
