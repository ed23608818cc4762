package storage

type Store string

const (
	// ScheduledNotificationsStore holds notifications armed by the scheduler that have not fired yet.
	ScheduledNotificationsStore Store = "scheduled_notifications"
	// RegistrationStore stands in for the Windows registry on platforms without one.
	RegistrationStore Store = "app_registration"
	// AppConfigStore holds the app identity of the last successful initialize.
	AppConfigStore Store = "app_config"
)

func (storeType Store) String() string {
	return string(storeType)
}

// AllStores lists every bucket the daemon creates at startup.
var AllStores = []Store{
	ScheduledNotificationsStore,
	RegistrationStore,
	AppConfigStore,
}
