package mqtt

import "fmt"

// Prefixes for the topics the service itself owns. Device command and
// feedback topics come from each switch's configuration.
const (
	TopicPrefixCore   = "grayswitch/core"
	TopicPrefixSystem = "grayswitch/system"
)

// Topics builds the service's own topic names.
type Topics struct{}

// SwitchState is where the canonical state of a switch is republished,
// retained: grayswitch/core/switch/{id}/state.
func (Topics) SwitchState(entityID string) string {
	return fmt.Sprintf("%s/switch/%s/state", TopicPrefixCore, entityID)
}

// SystemStatus carries the online/offline document and the last will.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
