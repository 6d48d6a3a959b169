// Package permissions decides whether an actor may perform an operation.
//
// Every operation declares the permissions it needs. The Gate grants access
// only when the actor holds all of them, and denies whenever the answer
// cannot be established.
package permissions

import "fmt"

const namespace = "grafana-oncall-app"

type Resource string

const (
	ResourceAlertGroups          Resource = "alert-groups"
	ResourceAlertReceiveChannels Resource = "alert-receive-channels"
	ResourceIntegrations         Resource = "integrations"
	ResourceEscalationChains     Resource = "escalation-chains"
	ResourceSchedules            Resource = "schedules"
	ResourceChatOps              Resource = "chatops"
	ResourceOutgoingWebhooks     Resource = "outgoing-webhooks"
	ResourceMaintenance          Resource = "maintenance"
	ResourceAPIKeys              Resource = "api-keys"
	ResourceOnCallShifts         Resource = "oncall-shifts"
	ResourceNotificationSettings Resource = "notification-settings"
	ResourceGlobalSettings       Resource = "global-settings"
	ResourceOwnSettings          Resource = "own-settings"
	ResourceOthersSettings       Resource = "others-settings"

	// Core resources are shared with the host platform and carry no
	// namespace.
	ResourceOrganizations Resource = "orgs"
	ResourceTeams         Resource = "teams"
	ResourceUsers         Resource = "users"
)

type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

type Permission struct {
	Resource Resource
	Action   Action
	core     bool
}

// String returns the identifier the authority knows the permission by.
func (p Permission) String() string {
	if p.core {
		return fmt.Sprintf("%s:%s", p.Resource, p.Action)
	}
	return fmt.Sprintf("%s.%s:%s", namespace, p.Resource, p.Action)
}

// PermissionSet maps an operation name to the permissions it requires.
type PermissionSet map[string][]Permission

func namespaced(r Resource, a Action) Permission { return Permission{Resource: r, Action: a} }
func core(r Resource, a Action) Permission       { return Permission{Resource: r, Action: a, core: true} }

var (
	AlertGroupsRead           = namespaced(ResourceAlertGroups, ActionRead)
	AlertGroupsWrite          = namespaced(ResourceAlertGroups, ActionWrite)
	AlertReceiveChannelsRead  = namespaced(ResourceAlertReceiveChannels, ActionRead)
	AlertReceiveChannelsWrite = namespaced(ResourceAlertReceiveChannels, ActionWrite)
	IntegrationsRead          = namespaced(ResourceIntegrations, ActionRead)
	IntegrationsWrite         = namespaced(ResourceIntegrations, ActionWrite)
	EscalationChainsRead      = namespaced(ResourceEscalationChains, ActionRead)
	EscalationChainsWrite     = namespaced(ResourceEscalationChains, ActionWrite)
	SchedulesRead             = namespaced(ResourceSchedules, ActionRead)
	SchedulesWrite            = namespaced(ResourceSchedules, ActionWrite)
	ChatOpsRead               = namespaced(ResourceChatOps, ActionRead)
	ChatOpsWrite              = namespaced(ResourceChatOps, ActionWrite)
	OutgoingWebhooksRead      = namespaced(ResourceOutgoingWebhooks, ActionRead)
	OutgoingWebhooksWrite     = namespaced(ResourceOutgoingWebhooks, ActionWrite)
	MaintenanceRead           = namespaced(ResourceMaintenance, ActionRead)
	MaintenanceWrite          = namespaced(ResourceMaintenance, ActionWrite)
	APIKeysRead               = namespaced(ResourceAPIKeys, ActionRead)
	APIKeysWrite              = namespaced(ResourceAPIKeys, ActionWrite)
	OnCallShiftsRead          = namespaced(ResourceOnCallShifts, ActionRead)
	OnCallShiftsWrite         = namespaced(ResourceOnCallShifts, ActionWrite)
	NotificationSettingsRead  = namespaced(ResourceNotificationSettings, ActionRead)
	NotificationSettingsWrite = namespaced(ResourceNotificationSettings, ActionWrite)
	GlobalSettingsRead        = namespaced(ResourceGlobalSettings, ActionRead)
	GlobalSettingsWrite       = namespaced(ResourceGlobalSettings, ActionWrite)
	OwnSettingsRead           = namespaced(ResourceOwnSettings, ActionRead)
	OwnSettingsWrite          = namespaced(ResourceOwnSettings, ActionWrite)
	OthersSettingsRead        = namespaced(ResourceOthersSettings, ActionRead)
	OthersSettingsWrite       = namespaced(ResourceOthersSettings, ActionWrite)

	OrganizationsRead = core(ResourceOrganizations, ActionRead)
	TeamsRead         = core(ResourceTeams, ActionRead)
	UsersRead         = core(ResourceUsers, ActionRead)
)

// Table indexes every known permission by its identifier. It is filled
// once at init and never written afterwards.
var Table = func() map[string]Permission {
	all := []Permission{
		AlertGroupsRead, AlertGroupsWrite,
		AlertReceiveChannelsRead, AlertReceiveChannelsWrite,
		IntegrationsRead, IntegrationsWrite,
		EscalationChainsRead, EscalationChainsWrite,
		SchedulesRead, SchedulesWrite,
		ChatOpsRead, ChatOpsWrite,
		OutgoingWebhooksRead, OutgoingWebhooksWrite,
		MaintenanceRead, MaintenanceWrite,
		APIKeysRead, APIKeysWrite,
		OnCallShiftsRead, OnCallShiftsWrite,
		NotificationSettingsRead, NotificationSettingsWrite,
		GlobalSettingsRead, GlobalSettingsWrite,
		OwnSettingsRead, OwnSettingsWrite,
		OthersSettingsRead, OthersSettingsWrite,
		OrganizationsRead, TeamsRead, UsersRead,
	}
	table := make(map[string]Permission, len(all))
	for _, p := range all {
		table[p.String()] = p
	}
	return table
}()

// Lookup resolves a permission identifier.
func Lookup(id string) (Permission, bool) {
	p, ok := Table[id]
	return p, ok
}
