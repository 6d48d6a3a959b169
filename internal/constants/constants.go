package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

const (
	ServiceRouting    = "routing-service"
	ServiceManagement = "management-service"
)

const (
	DefaultInputTopic  = "alerts"
	DefaultOutputTopic = "routed_alerts"
)

const (
	DefaultMongoDBName = "switchyard"
)

const (
	CacheKeyPrefixPermission = "perm:"
)

const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

// FilteringTermMaxLength bounds a channel filter's filtering term.
const FilteringTermMaxLength = 1024
