package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	IO              Category = "IO"
	Internal        Category = "Internal"
	Redis           Category = "Redis"
	RabbitMQ        Category = "RabbitMQ"
	MongoDB         Category = "MongoDB"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
	Gate            Category = "Gate"
	Relay           Category = "Relay"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Room lifecycle
	Admission  SubCategory = "Admission"
	Lifetime   SubCategory = "Lifetime"
	Destroy    SubCategory = "Destroy"
	Expiry     SubCategory = "Expiry"
	AuditLog   SubCategory = "AuditLog"
	Publish    SubCategory = "Publish"
	Consume    SubCategory = "Consume"
	Connection SubCategory = "Connection"
	Dispatch   SubCategory = "Dispatch"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	RequestBody  ExtraKey = "RequestBody"
	ResponseBody ExtraKey = "ResponseBody"
	ErrorMessage ExtraKey = "ErrorMessage"
	RoomID       ExtraKey = "RoomId"
	Outcome      ExtraKey = "Outcome"
	Event        ExtraKey = "Event"
	TTL          ExtraKey = "TTL"
	Reason       ExtraKey = "Reason"
	Subscribers  ExtraKey = "Subscribers"
	ClientID     ExtraKey = "ClientId"
)
