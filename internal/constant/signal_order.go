package constant

const (
	SignalOrderQueueName  = "signal_order_queue"
	SignalOrderQueueGroup = "signal_order_group"

	SignalOrderStreamName          = "signal_order"
	SignalOrderStreamSubjectAll    = "signal_order.*"
	SignalOrderStreamSubjectSubmit = "signal_order.submit"
)

const (
	HeaderAuthKey   = "X-Auth-Key"
	HeaderRequestID = "X-Request-Id"
)

const (
	DefaultOrderHistoryDatabase = "order_history"
	DefaultContractFamilyMXF    = "MXF"
	DefaultContractFamilyTXF    = "TXF"
)

const (
	PortSignalGatewayHTTP = "signal_gateway_http"
	PortSignalGatewayGRPC = "signal_gateway_grpc"
)

const (
	BrokerDriverSinopac = "sinopac"
	BrokerDriverPaper   = "paper"

	LockDriverLocal = "local"
	LockDriverRedis = "redis"

	RedisLock = "lock"
)
