package constant

const (
	DevelopmentEnvironment = "development"
	ProductionEnvironment  = "production"
)

const (
	ExecutionStreamName         = "execution"
	ExecutionStreamSubjectAll   = "execution.*"
	ExecutionStreamSubjectEvent = "execution.completed"

	ExecutionQueueName  = "execution_queue"
	ExecutionQueueGroup = "execution_group"
)
