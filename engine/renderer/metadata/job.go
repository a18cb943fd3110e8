package metadata

/** @brief Describes a type of job */
type JobType int

const (
	/**
	 * @brief A general job that does not have any specific thread requirements.
	 * This means it matters little which job thread this job runs on.
	 */
	JobTypeGeneral JobType = 0x02
	/**
	 * @brief A resource loading job. Resources should always load on the same thread
	 * to avoid potential disk thrashing.
	 */
	JobTypeResourceLoad JobType = 0x04
	/**
	 * @brief Jobs using GPU resources: uploads and acceleration structure builds.
	 */
	JobTypeGPUResource JobType = 0x08
)

/**
 * @brief Determines which job queue a job uses.
 */
type JobPriority int

const (
	/** @brief The lowest-priority job, used for things that can wait to be done if need be, such as log flushing. */
	JobPriorityLow JobPriority = iota
	/** @brief A normal-priority job. Should be used for medium-priority tasks such as loading assets. */
	JobPriorityNormal
	/** @brief The highest-priority job. Should be used sparingly, and only for time-critical operations.*/
	JobPriorityHigh
)

/** Definition for the entry point of a job. */
type JobStart func(params interface{}) error

/** Definition for completion of a job. */
type JobOnComplete func(params interface{})

/** Definition for failure of a job. */
type JobOnFailure func(params interface{}, err error)

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	/** @brief The type of job. */
	JobType JobType
	/** @brief The priority of this job. */
	Priority JobPriority
	/** @brief Data to be passed to the entry point upon execution. */
	InputParams interface{}
	/** @brief Invoked when the job starts. Required. */
	OnStart JobStart
	/** @brief Invoked when the job successfully completes. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked when the job fails. Optional. */
	OnFailure JobOnFailure
	/** @brief Invoked after OnComplete or OnFailure, whatever the outcome. Optional. */
	OnCompletionCallback func()
}
