package trace

// TraceLevel controls the verbosity of job tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelJobs captures job starts and ends.
	TraceLevelJobs TraceLevel = "jobs"
	// TraceLevelPhases additionally captures compute-phase transitions.
	TraceLevelPhases TraceLevel = "phases"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelJobs:   true,
	TraceLevelPhases: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Tracer receives job-lifecycle notifications from scheduling policies.
type Tracer interface {
	JobStart(JobRecord)
	JobEnd(JobRecord)
	JobBeginCompute(PhaseRecord)
	JobEndCompute(PhaseRecord)
}

// SimulationTrace collects job records during a simulation.
type SimulationTrace struct {
	Config        TraceConfig
	Starts        []JobRecord
	Ends          []JobRecord
	ComputeBegins []PhaseRecord
	ComputeEnds   []PhaseRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:        config,
		Starts:        make([]JobRecord, 0),
		Ends:          make([]JobRecord, 0),
		ComputeBegins: make([]PhaseRecord, 0),
		ComputeEnds:   make([]PhaseRecord, 0),
	}
}

// JobStart appends a start record.
func (st *SimulationTrace) JobStart(record JobRecord) {
	if st.Config.Level == TraceLevelNone || st.Config.Level == "" {
		return
	}
	st.Starts = append(st.Starts, record)
}

// JobEnd appends an end record.
func (st *SimulationTrace) JobEnd(record JobRecord) {
	if st.Config.Level == TraceLevelNone || st.Config.Level == "" {
		return
	}
	st.Ends = append(st.Ends, record)
}

// JobBeginCompute appends a compute-phase start when phases are traced.
func (st *SimulationTrace) JobBeginCompute(record PhaseRecord) {
	if st.Config.Level != TraceLevelPhases {
		return
	}
	st.ComputeBegins = append(st.ComputeBegins, record)
}

// JobEndCompute appends a compute-phase end when phases are traced.
func (st *SimulationTrace) JobEndCompute(record PhaseRecord) {
	if st.Config.Level != TraceLevelPhases {
		return
	}
	st.ComputeEnds = append(st.ComputeEnds, record)
}
