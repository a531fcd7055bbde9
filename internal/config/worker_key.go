package config

type WorkerKeyStruct struct {
	PersistResultsQueue     string
	PersistGuardEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistResultsQueue:     "persist_results_queue",
	PersistGuardEventsQueue: "persist_guard_events_queue",
}
