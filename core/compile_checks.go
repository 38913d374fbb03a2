package core

var (
	_ Locker          = (*MemoryLocker)(nil)
	_ MetricsRecorder = NopMetricsRecorder{}
	_ MetricsRecorder = (*MemoryMetricsRecorder)(nil)
	_ RawConfigLoader = FileConfigLoader{}
	_ RawConfigLoader = EnvConfigLoader{}
)
