package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	worker := "ctrl-oem3-native"

	return Config{
		Endpoint:       "",
		ProbeTimeoutMS: 250,
		Worker: WorkerConfig{
			Command:            CommandConfig{Raw: worker, Argv: mustParseWorkerCommand(worker)},
			MatchesWindowTitle: "Visual Studio Code",
			ConnectDelayMS:     400,
			RestartDelayMS:     500,
		},
	}
}
